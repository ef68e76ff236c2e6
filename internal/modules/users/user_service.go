package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"food-dispatch/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ServiceInterface defines methods for account business logic.
type ServiceInterface interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetUserProfile(ctx context.Context, userID string) (*models.User, error)
	SetDriverAvailability(ctx context.Context, driverID string, req models.AvailabilityRequest) (*models.DriverAvailability, error)
}

type Service struct {
	userRepo  RepositoryInterface
	jwtSecret string
}

func NewService(userRepo RepositoryInterface, jwtSecret string) ServiceInterface {
	return &Service{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
	}
}

func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error) {
	_, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("service.Signup.FindByEmail: %w", err)
	}
	if err == nil {
		// Email is already taken.
		return nil, models.ErrConflict
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service.Signup.HashPassword: %w", err)
	}

	newUser := &models.User{
		Email:    req.Email,
		Nickname: req.Nickname,
		Role:     models.Role(req.Role),
	}
	createdUser, err := s.userRepo.Create(ctx, newUser, string(hashedPassword))
	if err != nil {
		return nil, fmt.Errorf("service.Signup.Create: %w", err)
	}

	return s.generateAuthResponse(createdUser)
}

func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	userWithHash, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service.Login.FindByEmail: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(userWithHash.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return s.generateAuthResponse(userWithHash)
}

func (s *Service) GetUserProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.GetUserProfile: %w", err)
	}
	return user, nil
}

// SetDriverAvailability toggles whether the dispatcher may hand a driver new
// assignments. It does not touch deliveries already in flight.
func (s *Service) SetDriverAvailability(ctx context.Context, driverID string, req models.AvailabilityRequest) (*models.DriverAvailability, error) {
	availability, err := s.userRepo.UpsertAvailability(ctx, driverID, req)
	if err != nil {
		return nil, fmt.Errorf("service.SetDriverAvailability: %w", err)
	}
	return availability, nil
}

// generateAuthResponse issues a signed JWT carrying the user's role so the
// middleware can authorize role-gated routes without a database lookup.
func (s *Service) generateAuthResponse(user *models.User) (*models.AuthResponse, error) {
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 30)),
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenSignedString, err := accessToken.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	user.PasswordHash = ""

	return &models.AuthResponse{
		AccessToken: tokenSignedString,
		User:        user,
	}, nil
}
