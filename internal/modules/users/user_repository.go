package users

import (
	"context"
	"errors"
	"fmt"

	"food-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines methods for interacting with account storage.
type RepositoryInterface interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, passwordHash string) (*models.User, error)
	UpsertAvailability(ctx context.Context, driverID string, req models.AvailabilityRequest) (*models.DriverAvailability, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, nickname, role, created_at, updated_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.Nickname, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, nickname, password_hash, role, created_at, updated_at FROM users WHERE email = $1`
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Nickname, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByEmail: %w", err)
	}
	return user, nil
}

func (r *Repository) Create(ctx context.Context, user *models.User, passwordHash string) (*models.User, error) {
	query := `
        INSERT INTO users (email, nickname, password_hash, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		user.Email, user.Nickname, passwordHash, user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: %w", err)
	}
	return user, nil
}

// UpsertAvailability writes a driver's availability row, creating it on the
// first toggle. Coordinates are only overwritten when the driver reports them.
func (r *Repository) UpsertAvailability(ctx context.Context, driverID string, req models.AvailabilityRequest) (*models.DriverAvailability, error) {
	availability := &models.DriverAvailability{}
	query := `
        INSERT INTO driver_availability (delivery_user_id, is_available, latitude, longitude, updated_at)
        VALUES ($1, $2, COALESCE($3, 0), COALESCE($4, 0), NOW())
        ON CONFLICT (delivery_user_id) DO UPDATE SET
            is_available = EXCLUDED.is_available,
            latitude = COALESCE($3, driver_availability.latitude),
            longitude = COALESCE($4, driver_availability.longitude),
            updated_at = NOW()
        RETURNING delivery_user_id, is_available, current_delivery_count, max_concurrent_deliveries, latitude, longitude, updated_at`
	err := r.db.QueryRow(ctx, query, driverID, req.IsAvailable, req.Latitude, req.Longitude).Scan(
		&availability.DeliveryUserID, &availability.IsAvailable, &availability.CurrentDeliveryCount,
		&availability.MaxConcurrentDeliveries, &availability.Latitude, &availability.Longitude, &availability.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.UpsertAvailability: %w", err)
	}
	return availability, nil
}
