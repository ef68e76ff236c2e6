package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"food-dispatch/internal/models"
	"food-dispatch/internal/modules/orders"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceInterface forwards database status-change events to the downstream
// restaurant endpoint.
type ServiceInterface interface {
	HandleStatusChange(ctx context.Context, bearerToken string, event models.StatusChangeEvent) error
}

type Service struct {
	repo       RepositoryInterface
	client     *http.Client
	jwtSecret  string
	forwardURL string
}

func NewService(repo RepositoryInterface, jwtSecret, forwardURL string) ServiceInterface {
	return &Service{
		repo:       repo,
		client:     &http.Client{Timeout: 10 * time.Second},
		jwtSecret:  jwtSecret,
		forwardURL: forwardURL,
	}
}

// HandleStatusChange authorizes the caller against the order and forwards a
// reshaped payload downstream. Events for tables or columns we do not watch
// are acknowledged and dropped. The downstream POST is a primary-path call:
// its failure fails the whole operation.
func (s *Service) HandleStatusChange(ctx context.Context, bearerToken string, event models.StatusChangeEvent) error {
	if event.Table != "orders" || event.StatusColumn != "status" {
		return nil
	}

	callerID, err := s.authenticateCaller(bearerToken)
	if err != nil {
		return err
	}

	customerID, restaurantID, err := s.repo.OrderParties(ctx, event.RecordID)
	if err != nil {
		return fmt.Errorf("service.HandleStatusChange: %w", err)
	}
	if callerID != customerID && (restaurantID == nil || callerID != *restaurantID) {
		return models.ErrForbidden
	}

	payload := models.RestaurantStatusPayload{
		OrderID: event.RecordID,
		Status:  event.NewStatus,
		Action:  actionForStatus(event.NewStatus),
	}

	// Attach the driver's live position when a navigation session is
	// running. Missing or failed lookups degrade to a payload without
	// coordinates rather than blocking the forward.
	lat, lng, err := s.repo.DriverLocationForOrder(ctx, event.RecordID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("Driver location lookup failed for order %s: %v", event.RecordID, err)
		}
	} else {
		payload.Latitude = lat
		payload.Longitude = lng
	}

	return s.forward(ctx, payload)
}

// authenticateCaller verifies the bearer token and returns the caller's user ID.
func (s *Service) authenticateCaller(bearerToken string) (string, error) {
	if bearerToken == "" {
		return "", models.ErrInvalidCredentials
	}
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(bearerToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", models.ErrInvalidCredentials
	}
	return claims.UserID, nil
}

func (s *Service) forward(ctx context.Context, payload models.RestaurantStatusPayload) error {
	if s.forwardURL == "" {
		log.Printf("No downstream URL configured, dropping status event for order %s", payload.OrderID)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("service.forward: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.forwardURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("service.forward: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("service.forward: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("service.forward: downstream returned %d", resp.StatusCode)
	}
	return nil
}

// actionForStatus tells the restaurant UI what to do with the update.
func actionForStatus(raw string) string {
	status, ok := orders.CanonicalStatus(raw)
	if !ok {
		return "status_update"
	}
	switch status {
	case models.StatusRestaurantAssigned:
		return "respond"
	case models.StatusRestaurantAccepted, models.StatusPreparing:
		return "prepare"
	case models.StatusReadyForPickup:
		return "handoff"
	case models.StatusOnTheWay:
		return "track"
	case models.StatusDelivered:
		return "complete"
	case models.StatusCancelled, models.StatusRefunded, models.StatusRestaurantRejected, models.StatusNoRestaurantAccepted:
		return "dismiss"
	default:
		return "status_update"
	}
}
