package webhook

import (
	"context"
	"errors"
	"fmt"

	"food-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface exposes the lookups the forwarder needs to authorize
// and enrich a status-change event.
type RepositoryInterface interface {
	OrderParties(ctx context.Context, orderID string) (customerID string, restaurantID *string, err error)
	DriverLocationForOrder(ctx context.Context, orderID string) (lat, lng *float64, err error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) OrderParties(ctx context.Context, orderID string) (string, *string, error) {
	var customerID string
	var restaurantID *string
	query := `SELECT customer_id, restaurant_id FROM orders WHERE id = $1`
	err := r.db.QueryRow(ctx, query, orderID).Scan(&customerID, &restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, models.ErrNotFound
		}
		return "", nil, fmt.Errorf("repository.OrderParties: %w", err)
	}
	return customerID, restaurantID, nil
}

// DriverLocationForOrder returns the driver's last reported position from the
// order's live navigation session, or ErrNotFound when no session is active.
func (r *Repository) DriverLocationForOrder(ctx context.Context, orderID string) (*float64, *float64, error) {
	var lat, lng float64
	query := `
        SELECT ns.latitude, ns.longitude
        FROM navigation_sessions ns
        JOIN delivery_assignments da ON da.id = ns.assignment_id
        WHERE da.order_id = $1 AND ns.is_active = TRUE
        ORDER BY ns.updated_at DESC
        LIMIT 1`
	err := r.db.QueryRow(ctx, query, orderID).Scan(&lat, &lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, models.ErrNotFound
		}
		return nil, nil, fmt.Errorf("repository.DriverLocationForOrder: %w", err)
	}
	return &lat, &lng, nil
}
