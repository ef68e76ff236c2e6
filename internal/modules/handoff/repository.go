package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"food-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the persistence contract for the handoff
// orchestrator. The multi-row operations (accept cascade, rejection
// bookkeeping, driver claim) each run inside a single transaction so that
// concurrent acceptances of the same order cannot interleave.
type RepositoryInterface interface {
	FindRestaurantAssignment(ctx context.Context, assignmentID string) (*models.RestaurantAssignment, error)
	// AcceptRestaurantAssignment atomically moves the order to
	// restaurant_accepted (guarded on its current status), sets the winning
	// restaurant, marks the assignment accepted, and cancels pending
	// siblings. Returns models.ErrInvalidTransition when the order guard
	// fails and models.ErrAssignmentNotPending when the assignment was
	// already resolved.
	AcceptRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID string, orderStatus models.OrderStatus) error
	// RejectRestaurantAssignment marks the assignment rejected and, when no
	// pending siblings remain, moves the order to no_restaurant_accepted.
	// Returns the number of pending siblings left after the rejection.
	RejectRestaurantAssignment(ctx context.Context, orderID, assignmentID string) (int, error)

	FindDeliveryAssignment(ctx context.Context, assignmentID string) (*models.DeliveryAssignment, error)
	// AcceptDeliveryAssignment moves an assignment to accepted for the given
	// driver, but only while it is still assigned and unexpired.
	AcceptDeliveryAssignment(ctx context.Context, assignmentID, driverID string) error
	// RejectDeliveryAssignment marks the assignment rejected and frees the
	// driver's capacity slot.
	RejectDeliveryAssignment(ctx context.Context, assignmentID, driverID string) error
	// CreateDeliveryAssignment claims a capacity slot for the driver and
	// inserts the assignment in one transaction. ok is false when the driver
	// is unavailable or at capacity; nothing is written in that case.
	CreateDeliveryAssignment(ctx context.Context, assignment *models.DeliveryAssignment) (created *models.DeliveryAssignment, ok bool, err error)
	// ExpireAssignments moves every overdue assigned row to expired and
	// releases the drivers' capacity slots, returning the expired rows.
	ExpireAssignments(ctx context.Context, now time.Time) ([]*models.DeliveryAssignment, error)

	GetDriverAvailability(ctx context.Context, driverID string) (*models.DriverAvailability, error)
	ListAvailableDrivers(ctx context.Context) ([]*models.DriverAvailability, error)
	RestaurantLocation(ctx context.Context, restaurantID string) (lat, lng float64, err error)

	AppendHistory(ctx context.Context, entry *models.AssignmentHistory) error
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new handoff repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// FindRestaurantAssignment fetches one restaurant assignment by ID.
func (r *Repository) FindRestaurantAssignment(ctx context.Context, assignmentID string) (*models.RestaurantAssignment, error) {
	query := `
		SELECT id, order_id, restaurant_id, status, created_at, updated_at
		FROM restaurant_assignments
		WHERE id = $1`
	a := &models.RestaurantAssignment{}
	err := r.db.QueryRow(ctx, query, assignmentID).
		Scan(&a.ID, &a.OrderID, &a.RestaurantID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindRestaurantAssignment: %w", err)
	}
	return a, nil
}

// AcceptRestaurantAssignment runs the accept cascade in one transaction.
// Ordering matters: the guarded order update goes first so a lost race
// aborts before any assignment row is touched.
func (r *Repository) AcceptRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID string, orderStatus models.OrderStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.AcceptRestaurantAssignment begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, restaurant_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.StatusRestaurantAccepted, restaurantID, orderID, orderStatus)
	if err != nil {
		return fmt.Errorf("repository.AcceptRestaurantAssignment order update: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}

	cmdTag, err = tx.Exec(ctx, `
		UPDATE restaurant_assignments
		SET status = 'accepted', updated_at = NOW()
		WHERE id = $1 AND order_id = $2 AND restaurant_id = $3 AND status = 'pending'`,
		assignmentID, orderID, restaurantID)
	if err != nil {
		return fmt.Errorf("repository.AcceptRestaurantAssignment assignment update: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrAssignmentNotPending
	}

	_, err = tx.Exec(ctx, `
		UPDATE restaurant_assignments
		SET status = 'cancelled', updated_at = NOW()
		WHERE order_id = $1 AND id <> $2 AND status = 'pending'`,
		orderID, assignmentID)
	if err != nil {
		return fmt.Errorf("repository.AcceptRestaurantAssignment cascade: %w", err)
	}

	return tx.Commit(ctx)
}

// RejectRestaurantAssignment marks the assignment rejected and resolves the
// order when it was the last pending candidate.
func (r *Repository) RejectRestaurantAssignment(ctx context.Context, orderID, assignmentID string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository.RejectRestaurantAssignment begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE restaurant_assignments
		SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND order_id = $2 AND status = 'pending'`,
		assignmentID, orderID)
	if err != nil {
		return 0, fmt.Errorf("repository.RejectRestaurantAssignment update: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return 0, models.ErrAssignmentNotPending
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM restaurant_assignments
		WHERE order_id = $1 AND status = 'pending'`, orderID).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("repository.RejectRestaurantAssignment count: %w", err)
	}

	if remaining == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE orders
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status IN ('pending', 'awaiting_restaurant', 'restaurant_assigned')`,
			models.StatusNoRestaurantAccepted, orderID)
		if err != nil {
			return 0, fmt.Errorf("repository.RejectRestaurantAssignment order update: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("repository.RejectRestaurantAssignment commit: %w", err)
	}
	return remaining, nil
}

const deliveryAssignmentColumns = `id, order_id, restaurant_id, delivery_user_id, status, priority_score, expires_at, auto_assigned, assignment_attempt, created_at, updated_at`

func scanDeliveryAssignment(row pgx.Row) (*models.DeliveryAssignment, error) {
	a := &models.DeliveryAssignment{}
	err := row.Scan(
		&a.ID,
		&a.OrderID,
		&a.RestaurantID,
		&a.DeliveryUserID,
		&a.Status,
		&a.PriorityScore,
		&a.ExpiresAt,
		&a.AutoAssigned,
		&a.AssignmentAttempt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery assignment: %w", err)
	}
	return a, nil
}

// FindDeliveryAssignment fetches one delivery assignment by ID.
func (r *Repository) FindDeliveryAssignment(ctx context.Context, assignmentID string) (*models.DeliveryAssignment, error) {
	query := `SELECT ` + deliveryAssignmentColumns + ` FROM delivery_assignments WHERE id = $1`
	a, err := scanDeliveryAssignment(r.db.QueryRow(ctx, query, assignmentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindDeliveryAssignment: %w", err)
	}
	return a, nil
}

// AcceptDeliveryAssignment accepts on behalf of a driver. The WHERE clause
// carries the expiry check so a late accept after the sweep (or even just
// after the deadline) cannot succeed.
func (r *Repository) AcceptDeliveryAssignment(ctx context.Context, assignmentID, driverID string) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE delivery_assignments
		SET status = 'accepted', updated_at = NOW()
		WHERE id = $1 AND delivery_user_id = $2 AND status = 'assigned' AND expires_at > NOW()`,
		assignmentID, driverID)
	if err != nil {
		return fmt.Errorf("repository.AcceptDeliveryAssignment: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Distinguish a vanished row from a late or duplicate accept.
		assignment, findErr := r.FindDeliveryAssignment(ctx, assignmentID)
		if findErr != nil {
			return findErr
		}
		if assignment.DeliveryUserID != driverID {
			return models.ErrNotFound
		}
		if assignment.Status == models.AssignmentExpired || !assignment.ExpiresAt.After(time.Now()) {
			return models.ErrAssignmentExpired
		}
		return models.ErrAssignmentNotPending
	}
	return nil
}

// RejectDeliveryAssignment rejects on behalf of a driver and releases the
// capacity slot the assignment was holding.
func (r *Repository) RejectDeliveryAssignment(ctx context.Context, assignmentID, driverID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.RejectDeliveryAssignment begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE delivery_assignments
		SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND delivery_user_id = $2 AND status = 'assigned'`,
		assignmentID, driverID)
	if err != nil {
		return fmt.Errorf("repository.RejectDeliveryAssignment update: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrAssignmentNotPending
	}

	_, err = tx.Exec(ctx, `
		UPDATE driver_availability
		SET current_delivery_count = GREATEST(current_delivery_count - 1, 0), updated_at = NOW()
		WHERE delivery_user_id = $1`, driverID)
	if err != nil {
		return fmt.Errorf("repository.RejectDeliveryAssignment decrement: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateDeliveryAssignment claims driver capacity and inserts the assignment
// atomically. The guarded UPDATE doubles as the availability check: zero
// rows affected means the driver cannot take the delivery.
func (r *Repository) CreateDeliveryAssignment(ctx context.Context, assignment *models.DeliveryAssignment) (*models.DeliveryAssignment, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("repository.CreateDeliveryAssignment begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET current_delivery_count = current_delivery_count + 1, updated_at = NOW()
		WHERE delivery_user_id = $1
		  AND is_available
		  AND current_delivery_count < max_concurrent_deliveries`,
		assignment.DeliveryUserID)
	if err != nil {
		return nil, false, fmt.Errorf("repository.CreateDeliveryAssignment claim: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, false, nil
	}

	query := `
		INSERT INTO delivery_assignments
			(id, order_id, restaurant_id, delivery_user_id, status, priority_score, expires_at, auto_assigned, assignment_attempt)
		VALUES ($1, $2, $3, $4, 'assigned', $5, $6, $7, $8)
		RETURNING ` + deliveryAssignmentColumns

	created, err := scanDeliveryAssignment(tx.QueryRow(ctx, query,
		uuid.NewString(),
		assignment.OrderID,
		assignment.RestaurantID,
		assignment.DeliveryUserID,
		assignment.PriorityScore,
		assignment.ExpiresAt,
		assignment.AutoAssigned,
		assignment.AssignmentAttempt,
	))
	if err != nil {
		return nil, false, fmt.Errorf("repository.CreateDeliveryAssignment insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("repository.CreateDeliveryAssignment commit: %w", err)
	}
	return created, true, nil
}

// ExpireAssignments sweeps overdue assigned rows. Safe to call repeatedly:
// the WHERE clause matches nothing once everything is swept.
func (r *Repository) ExpireAssignments(ctx context.Context, now time.Time) ([]*models.DeliveryAssignment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.ExpireAssignments begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE delivery_assignments
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'assigned' AND expires_at <= $1
		RETURNING `+deliveryAssignmentColumns, now)
	if err != nil {
		return nil, fmt.Errorf("repository.ExpireAssignments update: %w", err)
	}

	var expired []*models.DeliveryAssignment
	for rows.Next() {
		a, err := scanDeliveryAssignment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository.ExpireAssignments scan: %w", err)
		}
		expired = append(expired, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ExpireAssignments rows: %w", err)
	}

	for _, a := range expired {
		_, err = tx.Exec(ctx, `
			UPDATE driver_availability
			SET current_delivery_count = GREATEST(current_delivery_count - 1, 0), updated_at = NOW()
			WHERE delivery_user_id = $1`, a.DeliveryUserID)
		if err != nil {
			return nil, fmt.Errorf("repository.ExpireAssignments decrement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.ExpireAssignments commit: %w", err)
	}
	return expired, nil
}

// GetDriverAvailability fetches a driver's capacity record.
func (r *Repository) GetDriverAvailability(ctx context.Context, driverID string) (*models.DriverAvailability, error) {
	query := `
		SELECT delivery_user_id, is_available, current_delivery_count, max_concurrent_deliveries,
		       COALESCE(latitude, 0), COALESCE(longitude, 0), updated_at
		FROM driver_availability
		WHERE delivery_user_id = $1`
	d := &models.DriverAvailability{}
	err := r.db.QueryRow(ctx, query, driverID).Scan(
		&d.DeliveryUserID, &d.IsAvailable, &d.CurrentDeliveryCount,
		&d.MaxConcurrentDeliveries, &d.Latitude, &d.Longitude, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.GetDriverAvailability: %w", err)
	}
	return d, nil
}

// ListAvailableDrivers returns every driver with capacity headroom.
func (r *Repository) ListAvailableDrivers(ctx context.Context) ([]*models.DriverAvailability, error) {
	query := `
		SELECT delivery_user_id, is_available, current_delivery_count, max_concurrent_deliveries,
		       COALESCE(latitude, 0), COALESCE(longitude, 0), updated_at
		FROM driver_availability
		WHERE is_available AND current_delivery_count < max_concurrent_deliveries`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListAvailableDrivers: %w", err)
	}
	defer rows.Close()

	var drivers []*models.DriverAvailability
	for rows.Next() {
		d := &models.DriverAvailability{}
		if err := rows.Scan(&d.DeliveryUserID, &d.IsAvailable, &d.CurrentDeliveryCount,
			&d.MaxConcurrentDeliveries, &d.Latitude, &d.Longitude, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListAvailableDrivers scan: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListAvailableDrivers rows: %w", err)
	}
	return drivers, nil
}

// RestaurantLocation returns the pickup coordinates for a restaurant.
func (r *Repository) RestaurantLocation(ctx context.Context, restaurantID string) (float64, float64, error) {
	query := `SELECT latitude, longitude FROM restaurant_locations WHERE restaurant_id = $1`
	var lat, lng float64
	err := r.db.QueryRow(ctx, query, restaurantID).Scan(&lat, &lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, models.ErrNotFound
		}
		return 0, 0, fmt.Errorf("repository.RestaurantLocation: %w", err)
	}
	return lat, lng, nil
}

// AppendHistory inserts one audit record. History rows are never updated.
func (r *Repository) AppendHistory(ctx context.Context, entry *models.AssignmentHistory) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("repository.AppendHistory marshal: %w", err)
	}

	query := `
		INSERT INTO delivery_assignment_history
			(id, assignment_id, order_id, delivery_user_id, action, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, created_at`
	err = r.db.QueryRow(ctx, query, uuid.NewString(), entry.AssignmentID, entry.OrderID, entry.DeliveryUserID, entry.Action, metadata).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.AppendHistory: %w", err)
	}
	return nil
}
