package navigation

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

// RepositoryInterface defines persistence for navigation sessions and routes.
type RepositoryInterface interface {
	CreateSession(ctx context.Context, session *models.NavigationSession) (*models.NavigationSession, error)
	FindSession(ctx context.Context, sessionID string) (*models.NavigationSession, error)
	// FindActiveSessionByAssignment returns the live session for an
	// assignment, if any. Used to attach coordinates to webhook payloads.
	FindActiveSessionByAssignment(ctx context.Context, assignmentID string) (*models.NavigationSession, error)
	// UpdateSessionProgress persists the mutable fields of a session after a
	// location update. Only active sessions are written.
	UpdateSessionProgress(ctx context.Context, session *models.NavigationSession) error
	// UpdateSessionETA writes only the time_remaining column. The
	// background refresher uses it so that a location update landing while
	// the ETA call was in flight is never overwritten.
	UpdateSessionETA(ctx context.Context, sessionID string, etaSeconds int) error
	// StopSession marks a session inactive. Stopping an already stopped
	// session is a no-op, so teardown paths can call it unconditionally.
	StopSession(ctx context.Context, sessionID string, completedAt time.Time) error
	// AssignmentParties returns who may watch an assignment's live
	// progress: the assigned driver, the ordering customer, and the
	// owning restaurant.
	AssignmentParties(ctx context.Context, assignmentID string) (driverID, customerID string, restaurantID *string, err error)

	SaveRoute(ctx context.Context, route *models.Route) (*models.Route, error)
	FindRoute(ctx context.Context, routeID string) (*models.Route, error)
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new navigation repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const sessionColumns = `id, route_id, delivery_user_id, assignment_id, current_step_index, latitude, longitude, distance_remaining, time_remaining, off_route, reroute_count, is_active, completed_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.NavigationSession, error) {
	s := &models.NavigationSession{}
	err := row.Scan(
		&s.ID,
		&s.RouteID,
		&s.DeliveryUserID,
		&s.AssignmentID,
		&s.CurrentStepIndex,
		&s.Latitude,
		&s.Longitude,
		&s.DistanceRemaining,
		&s.TimeRemaining,
		&s.OffRoute,
		&s.RerouteCount,
		&s.IsActive,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan navigation session: %w", err)
	}
	return s, nil
}

// CreateSession inserts a new active session at step zero.
func (r *Repository) CreateSession(ctx context.Context, session *models.NavigationSession) (*models.NavigationSession, error) {
	query := `
		INSERT INTO navigation_sessions
			(id, route_id, delivery_user_id, assignment_id, current_step_index, latitude, longitude, distance_remaining, time_remaining, is_active)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, TRUE)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.db.QueryRow(ctx, query,
		uuid.NewString(), session.RouteID, session.DeliveryUserID, session.AssignmentID,
		session.Latitude, session.Longitude, session.DistanceRemaining, session.TimeRemaining))
	if err != nil {
		return nil, fmt.Errorf("repository.CreateSession: %w", err)
	}
	return created, nil
}

// FindSession retrieves a session by ID.
func (r *Repository) FindSession(ctx context.Context, sessionID string) (*models.NavigationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM navigation_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindSession: %w", err)
	}
	return s, nil
}

// FindActiveSessionByAssignment retrieves the live session for an assignment.
func (r *Repository) FindActiveSessionByAssignment(ctx context.Context, assignmentID string) (*models.NavigationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM navigation_sessions WHERE assignment_id = $1 AND is_active LIMIT 1`
	s, err := scanSession(r.db.QueryRow(ctx, query, assignmentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindActiveSessionByAssignment: %w", err)
	}
	return s, nil
}

// UpdateSessionProgress writes the mutable progress fields back.
func (r *Repository) UpdateSessionProgress(ctx context.Context, session *models.NavigationSession) error {
	query := `
		UPDATE navigation_sessions
		SET route_id = $1, current_step_index = $2, latitude = $3, longitude = $4,
		    distance_remaining = $5, time_remaining = $6, off_route = $7, reroute_count = $8,
		    updated_at = NOW()
		WHERE id = $9 AND is_active`

	cmdTag, err := r.db.Exec(ctx, query,
		session.RouteID, session.CurrentStepIndex, session.Latitude, session.Longitude,
		session.DistanceRemaining, session.TimeRemaining, session.OffRoute, session.RerouteCount,
		session.ID)
	if err != nil {
		return fmt.Errorf("repository.UpdateSessionProgress: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrSessionInactive
	}
	return nil
}

// UpdateSessionETA refreshes time_remaining without touching any of the
// progress columns, so it can run alongside UpdateSessionProgress safely.
func (r *Repository) UpdateSessionETA(ctx context.Context, sessionID string, etaSeconds int) error {
	query := `
		UPDATE navigation_sessions
		SET time_remaining = $1, updated_at = NOW()
		WHERE id = $2 AND is_active`

	cmdTag, err := r.db.Exec(ctx, query, etaSeconds, sessionID)
	if err != nil {
		return fmt.Errorf("repository.UpdateSessionETA: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrSessionInactive
	}
	return nil
}

// StopSession marks a session inactive and records completion.
func (r *Repository) StopSession(ctx context.Context, sessionID string, completedAt time.Time) error {
	query := `
		UPDATE navigation_sessions
		SET is_active = FALSE, completed_at = $1, updated_at = NOW()
		WHERE id = $2 AND is_active`

	cmdTag, err := r.db.Exec(ctx, query, completedAt, sessionID)
	if err != nil {
		return fmt.Errorf("repository.StopSession: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Already stopped or never existed; stopping is idempotent but a
		// missing row is still worth surfacing.
		var exists bool
		if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM navigation_sessions WHERE id = $1)", sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("repository.StopSession existence check: %w", err)
		}
		if !exists {
			return models.ErrNotFound
		}
	}
	return nil
}

// SaveRoute persists a computed route.
func (r *Repository) SaveRoute(ctx context.Context, route *models.Route) (*models.Route, error) {
	steps, err := json.Marshal(route.Steps)
	if err != nil {
		return nil, fmt.Errorf("repository.SaveRoute marshal steps: %w", err)
	}

	query := `
		INSERT INTO routes (id, assignment_id, polyline, steps, distance_meters, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err = r.db.QueryRow(ctx, query, uuid.NewString(), route.AssignmentID, route.Polyline, steps, route.DistanceMeters, route.DurationSeconds).
		Scan(&route.ID, &route.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository.SaveRoute: %w", err)
	}
	return route, nil
}

// FindRoute retrieves a route by ID.
func (r *Repository) FindRoute(ctx context.Context, routeID string) (*models.Route, error) {
	query := `
		SELECT id, assignment_id, polyline, steps, distance_meters, duration_seconds, created_at
		FROM routes
		WHERE id = $1`

	route := &models.Route{}
	var steps []byte
	err := r.db.QueryRow(ctx, query, routeID).Scan(
		&route.ID, &route.AssignmentID, &route.Polyline, &steps,
		&route.DistanceMeters, &route.DurationSeconds, &route.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindRoute: %w", err)
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &route.Steps); err != nil {
			return nil, fmt.Errorf("repository.FindRoute decode steps: %w", err)
		}
	}
	return route, nil
}

// AssignmentParties resolves the users tied to a delivery assignment.
func (r *Repository) AssignmentParties(ctx context.Context, assignmentID string) (driverID, customerID string, restaurantID *string, err error) {
	query := `
		SELECT da.delivery_user_id, o.customer_id, o.restaurant_id
		FROM delivery_assignments da
		JOIN orders o ON o.id = da.order_id
		WHERE da.id = $1`

	err = r.db.QueryRow(ctx, query, assignmentID).Scan(&driverID, &customerID, &restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil, models.ErrNotFound
		}
		return "", "", nil, fmt.Errorf("repository.AssignmentParties: %w", err)
	}
	return driverID, customerID, restaurantID, nil
}
