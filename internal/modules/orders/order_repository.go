package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"food-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the order repository.
type RepositoryInterface interface {
	Create(ctx context.Context, customerID string, req models.CreateOrderRequest, total float64) (*models.Order, error)
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error)
	ListByRestaurant(ctx context.Context, restaurantID string, page, limit int) ([]*models.Order, int, error)
	// UpdateStatusGuarded performs a compare-and-swap on the status column.
	// It only writes when the row still carries the expected status, which is
	// what closes the race between two concurrent acceptances.
	UpdateStatusGuarded(ctx context.Context, orderID string, from, to models.OrderStatus) error
	CustomerEmail(ctx context.Context, orderID string) (string, error)
	// DriverAssignedToOrder reports whether the driver holds a live delivery
	// assignment for the order.
	DriverAssignedToOrder(ctx context.Context, orderID, driverID string) (bool, error)
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new order repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `id, customer_id, restaurant_id, status, delivery_address, total, items, created_at, updated_at`

// scanOrder is a helper to scan a row into an Order model.
func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var items []byte
	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.RestaurantID,
		&order.Status,
		&order.DeliveryAddress,
		&order.Total,
		&items,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}
	return &order, nil
}

// Create inserts a new order in the pending state.
func (r *Repository) Create(ctx context.Context, customerID string, req models.CreateOrderRequest, total float64) (*models.Order, error) {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return nil, fmt.Errorf("repository.Create marshal items: %w", err)
	}

	query := `
		INSERT INTO orders (id, customer_id, status, delivery_address, total, items)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING ` + orderColumns

	row := r.db.QueryRow(ctx, query, uuid.NewString(), customerID, req.DeliveryAddress, total, items)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: %w", err)
	}
	return order, nil
}

// FindByID retrieves a single order by its ID.
func (r *Repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return order, nil
}

func (r *Repository) list(ctx context.Context, where, ownerID string, page, limit int) ([]*models.Order, int, error) {
	offset := (page - 1) * limit
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ` + where + ` = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.list.Query: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.list.Scan: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.list.Rows: %w", err)
	}

	var total int
	err = r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE "+where+" = $1", ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.list.Count: %w", err)
	}
	return orders, total, nil
}

// ListByCustomer retrieves a customer's orders with pagination.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error) {
	return r.list(ctx, "customer_id", customerID, page, limit)
}

// ListByRestaurant retrieves a restaurant's orders with pagination.
func (r *Repository) ListByRestaurant(ctx context.Context, restaurantID string, page, limit int) ([]*models.Order, int, error) {
	return r.list(ctx, "restaurant_id", restaurantID, page, limit)
}

// UpdateStatusGuarded moves an order from one status to another only if the
// row still holds the expected current status.
func (r *Repository) UpdateStatusGuarded(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	cmdTag, err := r.db.Exec(ctx, query, to, orderID, from)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatusGuarded: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// The row either disappeared or another writer moved it first.
		var exists bool
		if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", orderID).Scan(&exists); err != nil {
			return fmt.Errorf("repository.UpdateStatusGuarded existence check: %w", err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrInvalidTransition
	}
	return nil
}

// CustomerEmail returns the email address of the order's customer, for
// notification dispatch.
func (r *Repository) CustomerEmail(ctx context.Context, orderID string) (string, error) {
	query := `
		SELECT u.email
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		WHERE o.id = $1`
	var email string
	err := r.db.QueryRow(ctx, query, orderID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("repository.CustomerEmail: %w", err)
	}
	return email, nil
}

// DriverAssignedToOrder checks for an in-flight delivery assignment binding
// the driver to the order. Rejected, cancelled and expired assignments do not
// grant anything.
func (r *Repository) DriverAssignedToOrder(ctx context.Context, orderID, driverID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM delivery_assignments
			WHERE order_id = $1 AND delivery_user_id = $2
			  AND status IN ($3, $4, $5, $6)
		)`
	var assigned bool
	err := r.db.QueryRow(ctx, query, orderID, driverID,
		models.AssignmentAccepted, models.AssignmentPickedUp,
		models.AssignmentOnTheWay, models.AssignmentDelivered).Scan(&assigned)
	if err != nil {
		return false, fmt.Errorf("repository.DriverAssignedToOrder: %w", err)
	}
	return assigned, nil
}
