package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/notify"
)

// ServiceInterface defines the contract for the order service.
type ServiceInterface interface {
	CreateOrder(ctx context.Context, customerID string, req models.CreateOrderRequest) (*models.Order, error)
	GetOrderDetails(ctx context.Context, orderID, userID string, role models.Role) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error)
	ListRestaurantOrders(ctx context.Context, restaurantID string, page, limit int) ([]*models.Order, int, error)
	// UpdateStatus validates the requested transition and applies it with a
	// compare-and-swap. rawStatus may be an alias; it is canonicalized first.
	// The caller must be the order's restaurant or its assigned driver, and
	// each role may only set the statuses it owns.
	UpdateStatus(ctx context.Context, orderID, userID string, role models.Role, rawStatus string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, customerID string) error
}

// Service implements the order service logic.
type Service struct {
	repo     RepositoryInterface
	notifier notify.Notifier
}

// NewService creates a new order service.
func NewService(repo RepositoryInterface, notifier notify.Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// CreateOrder creates a new pending order for a customer. The total is
// computed server-side from the submitted items.
func (s *Service) CreateOrder(ctx context.Context, customerID string, req models.CreateOrderRequest) (*models.Order, error) {
	var total float64
	for _, item := range req.Items {
		total += item.Price * float64(item.Quantity)
	}

	order, err := s.repo.Create(ctx, customerID, req, total)
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}
	return order, nil
}

// GetOrderDetails retrieves a single order, enforcing ownership: customers
// see their own orders, restaurants the ones assigned to them.
func (s *Service) GetOrderDetails(ctx context.Context, orderID, userID string, role models.Role) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrderDetails: %w", err)
	}

	switch role {
	case models.RoleCustomer:
		if order.CustomerID != userID {
			return nil, models.ErrNotFound // avoid leaking existence
		}
	case models.RoleRestaurant:
		if order.RestaurantID == nil || *order.RestaurantID != userID {
			return nil, models.ErrNotFound
		}
	}
	return order, nil
}

// ListCustomerOrders retrieves all orders for a customer.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error) {
	orders, total, err := s.repo.ListByCustomer(ctx, customerID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListCustomerOrders: %w", err)
	}
	return orders, total, nil
}

// ListRestaurantOrders retrieves all orders assigned to a restaurant.
func (s *Service) ListRestaurantOrders(ctx context.Context, restaurantID string, page, limit int) ([]*models.Order, int, error) {
	orders, total, err := s.repo.ListByRestaurant(ctx, restaurantID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListRestaurantOrders: %w", err)
	}
	return orders, total, nil
}

// roleSettableStatuses maps each role to the statuses it may set through the
// public endpoint. Restaurant acceptance and rejection go through the handoff
// flow, and customers cancel through CancelOrder, so neither appears here.
var roleSettableStatuses = map[models.Role]map[models.OrderStatus]bool{
	models.RoleRestaurant: {
		models.StatusPreparing:      true,
		models.StatusReadyForPickup: true,
	},
	models.RoleDriver: {
		models.StatusOnTheWay:  true,
		models.StatusDelivered: true,
	},
}

// UpdateStatus moves an order through the state machine on behalf of one of
// its parties. Validation happens before any write, and the write itself
// re-checks the current status, so a concurrent transition loses cleanly
// instead of clobbering.
func (s *Service) UpdateStatus(ctx context.Context, orderID, userID string, role models.Role, rawStatus string) (*models.Order, error) {
	next, ok := CanonicalStatus(rawStatus)
	if !ok {
		return nil, models.ErrInvalidTransition
	}
	if !roleSettableStatuses[role][next] {
		return nil, models.ErrForbidden
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}

	switch role {
	case models.RoleRestaurant:
		if order.RestaurantID == nil || *order.RestaurantID != userID {
			return nil, models.ErrNotFound // avoid leaking existence
		}
	case models.RoleDriver:
		assigned, err := s.repo.DriverAssignedToOrder(ctx, orderID, userID)
		if err != nil {
			return nil, fmt.Errorf("service.UpdateStatus: %w", err)
		}
		if !assigned {
			return nil, models.ErrNotFound
		}
	}

	if !IsValidTransition(order.Status, next) {
		return nil, models.ErrInvalidTransition
	}

	if err := s.repo.UpdateStatusGuarded(ctx, orderID, order.Status, next); err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}

	s.notifyStatusChange(ctx, orderID, order.Status, next)

	order.Status = next
	order.UpdatedAt = time.Now()
	return order, nil
}

// CancelOrder cancels a customer's order. Only pending orders can be
// cancelled; anything already claimed by a restaurant must go through
// support.
func (s *Service) CancelOrder(ctx context.Context, orderID, customerID string) error {
	order, err := s.GetOrderDetails(ctx, orderID, customerID, models.RoleCustomer)
	if err != nil {
		return err
	}

	if order.Status != models.StatusPending {
		return models.ErrOrderCannotBeCancelled
	}

	if err := s.repo.UpdateStatusGuarded(ctx, orderID, models.StatusPending, models.StatusCancelled); err != nil {
		return fmt.Errorf("service.CancelOrder: %w", err)
	}

	s.notifyStatusChange(ctx, orderID, order.Status, models.StatusCancelled)
	return nil
}

// notifyStatusChange fans the transition out to the configured sinks.
// Notification is audit/UX only; failures never affect the transition.
func (s *Service) notifyStatusChange(ctx context.Context, orderID string, from, to models.OrderStatus) {
	email, err := s.repo.CustomerEmail(ctx, orderID)
	if err != nil {
		log.Printf("Could not resolve customer email for order %s: %v", orderID, err)
	}
	s.notifier.NotifyStatusChange(ctx, email, notify.StatusEvent{
		OrderID:    orderID,
		OldStatus:  from,
		NewStatus:  to,
		OccurredAt: time.Now(),
	})
}
