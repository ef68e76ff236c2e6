package orders

import (
	"context"
	"errors"
	"testing"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/notify"
)

// fakeOrderRepo is an in-memory order store with the same compare-and-swap
// semantics as the SQL implementation.
type fakeOrderRepo struct {
	orders  map[string]*models.Order
	emails  map[string]string
	drivers map[string]string // order id -> assigned driver id
	writes  int

	// afterFind runs once after the next FindByID, between the service's
	// read and its guarded write. Lets tests interleave a concurrent writer.
	afterFind func()
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  make(map[string]*models.Order),
		emails:  make(map[string]string),
		drivers: make(map[string]string),
	}
}

func (f *fakeOrderRepo) add(order *models.Order) {
	f.orders[order.ID] = order
	f.emails[order.ID] = order.CustomerID + "@example.com"
}

func (f *fakeOrderRepo) Create(ctx context.Context, customerID string, req models.CreateOrderRequest, total float64) (*models.Order, error) {
	order := &models.Order{
		ID:              "order-created",
		CustomerID:      customerID,
		Status:          models.StatusPending,
		DeliveryAddress: req.DeliveryAddress,
		Total:           total,
		Items:           req.Items,
	}
	f.add(order)
	return order, nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *order
	if f.afterFind != nil {
		hook := f.afterFind
		f.afterFind = nil
		hook()
	}
	return &copied, nil
}

func (f *fakeOrderRepo) ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrderRepo) ListByRestaurant(ctx context.Context, restaurantID string, page, limit int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.RestaurantID != nil && *o.RestaurantID == restaurantID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrderRepo) UpdateStatusGuarded(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	order, ok := f.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	if order.Status != from {
		return models.ErrInvalidTransition
	}
	order.Status = to
	f.writes++
	return nil
}

func (f *fakeOrderRepo) CustomerEmail(ctx context.Context, orderID string) (string, error) {
	email, ok := f.emails[orderID]
	if !ok {
		return "", models.ErrNotFound
	}
	return email, nil
}

func (f *fakeOrderRepo) DriverAssignedToOrder(ctx context.Context, orderID, driverID string) (bool, error) {
	return f.drivers[orderID] == driverID, nil
}

func pendingOrder(id, customerID string) *models.Order {
	return &models.Order{ID: id, CustomerID: customerID, Status: models.StatusPending}
}

// claimedOrder is an order already accepted by restaurant-1.
func claimedOrder(id, customerID string, status models.OrderStatus) *models.Order {
	restaurantID := "restaurant-1"
	return &models.Order{ID: id, CustomerID: customerID, RestaurantID: &restaurantID, Status: status}
}

func TestCreateOrder_ComputesTotal(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})

	order, err := svc.CreateOrder(context.Background(), "customer-1", models.CreateOrderRequest{
		DeliveryAddress: "1 Main St",
		Items: []models.OrderItem{
			{Name: "ramen", Quantity: 2, Price: 12.50},
			{Name: "gyoza", Quantity: 1, Price: 6.00},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Total != 31.00 {
		t.Errorf("total = %v, want 31.00", order.Total)
	}
	if order.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", order.Status)
	}
}

func TestUpdateStatus_AliasCanonicalized(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusPreparing))

	updated, err := svc.UpdateStatus(context.Background(), "order-1", "restaurant-1", models.RoleRestaurant, "ready")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.StatusReadyForPickup {
		t.Errorf("status = %s, want %s", updated.Status, models.StatusReadyForPickup)
	}
}

func TestUpdateStatus_InvalidTransitionRejectedBeforeWrite(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusDelivered))

	_, err := svc.UpdateStatus(context.Background(), "order-1", "restaurant-1", models.RoleRestaurant, "preparing")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if repo.writes != 0 {
		t.Errorf("repository saw %d writes for a rejected transition, want 0", repo.writes)
	}

	stored, _ := repo.FindByID(context.Background(), "order-1")
	if stored.Status != models.StatusDelivered {
		t.Errorf("status mutated to %s on a rejected transition", stored.Status)
	}
}

func TestUpdateStatus_UnknownStatusFailsClosed(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusPreparing))

	_, err := svc.UpdateStatus(context.Background(), "order-1", "restaurant-1", models.RoleRestaurant, "teleported")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if repo.writes != 0 {
		t.Errorf("repository saw %d writes for an unknown status, want 0", repo.writes)
	}
}

func TestUpdateStatus_ConcurrentTransitionLoses(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusPreparing))

	// Another writer moves the order between the service's read and its
	// guarded write, so only the compare-and-swap can catch the race.
	repo.afterFind = func() {
		repo.orders["order-1"].Status = models.StatusCancelled
	}

	_, err := svc.UpdateStatus(context.Background(), "order-1", "restaurant-1", models.RoleRestaurant, "ready_for_pickup")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition from the guarded write", err)
	}

	stored, _ := repo.FindByID(context.Background(), "order-1")
	if stored.Status != models.StatusCancelled {
		t.Errorf("status = %s, concurrent winner must be preserved", stored.Status)
	}
}

func TestUpdateStatus_CustomerMayNotDriveTheStateMachine(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusPreparing))

	// Not even the order's own customer; they only get CancelOrder.
	_, err := svc.UpdateStatus(context.Background(), "order-1", "customer-1", models.RoleCustomer, "ready")
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	if repo.writes != 0 {
		t.Errorf("repository saw %d writes from an unauthorized caller, want 0", repo.writes)
	}
}

func TestUpdateStatus_OtherRestaurantSeesNotFound(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusPreparing))

	_, err := svc.UpdateStatus(context.Background(), "order-1", "restaurant-2", models.RoleRestaurant, "ready")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for non-owning restaurant", err)
	}
	if repo.writes != 0 {
		t.Errorf("repository saw %d writes from an unauthorized caller, want 0", repo.writes)
	}
}

func TestUpdateStatus_DriverMustHoldTheAssignment(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(claimedOrder("order-1", "customer-1", models.StatusReadyForPickup))
	repo.drivers["order-1"] = "driver-1"

	_, err := svc.UpdateStatus(context.Background(), "order-1", "driver-2", models.RoleDriver, "on_the_way")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for unassigned driver", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), "order-1", "driver-1", models.RoleDriver, "on_the_way")
	if err != nil {
		t.Fatalf("assigned driver update: %v", err)
	}
	if updated.Status != models.StatusOnTheWay {
		t.Errorf("status = %s, want %s", updated.Status, models.StatusOnTheWay)
	}

	// Drivers never set restaurant-side statuses.
	if _, err := svc.UpdateStatus(context.Background(), "order-1", "driver-1", models.RoleDriver, "preparing"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden for a restaurant-side status", err)
	}
}

func TestCancelOrder_PendingOnly(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(pendingOrder("order-1", "customer-1"))

	if err := svc.CancelOrder(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), "order-1")
	if stored.Status != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}

	claimed := pendingOrder("order-2", "customer-1")
	claimed.Status = models.StatusPreparing
	repo.add(claimed)

	err := svc.CancelOrder(context.Background(), "order-2", "customer-1")
	if !errors.Is(err, models.ErrOrderCannotBeCancelled) {
		t.Fatalf("error = %v, want ErrOrderCannotBeCancelled", err)
	}
}

func TestCancelOrder_StrangerSeesNotFound(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	repo.add(pendingOrder("order-1", "customer-1"))

	err := svc.CancelOrder(context.Background(), "order-1", "customer-2")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetOrderDetails_RestaurantOwnership(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, notify.Noop{})
	restaurantID := "restaurant-1"
	order := pendingOrder("order-1", "customer-1")
	order.RestaurantID = &restaurantID
	repo.add(order)

	if _, err := svc.GetOrderDetails(context.Background(), "order-1", "restaurant-1", models.RoleRestaurant); err != nil {
		t.Fatalf("owning restaurant: %v", err)
	}
	if _, err := svc.GetOrderDetails(context.Background(), "order-1", "restaurant-2", models.RoleRestaurant); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for other restaurant", err)
	}
}
