package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"food-dispatch/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

type fakeRepo struct {
	customerID   string
	restaurantID *string
	orderExists  bool

	lat, lng    *float64
	locationErr error
}

func (f *fakeRepo) OrderParties(ctx context.Context, orderID string) (string, *string, error) {
	if !f.orderExists {
		return "", nil, models.ErrNotFound
	}
	return f.customerID, f.restaurantID, nil
}

func (f *fakeRepo) DriverLocationForOrder(ctx context.Context, orderID string) (*float64, *float64, error) {
	if f.locationErr != nil {
		return nil, nil, f.locationErr
	}
	if f.lat == nil {
		return nil, nil, models.ErrNotFound
	}
	return f.lat, f.lng, nil
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := &models.JwtCustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// downstream captures forwarded payloads.
type downstream struct {
	server   *httptest.Server
	received []models.RestaurantStatusPayload
	status   int
}

func newDownstream(t *testing.T, status int) *downstream {
	d := &downstream{status: status}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload models.RestaurantStatusPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode forwarded payload: %v", err)
		}
		d.received = append(d.received, payload)
		w.WriteHeader(d.status)
	}))
	t.Cleanup(d.server.Close)
	return d
}

func orderEvent(status string) models.StatusChangeEvent {
	return models.StatusChangeEvent{
		Table:        "orders",
		RecordID:     "order-1",
		StatusColumn: "status",
		NewStatus:    status,
		OldStatus:    "preparing",
	}
}

func ptr(v float64) *float64 { return &v }

func TestHandleStatusChange_ForwardsForCustomer(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	restaurantID := "restaurant-1"
	repo := &fakeRepo{orderExists: true, customerID: "customer-1", restaurantID: &restaurantID, lat: ptr(37.77), lng: ptr(-122.41)}
	svc := NewService(repo, testSecret, sink.server.URL)

	err := svc.HandleStatusChange(context.Background(), signToken(t, "customer-1"), orderEvent("on_the_way"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.received) != 1 {
		t.Fatalf("forwarded %d payloads, want 1", len(sink.received))
	}
	got := sink.received[0]
	if got.OrderID != "order-1" || got.Status != "on_the_way" || got.Action != "track" {
		t.Errorf("payload = %+v", got)
	}
	if got.Latitude == nil || *got.Latitude != 37.77 {
		t.Errorf("latitude = %v, want 37.77", got.Latitude)
	}
}

func TestHandleStatusChange_AllowsOwningRestaurant(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	restaurantID := "restaurant-1"
	repo := &fakeRepo{orderExists: true, customerID: "customer-1", restaurantID: &restaurantID}
	svc := NewService(repo, testSecret, sink.server.URL)

	if err := svc.HandleStatusChange(context.Background(), signToken(t, "restaurant-1"), orderEvent("ready")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.received) != 1 {
		t.Fatalf("forwarded %d payloads, want 1", len(sink.received))
	}
	if sink.received[0].Action != "handoff" {
		t.Errorf("action = %q, want handoff", sink.received[0].Action)
	}
}

func TestHandleStatusChange_RejectsStranger(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	restaurantID := "restaurant-1"
	repo := &fakeRepo{orderExists: true, customerID: "customer-1", restaurantID: &restaurantID}
	svc := NewService(repo, testSecret, sink.server.URL)

	err := svc.HandleStatusChange(context.Background(), signToken(t, "someone-else"), orderEvent("delivered"))
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	if len(sink.received) != 0 {
		t.Errorf("forwarded %d payloads, want 0", len(sink.received))
	}
}

func TestHandleStatusChange_RejectsBadToken(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	repo := &fakeRepo{orderExists: true, customerID: "customer-1"}
	svc := NewService(repo, testSecret, sink.server.URL)

	for _, token := range []string{"", "not.a.token"} {
		err := svc.HandleStatusChange(context.Background(), token, orderEvent("delivered"))
		if !errors.Is(err, models.ErrInvalidCredentials) {
			t.Errorf("token %q: error = %v, want ErrInvalidCredentials", token, err)
		}
	}
	if len(sink.received) != 0 {
		t.Errorf("forwarded %d payloads, want 0", len(sink.received))
	}
}

func TestHandleStatusChange_IgnoresUnwatchedTables(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	svc := NewService(&fakeRepo{}, testSecret, sink.server.URL)

	event := models.StatusChangeEvent{Table: "drivers", RecordID: "d-1", StatusColumn: "status", NewStatus: "idle"}
	if err := svc.HandleStatusChange(context.Background(), "", event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.received) != 0 {
		t.Errorf("forwarded %d payloads, want 0", len(sink.received))
	}
}

func TestHandleStatusChange_NoActiveSessionOmitsCoordinates(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	repo := &fakeRepo{orderExists: true, customerID: "customer-1"}
	svc := NewService(repo, testSecret, sink.server.URL)

	if err := svc.HandleStatusChange(context.Background(), signToken(t, "customer-1"), orderEvent("preparing")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := sink.received[0]
	if got.Latitude != nil || got.Longitude != nil {
		t.Errorf("payload carries coordinates %v,%v without an active session", got.Latitude, got.Longitude)
	}
	if got.Action != "prepare" {
		t.Errorf("action = %q, want prepare", got.Action)
	}
}

func TestHandleStatusChange_DownstreamFailure(t *testing.T) {
	sink := newDownstream(t, http.StatusBadGateway)
	repo := &fakeRepo{orderExists: true, customerID: "customer-1"}
	svc := NewService(repo, testSecret, sink.server.URL)

	err := svc.HandleStatusChange(context.Background(), signToken(t, "customer-1"), orderEvent("delivered"))
	if err == nil {
		t.Fatal("expected an error when the downstream rejects the forward")
	}
}

func TestHandleStatusChange_UnknownOrder(t *testing.T) {
	sink := newDownstream(t, http.StatusOK)
	svc := NewService(&fakeRepo{orderExists: false}, testSecret, sink.server.URL)

	err := svc.HandleStatusChange(context.Background(), signToken(t, "customer-1"), orderEvent("delivered"))
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if len(sink.received) != 0 {
		t.Errorf("forwarded %d payloads, want 0", len(sink.received))
	}
}
