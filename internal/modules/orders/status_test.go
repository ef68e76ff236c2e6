package orders

import (
	"testing"

	"food-dispatch/internal/models"
)

var allStatuses = []models.OrderStatus{
	models.StatusPending,
	models.StatusAwaitingRestaurant,
	models.StatusRestaurantAssigned,
	models.StatusRestaurantAccepted,
	models.StatusPreparing,
	models.StatusReadyForPickup,
	models.StatusOnTheWay,
	models.StatusDelivered,
	models.StatusCancelled,
	models.StatusRefunded,
	models.StatusRestaurantRejected,
	models.StatusNoRestaurantAccepted,
}

func TestIsValidTransition_Table(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.StatusPending, models.StatusAwaitingRestaurant}:            true,
		{models.StatusPending, models.StatusRestaurantAssigned}:            true,
		{models.StatusPending, models.StatusRestaurantAccepted}:            true,
		{models.StatusPending, models.StatusRestaurantRejected}:            true,
		{models.StatusAwaitingRestaurant, models.StatusRestaurantAccepted}: true,
		{models.StatusAwaitingRestaurant, models.StatusRestaurantRejected}: true,
		{models.StatusRestaurantAssigned, models.StatusRestaurantAccepted}: true,
		{models.StatusRestaurantAssigned, models.StatusRestaurantRejected}: true,
		{models.StatusRestaurantAccepted, models.StatusPreparing}:          true,
		{models.StatusPreparing, models.StatusReadyForPickup}:              true,
		{models.StatusReadyForPickup, models.StatusOnTheWay}:               true,
		{models.StatusOnTheWay, models.StatusDelivered}:                    true,
	}

	// Every (current, next) pair not in the table must be rejected,
	// including all pairs sourced at terminal states.
	for _, current := range allStatuses {
		for _, next := range allStatuses {
			want := allowed[[2]models.OrderStatus{current, next}]
			if got := IsValidTransition(current, next); got != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", current, next, got, want)
			}
		}
	}
}

func TestIsValidTransition_UnknownFailsClosed(t *testing.T) {
	if IsValidTransition("bogus", models.StatusDelivered) {
		t.Error("unknown current status must allow no transitions")
	}
	if IsValidTransition(models.StatusPending, "bogus") {
		t.Error("unknown next status must be rejected")
	}
}

func TestCanonicalStatus_Aliases(t *testing.T) {
	cases := map[string]models.OrderStatus{
		"accepted":   models.StatusRestaurantAccepted,
		"ready":      models.StatusReadyForPickup,
		"delivering": models.StatusOnTheWay,
		"completed":  models.StatusDelivered,
		"rejected":   models.StatusRestaurantRejected,
	}
	for raw, want := range cases {
		got, ok := CanonicalStatus(raw)
		if !ok || got != want {
			t.Errorf("CanonicalStatus(%q) = (%s, %v), want (%s, true)", raw, got, ok, want)
		}
	}
}

func TestCanonicalStatus_AliasBehavesLikeCanonical(t *testing.T) {
	// Validating through an alias must be identical to validating the
	// canonical form.
	alias, _ := CanonicalStatus("ready")
	for _, current := range allStatuses {
		if IsValidTransition(current, alias) != IsValidTransition(current, models.StatusReadyForPickup) {
			t.Errorf("alias 'ready' diverges from ready_for_pickup for current=%s", current)
		}
	}
}

func TestCanonicalStatus_Canonical(t *testing.T) {
	for _, status := range allStatuses {
		got, ok := CanonicalStatus(string(status))
		if !ok || got != status {
			t.Errorf("CanonicalStatus(%q) = (%s, %v), want identity", status, got, ok)
		}
	}
}

func TestCanonicalStatus_Unknown(t *testing.T) {
	if _, ok := CanonicalStatus("teleported"); ok {
		t.Error("unknown status must not canonicalize")
	}
}
