package orders

import "food-dispatch/internal/models"

// statusAliases maps the human-friendly status strings older clients still
// send to their canonical column values.
var statusAliases = map[string]models.OrderStatus{
	"accepted":   models.StatusRestaurantAccepted,
	"ready":      models.StatusReadyForPickup,
	"delivering": models.StatusOnTheWay,
	"completed":  models.StatusDelivered,
	"rejected":   models.StatusRestaurantRejected,
}

// knownStatuses is the closed set of canonical statuses. Terminal states
// appear here with no outgoing edges in the transition table.
var knownStatuses = map[models.OrderStatus]bool{
	models.StatusPending:              true,
	models.StatusAwaitingRestaurant:   true,
	models.StatusRestaurantAssigned:   true,
	models.StatusRestaurantAccepted:   true,
	models.StatusPreparing:            true,
	models.StatusReadyForPickup:       true,
	models.StatusOnTheWay:             true,
	models.StatusDelivered:            true,
	models.StatusCancelled:            true,
	models.StatusRefunded:             true,
	models.StatusRestaurantRejected:   true,
	models.StatusNoRestaurantAccepted: true,
}

// transitions is the directed edge set of the order state machine. A status
// missing from this map (terminal or unknown) allows no transitions.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending: {
		models.StatusAwaitingRestaurant,
		models.StatusRestaurantAssigned,
		models.StatusRestaurantAccepted,
		models.StatusRestaurantRejected,
	},
	models.StatusAwaitingRestaurant: {
		models.StatusRestaurantAccepted,
		models.StatusRestaurantRejected,
	},
	models.StatusRestaurantAssigned: {
		models.StatusRestaurantAccepted,
		models.StatusRestaurantRejected,
	},
	models.StatusRestaurantAccepted: {models.StatusPreparing},
	models.StatusPreparing:          {models.StatusReadyForPickup},
	models.StatusReadyForPickup:     {models.StatusOnTheWay},
	models.StatusOnTheWay:           {models.StatusDelivered},
}

// CanonicalStatus normalizes a raw status string to its canonical form.
// The second return reports whether the input named a known status at all.
func CanonicalStatus(raw string) (models.OrderStatus, bool) {
	if canonical, ok := statusAliases[raw]; ok {
		return canonical, true
	}
	status := models.OrderStatus(raw)
	if knownStatuses[status] {
		return status, true
	}
	return "", false
}

// IsValidTransition reports whether an order may move from current to next.
// Both inputs must already be canonical; anything unrecognized fails closed.
func IsValidTransition(current, next models.OrderStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}
