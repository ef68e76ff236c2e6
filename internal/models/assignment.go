package models

import "time"

// AssignmentStatus covers both restaurant and delivery assignment rows.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentRejected  AssignmentStatus = "rejected"
	AssignmentCancelled AssignmentStatus = "cancelled"
	AssignmentPickedUp  AssignmentStatus = "picked_up"
	AssignmentOnTheWay  AssignmentStatus = "on_the_way"
	AssignmentDelivered AssignmentStatus = "delivered"
	AssignmentExpired   AssignmentStatus = "expired"
)

// RestaurantAssignment is a candidate pairing of an order to one restaurant,
// used while the order is unclaimed. At most one assignment per order may be
// accepted; accepting one cancels its pending siblings.
type RestaurantAssignment struct {
	ID           string           `json:"id"`
	OrderID      string           `json:"order_id"`
	RestaurantID string           `json:"restaurant_id"`
	Status       AssignmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DeliveryAssignment pairs an accepted order with one delivery driver.
type DeliveryAssignment struct {
	ID                string           `json:"id"`
	OrderID           string           `json:"order_id"`
	RestaurantID      string           `json:"restaurant_id"`
	DeliveryUserID    string           `json:"delivery_user_id"`
	Status            AssignmentStatus `json:"status"`
	PriorityScore     float64          `json:"priority_score"`
	ExpiresAt         time.Time        `json:"expires_at"`
	AutoAssigned      bool             `json:"auto_assigned"`
	AssignmentAttempt int              `json:"assignment_attempt"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// HistoryAction is the lifecycle event recorded in the assignment audit log.
type HistoryAction string

const (
	HistoryAssigned   HistoryAction = "assigned"
	HistoryAccepted   HistoryAction = "accepted"
	HistoryRejected   HistoryAction = "rejected"
	HistoryExpired    HistoryAction = "expired"
	HistoryReassigned HistoryAction = "reassigned"
)

// HistoryMetadata carries the per-action details of a history entry. Each
// action populates only the fields it needs; the struct marshals to JSONB.
type HistoryMetadata struct {
	Reason           string `json:"reason,omitempty"`
	ManualAssignment bool   `json:"manual_assignment,omitempty"`
	Attempt          int    `json:"attempt,omitempty"`
	PreviousDriverID string `json:"previous_driver_id,omitempty"`
}

// AssignmentHistory is one append-only audit record. Rows are only ever
// inserted, never updated.
type AssignmentHistory struct {
	ID             string          `json:"id"`
	AssignmentID   string          `json:"assignment_id"`
	OrderID        string          `json:"order_id"`
	DeliveryUserID string          `json:"delivery_user_id,omitempty"`
	Action         HistoryAction   `json:"action"`
	Metadata       HistoryMetadata `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DriverAvailability tracks whether a driver can take more deliveries.
type DriverAvailability struct {
	DeliveryUserID          string    `json:"delivery_user_id"`
	IsAvailable             bool      `json:"is_available"`
	CurrentDeliveryCount    int       `json:"current_delivery_count"`
	MaxConcurrentDeliveries int       `json:"max_concurrent_deliveries"`
	Latitude                float64   `json:"latitude"`
	Longitude               float64   `json:"longitude"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// AssignmentResult is the outcome of a dispatch attempt. A driver being
// unavailable or at capacity is an expected outcome, not an error, so it is
// reported here rather than through the error return.
type AssignmentResult struct {
	Success    bool                `json:"success"`
	Reason     string              `json:"reason,omitempty"`
	Assignment *DeliveryAssignment `json:"assignment,omitempty"`
}

// ManualAssignRequest is the body for manually dispatching a driver.
type ManualAssignRequest struct {
	OrderID       string `json:"order_id" validate:"required,uuid"`
	RestaurantID  string `json:"restaurant_id" validate:"required,uuid"`
	DriverID      string `json:"driver_id" validate:"required,uuid"`
	WindowMinutes int    `json:"window_minutes" validate:"omitempty,min=1,max=120"`
}

// AssignmentResponseRequest is the body a driver sends to accept or reject
// a delivery assignment.
type AssignmentResponseRequest struct {
	Response string `json:"response" validate:"required,oneof=accept reject"`
	Reason   string `json:"reason,omitempty"`
}

// RejectAssignmentRequest is the body a restaurant sends when declining an order.
type RejectAssignmentRequest struct {
	Reason string `json:"reason,omitempty"`
}
