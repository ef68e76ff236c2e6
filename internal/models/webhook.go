package models

// StatusChangeEvent is the payload the database realtime channel delivers
// when a watched row's status column changes.
type StatusChangeEvent struct {
	Table        string `json:"table" validate:"required"`
	RecordID     string `json:"record_id" validate:"required"`
	StatusColumn string `json:"status_column" validate:"required"`
	NewStatus    string `json:"new_status" validate:"required"`
	OldStatus    string `json:"old_status"`
}

// RestaurantStatusPayload is the reshaped event forwarded to the configured
// downstream URL.
type RestaurantStatusPayload struct {
	OrderID   string   `json:"order_id"`
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Action    string   `json:"action"`
}
