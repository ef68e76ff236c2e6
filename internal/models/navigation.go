package models

import "time"

// RouteStep is one maneuver of a computed route. Steps are stored as JSONB
// on the routes row in the order they should be driven.
type RouteStep struct {
	EndLatitude     float64 `json:"end_latitude"`
	EndLongitude    float64 `json:"end_longitude"`
	DistanceMeters  int     `json:"distance_meters"`
	DurationSeconds int     `json:"duration_seconds"`
	Instruction     string  `json:"instruction,omitempty"`
}

// Route is a computed path for one delivery assignment.
type Route struct {
	ID              string      `json:"id"`
	AssignmentID    string      `json:"assignment_id"`
	Polyline        string      `json:"polyline"`
	Steps           []RouteStep `json:"steps"`
	DistanceMeters  int         `json:"distance_meters"`
	DurationSeconds int         `json:"duration_seconds"`
	CreatedAt       time.Time   `json:"created_at"`
}

// NavigationSession tracks one driver's live progress along a route.
// CurrentStepIndex never decreases while the session is active except
// through a reroute, which swaps in a new route and resets it to zero.
type NavigationSession struct {
	ID                string     `json:"id"`
	RouteID           string     `json:"route_id"`
	DeliveryUserID    string     `json:"delivery_user_id"`
	AssignmentID      string     `json:"assignment_id"`
	CurrentStepIndex  int        `json:"current_step_index"`
	Latitude          float64    `json:"latitude"`
	Longitude         float64    `json:"longitude"`
	DistanceRemaining int        `json:"distance_remaining"`
	TimeRemaining     int        `json:"time_remaining"`
	OffRoute          bool       `json:"off_route"`
	RerouteCount      int        `json:"reroute_count"`
	IsActive          bool       `json:"is_active"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NavigationUpdate is returned to the driver app after each location report.
type NavigationUpdate struct {
	SessionID   string  `json:"session_id"`
	CurrentStep int     `json:"current_step"`
	Progress    float64 `json:"progress"` // fraction of steps completed, 0..1
	ETASeconds  int     `json:"eta_seconds"`
	OffRoute    bool    `json:"off_route"`
}

// ComputeRouteRequest is the body for requesting a fresh route.
type ComputeRouteRequest struct {
	AssignmentID string  `json:"assignment_id" validate:"required,uuid"`
	OriginLat    float64 `json:"origin_lat" validate:"required,latitude"`
	OriginLng    float64 `json:"origin_lng" validate:"required,longitude"`
	DestLat      float64 `json:"dest_lat" validate:"required,latitude"`
	DestLng      float64 `json:"dest_lng" validate:"required,longitude"`
}

// StartNavigationRequest is the body for opening a navigation session.
type StartNavigationRequest struct {
	RouteID      string `json:"route_id" validate:"required,uuid"`
	AssignmentID string `json:"assignment_id" validate:"required,uuid"`
}

// LocationUpdateRequest is the body of a driver location report.
type LocationUpdateRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
}
