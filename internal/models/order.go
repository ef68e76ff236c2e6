package models

import (
	"time"
)

// OrderStatus is the closed set of states an order moves through. String
// values match the column values in the orders table.
type OrderStatus string

const (
	StatusPending              OrderStatus = "pending"
	StatusAwaitingRestaurant   OrderStatus = "awaiting_restaurant"
	StatusRestaurantAssigned   OrderStatus = "restaurant_assigned"
	StatusRestaurantAccepted   OrderStatus = "restaurant_accepted"
	StatusPreparing            OrderStatus = "preparing"
	StatusReadyForPickup       OrderStatus = "ready_for_pickup"
	StatusOnTheWay             OrderStatus = "on_the_way"
	StatusDelivered            OrderStatus = "delivered"
	StatusCancelled            OrderStatus = "cancelled"
	StatusRefunded             OrderStatus = "refunded"
	StatusRestaurantRejected   OrderStatus = "restaurant_rejected"
	StatusNoRestaurantAccepted OrderStatus = "no_restaurant_accepted"
)

// Order represents one customer purchase.
type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customer_id"`
	RestaurantID    *string     `json:"restaurant_id,omitempty"` // nil until a restaurant accepts
	Status          OrderStatus `json:"status"`
	DeliveryAddress string      `json:"delivery_address"`
	Total           float64     `json:"total"`
	Items           []OrderItem `json:"items"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order. Stored as JSONB on the orders row.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// CreateOrderRequest is the body for placing a new order.
type CreateOrderRequest struct {
	DeliveryAddress string      `json:"delivery_address" validate:"required,min=10"`
	Items           []OrderItem `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusRequest is the body for moving an order to a new status.
// The status value may be an alias (e.g. "ready"); it is canonicalized
// before validation.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
