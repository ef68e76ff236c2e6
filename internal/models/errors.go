package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a write collides with existing state,
	// e.g. signing up with an email that is already registered.
	ErrConflict = errors.New("resource already exists")

	// ErrInvalidTransition is returned when an order status change is not
	// permitted by the transition table. Validation happens before any
	// mutation, so a caller receiving this error can assume nothing was written.
	ErrInvalidTransition = errors.New("order status transition not allowed")

	// ErrAssignmentExpired is returned when a driver tries to accept a
	// delivery assignment whose acceptance window has already passed.
	ErrAssignmentExpired = errors.New("delivery assignment has expired")

	// ErrAssignmentNotPending is returned when a restaurant acts on an
	// assignment that is no longer in the pending state.
	ErrAssignmentNotPending = errors.New("assignment is not pending")

	// ErrSessionInactive is returned when a location update arrives for a
	// navigation session that has been stopped.
	ErrSessionInactive = errors.New("navigation session is not active")

	// ErrOrderCannotBeCancelled is returned when an attempt is made to cancel
	// an order that is no longer in a cancellable state.
	ErrOrderCannotBeCancelled = errors.New("order cannot be cancelled")

	// ErrInvalidCredentials is returned on a failed login. It deliberately
	// does not distinguish an unknown email from a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrForbidden is returned when the authenticated user is not allowed to
	// act on the resource, e.g. a webhook caller that is neither the order's
	// customer nor the owning restaurant.
	ErrForbidden = errors.New("not authorized for this resource")
)
