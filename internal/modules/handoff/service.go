package handoff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"food-dispatch/internal/models"
	"food-dispatch/internal/modules/orders"
	"food-dispatch/pkg/geo"
	"food-dispatch/pkg/notify"
)

// ServiceInterface drives the accept/reject lifecycle for restaurant and
// driver assignments, keeping order status, assignment status, and audit
// history consistent.
type ServiceInterface interface {
	AcceptRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID string) error
	RejectRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID, reason string) error
	HandleAssignmentResponse(ctx context.Context, assignmentID, driverID, response, reason string) error
	ManuallyAssignDelivery(ctx context.Context, orderID, restaurantID, driverID string, windowMinutes int) (*models.AssignmentResult, error)
	AutoAssignDelivery(ctx context.Context, orderID, restaurantID string) (*models.AssignmentResult, error)
	ProcessExpiredAssignments(ctx context.Context) (int, error)
}

// Service implements the handoff orchestration logic.
type Service struct {
	repo          RepositoryInterface
	orderRepo     orders.RepositoryInterface
	notifier      notify.Notifier
	defaultWindow time.Duration
	now           func() time.Time
}

// NewService creates a new handoff service. defaultWindow is how long a
// driver has to respond to an assignment before the sweep reclaims it.
func NewService(repo RepositoryInterface, orderRepo orders.RepositoryInterface, notifier notify.Notifier, defaultWindow time.Duration) *Service {
	return &Service{
		repo:          repo,
		orderRepo:     orderRepo,
		notifier:      notifier,
		defaultWindow: defaultWindow,
		now:           time.Now,
	}
}

// AcceptRestaurantAssignment claims an order for a restaurant. The order
// update, the assignment acceptance, and the cascade-cancel of pending
// siblings commit or roll back together; two restaurants racing for the
// same order cannot both win.
func (s *Service) AcceptRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID string) error {
	// Fetch without a restaurant filter: the order has no restaurant_id yet.
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("service.AcceptRestaurantAssignment: %w", err)
	}

	// Validate before any mutation.
	if !orders.IsValidTransition(order.Status, models.StatusRestaurantAccepted) {
		return models.ErrInvalidTransition
	}

	if err := s.repo.AcceptRestaurantAssignment(ctx, orderID, restaurantID, assignmentID, order.Status); err != nil {
		return fmt.Errorf("service.AcceptRestaurantAssignment: %w", err)
	}

	s.logHistory(ctx, &models.AssignmentHistory{
		AssignmentID: assignmentID,
		OrderID:      orderID,
		Action:       models.HistoryAccepted,
	})
	s.notifyCustomer(ctx, orderID, order.Status, models.StatusRestaurantAccepted)
	return nil
}

// RejectRestaurantAssignment declines an order for a restaurant. When other
// pending candidates remain the order is left untouched; when this was the
// last one, the order moves to no_restaurant_accepted.
func (s *Service) RejectRestaurantAssignment(ctx context.Context, orderID, restaurantID, assignmentID, reason string) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("service.RejectRestaurantAssignment: %w", err)
	}
	if !orders.IsValidTransition(order.Status, models.StatusRestaurantRejected) {
		return models.ErrInvalidTransition
	}

	assignment, err := s.repo.FindRestaurantAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("service.RejectRestaurantAssignment: %w", err)
	}
	if assignment.OrderID != orderID || assignment.RestaurantID != restaurantID {
		return models.ErrNotFound
	}

	remaining, err := s.repo.RejectRestaurantAssignment(ctx, orderID, assignmentID)
	if err != nil {
		return fmt.Errorf("service.RejectRestaurantAssignment: %w", err)
	}

	s.logHistory(ctx, &models.AssignmentHistory{
		AssignmentID: assignmentID,
		OrderID:      orderID,
		Action:       models.HistoryRejected,
		Metadata:     models.HistoryMetadata{Reason: reason},
	})

	if remaining == 0 {
		s.notifyCustomer(ctx, orderID, order.Status, models.StatusNoRestaurantAccepted)
	}
	return nil
}

// HandleAssignmentResponse records a driver's accept or reject of a delivery
// assignment. A reject frees the driver's slot and immediately tries to
// re-dispatch the order; it also kicks the expiry sweep so other stale
// assignments get reclaimed at the same time.
func (s *Service) HandleAssignmentResponse(ctx context.Context, assignmentID, driverID, response, reason string) error {
	assignment, err := s.repo.FindDeliveryAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("service.HandleAssignmentResponse: %w", err)
	}

	switch response {
	case "accept":
		if err := s.repo.AcceptDeliveryAssignment(ctx, assignmentID, driverID); err != nil {
			return fmt.Errorf("service.HandleAssignmentResponse: %w", err)
		}
		s.logHistory(ctx, &models.AssignmentHistory{
			AssignmentID:   assignmentID,
			OrderID:        assignment.OrderID,
			DeliveryUserID: driverID,
			Action:         models.HistoryAccepted,
		})
		return nil

	case "reject":
		if err := s.repo.RejectDeliveryAssignment(ctx, assignmentID, driverID); err != nil {
			return fmt.Errorf("service.HandleAssignmentResponse: %w", err)
		}
		s.logHistory(ctx, &models.AssignmentHistory{
			AssignmentID:   assignmentID,
			OrderID:        assignment.OrderID,
			DeliveryUserID: driverID,
			Action:         models.HistoryRejected,
			Metadata:       models.HistoryMetadata{Reason: reason},
		})

		// Re-dispatch: another driver for this order, then the stale sweep.
		result, err := s.autoAssign(ctx, assignment.OrderID, assignment.RestaurantID, assignment.AssignmentAttempt+1, driverID)
		if err != nil {
			log.Printf("Re-dispatch after rejection of assignment %s failed: %v", assignmentID, err)
		} else if !result.Success {
			log.Printf("Re-dispatch after rejection of assignment %s: %s", assignmentID, result.Reason)
		}
		if _, err := s.ProcessExpiredAssignments(ctx); err != nil {
			log.Printf("Expiry sweep after rejection of assignment %s failed: %v", assignmentID, err)
		}
		return nil

	default:
		return fmt.Errorf("service.HandleAssignmentResponse: unknown response %q", response)
	}
}

// ManuallyAssignDelivery dispatches a specific driver chosen by an operator.
// An unavailable or fully loaded driver is a normal outcome, reported in the
// result rather than as an error, and leaves no state behind.
func (s *Service) ManuallyAssignDelivery(ctx context.Context, orderID, restaurantID, driverID string, windowMinutes int) (*models.AssignmentResult, error) {
	window := s.defaultWindow
	if windowMinutes > 0 {
		window = time.Duration(windowMinutes) * time.Minute
	}

	availability, err := s.repo.GetDriverAvailability(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("service.ManuallyAssignDelivery: %w", err)
	}
	if !availability.IsAvailable {
		return &models.AssignmentResult{Success: false, Reason: "driver is not available"}, nil
	}
	if availability.CurrentDeliveryCount >= availability.MaxConcurrentDeliveries {
		return &models.AssignmentResult{Success: false, Reason: "driver is at max concurrent deliveries"}, nil
	}

	created, ok, err := s.repo.CreateDeliveryAssignment(ctx, &models.DeliveryAssignment{
		OrderID:           orderID,
		RestaurantID:      restaurantID,
		DeliveryUserID:    driverID,
		PriorityScore:     0,
		ExpiresAt:         s.now().Add(window),
		AutoAssigned:      false,
		AssignmentAttempt: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("service.ManuallyAssignDelivery: %w", err)
	}
	if !ok {
		// Lost the slot between the check and the claim.
		return &models.AssignmentResult{Success: false, Reason: "driver is at max concurrent deliveries"}, nil
	}

	s.logHistory(ctx, &models.AssignmentHistory{
		AssignmentID:   created.ID,
		OrderID:        orderID,
		DeliveryUserID: driverID,
		Action:         models.HistoryAssigned,
		Metadata:       models.HistoryMetadata{ManualAssignment: true},
	})
	return &models.AssignmentResult{Success: true, Assignment: created}, nil
}

// AutoAssignDelivery ranks available drivers and dispatches the best one.
func (s *Service) AutoAssignDelivery(ctx context.Context, orderID, restaurantID string) (*models.AssignmentResult, error) {
	return s.autoAssign(ctx, orderID, restaurantID, 1, "")
}

// autoAssign scores every available driver against the restaurant's pickup
// location (closer and less loaded wins) and walks the ranking until a
// capacity claim succeeds.
func (s *Service) autoAssign(ctx context.Context, orderID, restaurantID string, attempt int, excludeDriverID string) (*models.AssignmentResult, error) {
	drivers, err := s.repo.ListAvailableDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.autoAssign: %w", err)
	}

	restaurantLat, restaurantLng, err := s.repo.RestaurantLocation(ctx, restaurantID)
	haveLocation := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("service.autoAssign: %w", err)
	}

	type candidate struct {
		driver *models.DriverAvailability
		score  float64
	}
	var candidates []candidate
	for _, d := range drivers {
		if d.DeliveryUserID == excludeDriverID {
			continue
		}
		// Lower score wins: meters to the pickup plus a load penalty per
		// delivery already in flight.
		score := float64(d.CurrentDeliveryCount) * 500
		if haveLocation {
			score += geo.HaversineMeters(d.Latitude, d.Longitude, restaurantLat, restaurantLng)
		}
		candidates = append(candidates, candidate{driver: d, score: score})
	}
	if len(candidates) == 0 {
		return &models.AssignmentResult{Success: false, Reason: "no drivers available"}, nil
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score < candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	for _, c := range candidates {
		created, ok, err := s.repo.CreateDeliveryAssignment(ctx, &models.DeliveryAssignment{
			OrderID:           orderID,
			RestaurantID:      restaurantID,
			DeliveryUserID:    c.driver.DeliveryUserID,
			PriorityScore:     c.score,
			ExpiresAt:         s.now().Add(s.defaultWindow),
			AutoAssigned:      true,
			AssignmentAttempt: attempt,
		})
		if err != nil {
			return nil, fmt.Errorf("service.autoAssign: %w", err)
		}
		if !ok {
			continue // driver filled up since listing; try the next one
		}

		action := models.HistoryAssigned
		if attempt > 1 {
			action = models.HistoryReassigned
		}
		s.logHistory(ctx, &models.AssignmentHistory{
			AssignmentID:   created.ID,
			OrderID:        orderID,
			DeliveryUserID: c.driver.DeliveryUserID,
			Action:         action,
			Metadata:       models.HistoryMetadata{Attempt: attempt, PreviousDriverID: excludeDriverID},
		})
		return &models.AssignmentResult{Success: true, Assignment: created}, nil
	}

	return &models.AssignmentResult{Success: false, Reason: "no drivers available"}, nil
}

// ProcessExpiredAssignments reclaims every assignment whose acceptance
// window has passed, releases the drivers' slots, and tries to re-dispatch
// each affected order. Calling it with nothing expired is a no-op; it
// returns how many assignments it expired.
func (s *Service) ProcessExpiredAssignments(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireAssignments(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service.ProcessExpiredAssignments: %w", err)
	}

	for _, assignment := range expired {
		s.logHistory(ctx, &models.AssignmentHistory{
			AssignmentID:   assignment.ID,
			OrderID:        assignment.OrderID,
			DeliveryUserID: assignment.DeliveryUserID,
			Action:         models.HistoryExpired,
			Metadata:       models.HistoryMetadata{Attempt: assignment.AssignmentAttempt},
		})

		result, err := s.autoAssign(ctx, assignment.OrderID, assignment.RestaurantID,
			assignment.AssignmentAttempt+1, assignment.DeliveryUserID)
		if err != nil {
			log.Printf("Reassignment of expired assignment %s failed: %v", assignment.ID, err)
			continue
		}
		if !result.Success {
			log.Printf("Reassignment of expired assignment %s: %s", assignment.ID, result.Reason)
		}
	}
	return len(expired), nil
}

// logHistory appends an audit record. History is audit-only: failures are
// logged and swallowed so the primary operation still succeeds.
func (s *Service) logHistory(ctx context.Context, entry *models.AssignmentHistory) {
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		log.Printf("Failed to append assignment history for order %s (%s): %v", entry.OrderID, entry.Action, err)
	}
}

// notifyCustomer fans a status change out to the notification sinks.
func (s *Service) notifyCustomer(ctx context.Context, orderID string, from, to models.OrderStatus) {
	email, err := s.orderRepo.CustomerEmail(ctx, orderID)
	if err != nil {
		log.Printf("Could not resolve customer email for order %s: %v", orderID, err)
	}
	s.notifier.NotifyStatusChange(ctx, email, notify.StatusEvent{
		OrderID:    orderID,
		OldStatus:  from,
		NewStatus:  to,
		OccurredAt: s.now(),
	})
}
