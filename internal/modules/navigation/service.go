package navigation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/geo"
	"food-dispatch/pkg/routing"
)

// Options holds the navigation tunables. The thresholds are operational
// choices rather than physically derived values, so they stay configurable.
type Options struct {
	// StepAdvanceMeters is how close the driver must be to the current
	// step's endpoint before the session advances to the next step.
	StepAdvanceMeters float64
	// OffRouteCorridorMeters is how far from every remaining step endpoint
	// the driver may drift before being considered off route.
	OffRouteCorridorMeters float64
	// MaxReroutes caps how many times one session may request a fresh route,
	// to avoid reroute storms.
	MaxReroutes int
	// PollInterval is how often the background refresher recomputes ETAs
	// for an active session.
	PollInterval time.Duration
}

// DefaultOptions mirror the values the mobile clients shipped with.
func DefaultOptions() Options {
	return Options{
		StepAdvanceMeters:      50,
		OffRouteCorridorMeters: 100,
		MaxReroutes:            3,
		PollInterval:           5 * time.Second,
	}
}

// ServiceInterface maintains drivers' live progress along computed routes.
type ServiceInterface interface {
	ComputeRoute(ctx context.Context, assignmentID string, originLat, originLng, destLat, destLng float64) (*models.Route, error)
	StartNavigation(ctx context.Context, routeID, driverID, assignmentID string) (*models.NavigationSession, error)
	UpdateLocation(ctx context.Context, sessionID, driverID string, lat, lng float64) (*models.NavigationUpdate, error)
	StopNavigation(ctx context.Context, sessionID, driverID string) error
	GetSession(ctx context.Context, sessionID string) (*models.NavigationSession, error)
	ActiveSessionForAssignment(ctx context.Context, assignmentID string) (*models.NavigationSession, error)
	AuthorizeStream(ctx context.Context, assignmentID, userID string) error
}

// Service implements the navigation logic. It owns one background refresher
// per active session; Close releases them all.
type Service struct {
	repo   RepositoryInterface
	router routing.Provider
	opts   Options

	mu       sync.Mutex
	watchers map[string]chan struct{} // session id -> done channel
	wg       sync.WaitGroup
}

// NewService creates a new navigation service.
func NewService(repo RepositoryInterface, router routing.Provider, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	return &Service{
		repo:     repo,
		router:   router,
		opts:     opts,
		watchers: make(map[string]chan struct{}),
	}
}

// ComputeRoute asks the routing provider for a route and persists it.
func (s *Service) ComputeRoute(ctx context.Context, assignmentID string, originLat, originLng, destLat, destLng float64) (*models.Route, error) {
	route, err := s.router.GetRoute(ctx, originLat, originLng, destLat, destLng)
	if err != nil {
		return nil, fmt.Errorf("service.ComputeRoute: %w", err)
	}
	route.AssignmentID = assignmentID

	saved, err := s.repo.SaveRoute(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("service.ComputeRoute: %w", err)
	}
	return saved, nil
}

// StartNavigation opens a session at step zero and registers its background
// refresher.
func (s *Service) StartNavigation(ctx context.Context, routeID, driverID, assignmentID string) (*models.NavigationSession, error) {
	route, err := s.repo.FindRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.StartNavigation: %w", err)
	}

	session, err := s.repo.CreateSession(ctx, &models.NavigationSession{
		RouteID:           routeID,
		DeliveryUserID:    driverID,
		AssignmentID:      assignmentID,
		DistanceRemaining: route.DistanceMeters,
		TimeRemaining:     route.DurationSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("service.StartNavigation: %w", err)
	}

	s.startWatcher(session.ID)
	return session, nil
}

// UpdateLocation processes one driver location report.
func (s *Service) UpdateLocation(ctx context.Context, sessionID, driverID string, lat, lng float64) (*models.NavigationUpdate, error) {
	session, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateLocation: %w", err)
	}
	if session.DeliveryUserID != driverID {
		return nil, models.ErrNotFound
	}
	if !session.IsActive {
		return nil, models.ErrSessionInactive
	}

	route, err := s.repo.FindRoute(ctx, session.RouteID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateLocation: %w", err)
	}

	session.Latitude = lat
	session.Longitude = lng

	// Advance the step index when the driver reaches the current step's
	// endpoint. The index only moves forward; reroutes reset it by swapping
	// in a whole new route below.
	if session.CurrentStepIndex < len(route.Steps) {
		step := route.Steps[session.CurrentStepIndex]
		if geo.IsWithinRadius(lat, lng, step.EndLatitude, step.EndLongitude, s.opts.StepAdvanceMeters) {
			session.CurrentStepIndex++
		}
	}

	s.detectOffRoute(session, route, lat, lng)

	// Recompute the traffic-aware ETA to the destination. Routing-provider
	// errors leave the previous values in place; a live session with stale
	// data beats a dead one.
	if dest, ok := routeDestination(route); ok {
		eta, err := s.router.GetETA(ctx, lat, lng, dest.EndLatitude, dest.EndLongitude)
		if err != nil {
			log.Printf("ETA refresh failed for session %s: %v", session.ID, err)
		} else {
			session.TimeRemaining = eta
		}
	}
	session.DistanceRemaining = remainingDistance(route, session.CurrentStepIndex)

	if session.OffRoute && session.RerouteCount < s.opts.MaxReroutes {
		s.reroute(ctx, session, route)
		route, err = s.repo.FindRoute(ctx, session.RouteID)
		if err != nil {
			return nil, fmt.Errorf("service.UpdateLocation: %w", err)
		}
	}

	if err := s.repo.UpdateSessionProgress(ctx, session); err != nil {
		return nil, fmt.Errorf("service.UpdateLocation: %w", err)
	}

	progress := 0.0
	if len(route.Steps) > 0 {
		progress = float64(session.CurrentStepIndex) / float64(len(route.Steps))
		if progress > 1 {
			progress = 1
		}
	}
	return &models.NavigationUpdate{
		SessionID:   session.ID,
		CurrentStep: session.CurrentStepIndex,
		Progress:    progress,
		ETASeconds:  session.TimeRemaining,
		OffRoute:    session.OffRoute,
	}, nil
}

// detectOffRoute flags the session when the driver is outside the corridor
// around every remaining step endpoint.
func (s *Service) detectOffRoute(session *models.NavigationSession, route *models.Route, lat, lng float64) {
	if len(route.Steps) == 0 {
		return
	}
	// The just-passed endpoint still counts: a driver sitting on it is on
	// route even though the index has already moved forward.
	start := session.CurrentStepIndex - 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(route.Steps); i++ {
		step := route.Steps[i]
		if geo.IsWithinRadius(lat, lng, step.EndLatitude, step.EndLongitude, s.opts.OffRouteCorridorMeters) {
			session.OffRoute = false
			return
		}
	}
	session.OffRoute = true
}

// reroute requests a fresh route from the driver's position to the original
// destination and swaps it into the session. Provider failures leave the
// session on the stale route with the off_route flag still set.
func (s *Service) reroute(ctx context.Context, session *models.NavigationSession, route *models.Route) {
	dest, ok := routeDestination(route)
	if !ok {
		return
	}

	fresh, err := s.router.GetRoute(ctx, session.Latitude, session.Longitude, dest.EndLatitude, dest.EndLongitude)
	if err != nil {
		log.Printf("Reroute failed for session %s: %v", session.ID, err)
		return
	}
	fresh.AssignmentID = route.AssignmentID

	saved, err := s.repo.SaveRoute(ctx, fresh)
	if err != nil {
		log.Printf("Could not persist reroute for session %s: %v", session.ID, err)
		return
	}

	session.RouteID = saved.ID
	session.CurrentStepIndex = 0
	session.RerouteCount++
	session.OffRoute = false
	session.DistanceRemaining = saved.DistanceMeters
	session.TimeRemaining = saved.DurationSeconds
}

// StopNavigation marks the session inactive and releases its refresher.
// Calling it twice is harmless; the watcher teardown is deterministic
// either way.
func (s *Service) StopNavigation(ctx context.Context, sessionID, driverID string) error {
	session, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("service.StopNavigation: %w", err)
	}
	if session.DeliveryUserID != driverID {
		return models.ErrNotFound
	}

	if err := s.repo.StopSession(ctx, sessionID, time.Now()); err != nil {
		return fmt.Errorf("service.StopNavigation: %w", err)
	}

	s.stopWatcher(sessionID)
	return nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.NavigationSession, error) {
	return s.repo.FindSession(ctx, sessionID)
}

// ActiveSessionForAssignment returns the live session for an assignment.
func (s *Service) ActiveSessionForAssignment(ctx context.Context, assignmentID string) (*models.NavigationSession, error) {
	return s.repo.FindActiveSessionByAssignment(ctx, assignmentID)
}

// AuthorizeStream checks that a user may watch an assignment's live progress.
// Only the assigned driver, the ordering customer, and the owning restaurant
// get to see the driver's coordinates.
func (s *Service) AuthorizeStream(ctx context.Context, assignmentID, userID string) error {
	driverID, customerID, restaurantID, err := s.repo.AssignmentParties(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("service.AuthorizeStream: %w", err)
	}
	if userID == driverID || userID == customerID {
		return nil
	}
	if restaurantID != nil && userID == *restaurantID {
		return nil
	}
	return models.ErrForbidden
}

// startWatcher launches the periodic ETA refresher for a session.
func (s *Service) startWatcher(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.watchers[sessionID]; exists {
		return
	}
	done := make(chan struct{})
	s.watchers[sessionID] = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.refreshSession(sessionID)
			}
		}
	}()
}

// refreshSession recomputes a session's ETA from its last reported location.
func (s *Service) refreshSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := s.repo.FindSession(ctx, sessionID)
	if err != nil || !session.IsActive {
		return
	}
	route, err := s.repo.FindRoute(ctx, session.RouteID)
	if err != nil {
		return
	}
	dest, ok := routeDestination(route)
	if !ok {
		return
	}

	eta, err := s.router.GetETA(ctx, session.Latitude, session.Longitude, dest.EndLatitude, dest.EndLongitude)
	if err != nil {
		log.Printf("Background ETA refresh failed for session %s: %v", sessionID, err)
		return
	}
	// Only the ETA column is written here. A location update may have
	// advanced the step index or swapped the route while GetETA was in
	// flight, and a full write-back would roll those changes back.
	if err := s.repo.UpdateSessionETA(ctx, sessionID, eta); err != nil {
		log.Printf("Background ETA write failed for session %s: %v", sessionID, err)
	}
}

// stopWatcher tears down the refresher for a session, if one is running.
func (s *Service) stopWatcher(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, exists := s.watchers[sessionID]; exists {
		close(done)
		delete(s.watchers, sessionID)
	}
}

// Close stops every refresher and waits for them to exit. Called on server
// shutdown so no timers outlive the process teardown.
func (s *Service) Close() {
	s.mu.Lock()
	for id, done := range s.watchers {
		close(done)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func routeDestination(route *models.Route) (models.RouteStep, bool) {
	if len(route.Steps) == 0 {
		return models.RouteStep{}, false
	}
	return route.Steps[len(route.Steps)-1], true
}

func remainingDistance(route *models.Route, currentStep int) int {
	total := 0
	for i := currentStep; i < len(route.Steps); i++ {
		total += route.Steps[i].DistanceMeters
	}
	return total
}
