package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"food-dispatch/internal/models"
)

type assignmentParties struct {
	driverID     string
	customerID   string
	restaurantID *string
}

// fakeRepo is an in-memory navigation store. The mutex matters: the
// background refresher touches it from its own goroutine.
type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.NavigationSession
	routes   map[string]*models.Route
	parties  map[string]assignmentParties
	nextID   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*models.NavigationSession),
		routes:   make(map[string]*models.Route),
		parties:  make(map[string]assignmentParties),
	}
}

func (f *fakeRepo) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRepo) CreateSession(ctx context.Context, session *models.NavigationSession) (*models.NavigationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := *session
	created.ID = f.id("session")
	created.IsActive = true
	created.CurrentStepIndex = 0
	f.sessions[created.ID] = &created
	copied := created
	return &copied, nil
}

func (f *fakeRepo) FindSession(ctx context.Context, sessionID string) (*models.NavigationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepo) FindActiveSessionByAssignment(ctx context.Context, assignmentID string) (*models.NavigationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.AssignmentID == assignmentID && s.IsActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) UpdateSessionProgress(ctx context.Context, session *models.NavigationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[session.ID]
	if !ok {
		return models.ErrNotFound
	}
	if !stored.IsActive {
		return models.ErrSessionInactive
	}
	copied := *session
	copied.IsActive = true
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeRepo) UpdateSessionETA(ctx context.Context, sessionID string, etaSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.IsActive {
		return models.ErrSessionInactive
	}
	s.TimeRemaining = etaSeconds
	return nil
}

func (f *fakeRepo) StopSession(ctx context.Context, sessionID string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	if s.IsActive {
		s.IsActive = false
		s.CompletedAt = &completedAt
	}
	return nil
}

func (f *fakeRepo) SaveRoute(ctx context.Context, route *models.Route) (*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := *route
	saved.ID = f.id("route")
	f.routes[saved.ID] = &saved
	copied := saved
	return &copied, nil
}

func (f *fakeRepo) FindRoute(ctx context.Context, routeID string) (*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routes[routeID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRepo) AssignmentParties(ctx context.Context, assignmentID string) (string, string, *string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parties[assignmentID]
	if !ok {
		return "", "", nil, models.ErrNotFound
	}
	return p.driverID, p.customerID, p.restaurantID, nil
}

// fakeProvider returns canned routes and ETAs.
type fakeProvider struct {
	route     *models.Route
	routeErr  error
	eta       int
	etaErr    error
	getRoutes int
}

func (f *fakeProvider) GetRoute(ctx context.Context, originLat, originLng, destLat, destLng float64) (*models.Route, error) {
	f.getRoutes++
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	if f.route == nil {
		return nil, errors.New("no route configured")
	}
	copied := *f.route
	return &copied, nil
}

func (f *fakeProvider) GetETA(ctx context.Context, originLat, originLng, destLat, destLng float64) (int, error) {
	if f.etaErr != nil {
		return 0, f.etaErr
	}
	return f.eta, nil
}

// testRoute is a short two-step route near the origin.
func testRoute() *models.Route {
	return &models.Route{
		Polyline: "abc",
		Steps: []models.RouteStep{
			{EndLatitude: 37.7750, EndLongitude: -122.4194, DistanceMeters: 400, DurationSeconds: 60},
			{EndLatitude: 37.7800, EndLongitude: -122.4194, DistanceMeters: 600, DurationSeconds: 90},
		},
		DistanceMeters:  1000,
		DurationSeconds: 150,
	}
}

func newTestSession(t *testing.T, repo *fakeRepo, svc *Service) *models.NavigationSession {
	t.Helper()
	route, err := repo.SaveRoute(context.Background(), testRoute())
	if err != nil {
		t.Fatalf("save route: %v", err)
	}
	session, err := svc.StartNavigation(context.Background(), route.ID, "driver-1", "assignment-1")
	if err != nil {
		t.Fatalf("start navigation: %v", err)
	}
	return session
}

func newTestNavService(repo *fakeRepo, provider *fakeProvider) *Service {
	opts := DefaultOptions()
	opts.PollInterval = time.Hour // keep the background refresher quiet in tests
	return NewService(repo, provider, opts)
}

func TestStartNavigation_BeginsAtStepZero(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 120})
	defer svc.Close()

	session := newTestSession(t, repo, svc)
	if session.CurrentStepIndex != 0 || !session.IsActive {
		t.Fatalf("session = %+v, want active at step 0", session)
	}
	if session.DistanceRemaining != 1000 {
		t.Errorf("distance remaining = %d, want 1000", session.DistanceRemaining)
	}
}

func TestUpdateLocation_AdvancesStepWithinThreshold(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// Right on top of the first step's endpoint.
	update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 37.7750, -122.4194)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if update.CurrentStep != 1 {
		t.Errorf("current step = %d, want 1", update.CurrentStep)
	}
	if update.Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", update.Progress)
	}
	if update.ETASeconds != 90 {
		t.Errorf("eta = %d, want 90", update.ETASeconds)
	}
}

func TestUpdateLocation_FarFromStepDoesNotAdvance(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// ~100m short of the first endpoint but inside the corridor.
	update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 37.7742, -122.4194)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if update.CurrentStep != 0 {
		t.Errorf("current step = %d, want 0", update.CurrentStep)
	}
	if update.OffRoute {
		t.Error("driver inside the corridor must not be off route")
	}
}

func TestUpdateLocation_StepIndexMonotonic(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	positions := [][2]float64{
		{37.7750, -122.4194}, // step 0 endpoint -> advance to 1
		{37.7742, -122.4194}, // drifting back must not regress the index
	}
	last := -1
	for _, p := range positions {
		update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", p[0], p[1])
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if update.CurrentStep < last {
			t.Fatalf("step index regressed from %d to %d", last, update.CurrentStep)
		}
		last = update.CurrentStep
	}
}

func TestUpdateLocation_RerouteCapNeverExceeded(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{eta: 90, route: testRoute()}
	svc := newTestNavService(repo, provider)
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// Far away from every step endpoint: off route on every update. No
	// matter how many consecutive off-route reports arrive, the session
	// must never reroute more than MaxReroutes times.
	for i := 0; i < 10; i++ {
		if _, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 38.5, -121.5); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	stored, err := repo.FindSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if stored.RerouteCount > 3 {
		t.Fatalf("reroute count = %d, must never exceed 3", stored.RerouteCount)
	}
	if stored.RerouteCount != 3 {
		t.Errorf("reroute count = %d, want exactly 3 after persistent drift", stored.RerouteCount)
	}
}

func TestUpdateLocation_RerouteResetsStepIndex(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{eta: 90, route: testRoute()}
	svc := newTestNavService(repo, provider)
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// Advance one step first, then go far off route.
	if _, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 37.7750, -122.4194); err != nil {
		t.Fatalf("advance: %v", err)
	}
	update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 38.5, -121.5)
	if err != nil {
		t.Fatalf("off-route update: %v", err)
	}

	if update.CurrentStep != 0 {
		t.Errorf("current step after reroute = %d, want 0", update.CurrentStep)
	}
	if update.OffRoute {
		t.Error("off_route flag must clear after a successful reroute")
	}

	stored, _ := repo.FindSession(context.Background(), session.ID)
	if stored.RerouteCount != 1 {
		t.Errorf("reroute count = %d, want 1", stored.RerouteCount)
	}
	if stored.RouteID == session.RouteID {
		t.Error("reroute must swap in a new route")
	}
}

func TestUpdateLocation_ProviderErrorKeepsSessionAlive(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{eta: 0, etaErr: errors.New("routing provider down"), routeErr: errors.New("routing provider down")}
	svc := newTestNavService(repo, provider)
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// Off route with a dead provider: the update must still succeed with
	// stale data, and the session stays active.
	update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 38.5, -121.5)
	if err != nil {
		t.Fatalf("update with dead provider: %v", err)
	}
	if !update.OffRoute {
		t.Error("off_route must remain set when the reroute fails")
	}

	stored, _ := repo.FindSession(context.Background(), session.ID)
	if !stored.IsActive {
		t.Error("session must stay active despite provider errors")
	}
	if stored.TimeRemaining != 150 {
		t.Errorf("time remaining = %d, want stale 150", stored.TimeRemaining)
	}
}

func TestStopNavigation_IdempotentAndReleasesWatcher(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	if err := svc.StopNavigation(context.Background(), session.ID, "driver-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	svc.mu.Lock()
	_, watching := svc.watchers[session.ID]
	svc.mu.Unlock()
	if watching {
		t.Error("stop must release the session watcher")
	}

	stored, _ := repo.FindSession(context.Background(), session.ID)
	if stored.IsActive || stored.CompletedAt == nil {
		t.Errorf("session = %+v, want inactive with completion timestamp", stored)
	}

	// Stopping again is a no-op, not an error.
	if err := svc.StopNavigation(context.Background(), session.ID, "driver-1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	// Updates after stop are refused.
	if _, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 37.7750, -122.4194); !errors.Is(err, models.ErrSessionInactive) {
		t.Fatalf("update after stop error = %v, want ErrSessionInactive", err)
	}
}

// gatedProvider pauses its first GetETA call until released, so a test can
// interleave other work while the ETA lookup is in flight.
type gatedProvider struct {
	fakeProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProvider) GetETA(ctx context.Context, originLat, originLng, destLat, destLng float64) (int, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeProvider.GetETA(ctx, originLat, originLng, destLat, destLng)
}

func TestBackgroundRefreshPreservesLocationProgress(t *testing.T) {
	repo := newFakeRepo()
	provider := &gatedProvider{
		fakeProvider: fakeProvider{eta: 90},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	opts := DefaultOptions()
	opts.PollInterval = time.Hour // drive the refresh by hand below
	svc := NewService(repo, provider, opts)
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	// Run one refresh cycle by hand. It reads the session at step 0, then
	// parks inside GetETA.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.refreshSession(session.ID)
	}()
	<-provider.entered

	// While the refresher holds its stale snapshot, the driver reaches the
	// first step's endpoint and advances to step 1.
	update, err := svc.UpdateLocation(context.Background(), session.ID, "driver-1", 37.7750, -122.4194)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if update.CurrentStep != 1 {
		t.Fatalf("current step = %d, want 1", update.CurrentStep)
	}

	close(provider.release)
	wg.Wait()

	// The refresher may only touch the ETA; the step advance must survive.
	stored, err := repo.FindSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if stored.CurrentStepIndex != 1 {
		t.Fatalf("step index = %d after background refresh, want 1", stored.CurrentStepIndex)
	}
	if stored.TimeRemaining != 90 {
		t.Errorf("time remaining = %d, want refreshed 90", stored.TimeRemaining)
	}
}

func TestAuthorizeStream_OnlyPartiesMayWatch(t *testing.T) {
	repo := newFakeRepo()
	restaurantID := "restaurant-1"
	repo.parties["assignment-1"] = assignmentParties{
		driverID:     "driver-1",
		customerID:   "customer-1",
		restaurantID: &restaurantID,
	}
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()

	for _, userID := range []string{"driver-1", "customer-1", "restaurant-1"} {
		if err := svc.AuthorizeStream(context.Background(), "assignment-1", userID); err != nil {
			t.Errorf("AuthorizeStream(%q) = %v, want nil", userID, err)
		}
	}

	if err := svc.AuthorizeStream(context.Background(), "assignment-1", "customer-2"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("stranger error = %v, want ErrForbidden", err)
	}
	if err := svc.AuthorizeStream(context.Background(), "assignment-missing", "driver-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown assignment error = %v, want ErrNotFound", err)
	}
}

func TestStopNavigation_WrongDriver(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestNavService(repo, &fakeProvider{eta: 90})
	defer svc.Close()
	session := newTestSession(t, repo, svc)

	if err := svc.StopNavigation(context.Background(), session.ID, "driver-2"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("stop by wrong driver error = %v, want ErrNotFound", err)
	}
}
