package tracking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/ports"
)

// RouteLookup resolves route summaries by id.
type RouteLookup interface {
	Route(ctx context.Context, id string) (domain.RouteSummary, error)
}

// VehicleFields are the admin-editable attributes of a vehicle.
// A nil field is left unchanged; an empty RouteID unassigns the route.
type VehicleFields struct {
	Registration *string
	Type         *domain.VehicleType
	Capacity     *int
	RouteID      *string
	Status       *domain.Status
}

type entry struct {
	mu      sync.RWMutex
	state   domain.VehicleState
	removed bool
}

// Store is the authoritative in-memory cache of vehicle state.
//
// Every mutation is persisted through the repository before it becomes
// visible; a failed write leaves the cached state untouched. Readers always
// receive copies.
type Store struct {
	repo    ports.VehicleRepository
	routes  RouteLookup
	logger  *slog.Logger
	entries sync.Map // id -> *entry
	loads   singleflight.Group
	now     func() time.Time
}

func NewStore(repo ports.VehicleRepository, routes RouteLookup, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		routes: routes,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load warms the cache with every vehicle in the repository.
func (s *Store) Load(ctx context.Context) (int, error) {
	vehicles, err := s.repo.ListVehicles(ctx)
	if err != nil {
		return 0, fmt.Errorf("store load: %w", err)
	}
	for _, v := range vehicles {
		s.entries.LoadOrStore(v.ID, &entry{state: *v})
	}
	s.logger.Info("vehicle cache warmed", "count", len(vehicles))
	return len(vehicles), nil
}

// entry returns the cache slot for id, loading it from the repository on a
// miss. Concurrent misses for the same id share one repository read.
func (s *Store) entry(ctx context.Context, id string) (*entry, error) {
	if e, ok := s.entries.Load(id); ok {
		return e.(*entry), nil
	}

	v, err, _ := s.loads.Do(id, func() (any, error) {
		if e, ok := s.entries.Load(id); ok {
			return e, nil
		}
		state, err := s.repo.GetVehicle(ctx, id)
		if err != nil {
			return nil, err
		}
		e, _ := s.entries.LoadOrStore(id, &entry{state: *state})
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: vehicle_id=%s: %w", id, err)
	}
	return v.(*entry), nil
}

// Get returns a copy of the current state of the vehicle.
func (s *Store) Get(ctx context.Context, id string) (domain.VehicleState, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return domain.VehicleState{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.removed {
		return domain.VehicleState{}, fmt.Errorf("store: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	return e.state, nil
}

func (s *Store) list(keep func(domain.VehicleState) bool) []domain.VehicleState {
	out := make([]domain.VehicleState, 0, 32)
	s.entries.Range(func(_, value any) bool {
		e := value.(*entry)
		e.mu.RLock()
		if !e.removed && keep(e.state) {
			out = append(out, e.state)
		}
		e.mu.RUnlock()
		return true
	})
	slices.SortFunc(out, func(a, b domain.VehicleState) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ListActive returns a point-in-time copy of every active or en-route vehicle.
func (s *Store) ListActive() []domain.VehicleState {
	return s.list(func(v domain.VehicleState) bool { return v.Status.IsActive() })
}

// ListAll returns every cached vehicle.
func (s *Store) ListAll() []domain.VehicleState {
	return s.list(func(domain.VehicleState) bool { return true })
}

// mutate applies fn to a copy of the vehicle, persists the result and then
// commits it. The entry lock is held throughout so readers see either the old
// or the new state.
func (s *Store) mutate(ctx context.Context, id string, fn func(*domain.VehicleState) error) (before, after domain.VehicleState, err error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return before, after, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return before, after, fmt.Errorf("store: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}

	next := e.state
	if err := fn(&next); err != nil {
		return before, after, err
	}
	if err := s.repo.UpsertVehicle(ctx, &next); err != nil {
		return before, after, fmt.Errorf("store: persist vehicle_id=%s: %w", id, err)
	}

	before = e.state
	e.state = next
	return before, next, nil
}

// clock returns the ingest time, never earlier than prev.
func (s *Store) clock(prev time.Time) time.Time {
	now := s.now()
	if now.Before(prev) {
		return prev
	}
	return now
}

func newEvent(kind domain.EventKind, v domain.VehicleState, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		Kind:       kind,
		VehicleID:  v.ID,
		RouteID:    v.RouteID,
		Vehicle:    v,
		OccurredAt: at,
	}
}

// ApplyLocation stores a position report verbatim. Nil speed or heading keeps
// the previous value. Inactive and active vehicles become en-route.
func (s *Store) ApplyLocation(ctx context.Context, id string, lat, lon float64, speed, heading *float64) (domain.ChangeEvent, error) {
	var at time.Time
	_, after, err := s.mutate(ctx, id, func(v *domain.VehicleState) error {
		at = s.clock(v.Position.UpdatedAt)
		v.Position = domain.Position{Latitude: lat, Longitude: lon, UpdatedAt: at}
		if speed != nil {
			v.Speed = *speed
		}
		if heading != nil {
			v.Heading = *heading
		}
		if v.Status == domain.StatusInactive || v.Status == domain.StatusActive {
			v.Status = domain.StatusEnRoute
		}
		return nil
	})
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	return newEvent(domain.EventLocationChanged, after, at), nil
}

// ApplyIncident opens or clears an incident. Any incident other than none
// forces maintenance; none forces active and clears the incident fields.
func (s *Store) ApplyIncident(ctx context.Context, id string, incident domain.Incident, description string) (domain.ChangeEvent, error) {
	at := s.now()
	_, after, err := s.mutate(ctx, id, func(v *domain.VehicleState) error {
		v.Incident = incident
		if incident == domain.IncidentNone {
			v.Status = domain.StatusActive
			v.IncidentTime = time.Time{}
			v.IncidentDescription = ""
			return nil
		}
		v.Status = domain.StatusMaintenance
		v.IncidentTime = at
		v.IncidentDescription = description
		return nil
	})
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	return newEvent(domain.EventIncidentChanged, after, at), nil
}

func (s *Store) applyFields(ctx context.Context, v *domain.VehicleState, f VehicleFields) error {
	if f.Registration != nil {
		v.Registration = *f.Registration
	}
	if f.Type != nil {
		v.Type = *f.Type
	}
	if f.Capacity != nil {
		v.Capacity = *f.Capacity
	}
	if f.Status != nil {
		if v.HasIncident() && *f.Status != domain.StatusMaintenance {
			return domain.NewValidationError("status", "vehicle has an open incident")
		}
		v.Status = *f.Status
	}

	if f.RouteID == nil {
		return nil
	}
	v.RouteID = *f.RouteID
	if v.RouteID == "" || s.routes == nil {
		return nil
	}

	route, err := s.routes.Route(ctx, v.RouteID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError("routeId", fmt.Sprintf("unknown route %q", v.RouteID))
	}
	if err != nil {
		return fmt.Errorf("resolve route_id=%s: %w", v.RouteID, err)
	}
	v.PlaceAtRouteStart(route, s.now())
	return nil
}

// Update edits an existing vehicle. Moving a vehicle to another route sets
// PreviousRouteID on the event.
func (s *Store) Update(ctx context.Context, id string, f VehicleFields) (domain.ChangeEvent, error) {
	before, after, err := s.mutate(ctx, id, func(v *domain.VehicleState) error {
		return s.applyFields(ctx, v, f)
	})
	if err != nil {
		return domain.ChangeEvent{}, err
	}

	ev := newEvent(domain.EventVehicleUpdated, after, s.now())
	if before.RouteID != after.RouteID {
		ev.PreviousRouteID = before.RouteID
	}
	return ev, nil
}

// Upsert is the admin create-or-update entry point: it updates the vehicle
// when id is known and creates it otherwise. Creating requires a type.
func (s *Store) Upsert(ctx context.Context, id string, f VehicleFields) (domain.ChangeEvent, error) {
	ev, err := s.Update(ctx, id, f)
	if !errors.Is(err, domain.ErrNotFound) {
		return ev, err
	}
	if f.Type == nil {
		return domain.ChangeEvent{}, domain.NewValidationError("type", "is required")
	}
	return s.create(ctx, id, f)
}

// Create adds a new vehicle. It fails with domain.ErrConflict when the id is taken.
func (s *Store) Create(ctx context.Context, id string, f VehicleFields) (domain.ChangeEvent, error) {
	if _, err := s.Get(ctx, id); err == nil {
		return domain.ChangeEvent{}, fmt.Errorf("store: create vehicle_id=%s: %w", id, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ChangeEvent{}, err
	}
	return s.create(ctx, id, f)
}

func (s *Store) create(ctx context.Context, id string, f VehicleFields) (domain.ChangeEvent, error) {
	now := s.now()
	state := domain.VehicleState{
		ID:        id,
		Status:    domain.StatusInactive,
		Incident:  domain.IncidentNone,
		CreatedAt: now,
	}
	if err := s.applyFields(ctx, &state, f); err != nil {
		return domain.ChangeEvent{}, err
	}

	// New slots start as tombstones so readers see NotFound until the
	// record is persisted. A failed create leaves the tombstone behind.
	value, _ := s.entries.LoadOrStore(id, &entry{removed: true})
	e := value.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.removed {
		return domain.ChangeEvent{}, fmt.Errorf("store: create vehicle_id=%s: %w", id, domain.ErrConflict)
	}
	if err := s.repo.UpsertVehicle(ctx, &state); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("store: persist vehicle_id=%s: %w", id, err)
	}

	e.state = state
	e.removed = false
	s.logger.Debug("vehicle created", "vehicle_id", id)
	return newEvent(domain.EventVehicleCreated, state, now), nil
}

// Remove deletes the vehicle. The cache keeps a tombstone so that a racing
// cold read can not bring the vehicle back.
func (s *Store) Remove(ctx context.Context, id string) (domain.ChangeEvent, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return domain.ChangeEvent{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return domain.ChangeEvent{}, fmt.Errorf("store: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	if err := s.repo.DeleteVehicle(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.ChangeEvent{}, fmt.Errorf("store: delete vehicle_id=%s: %w", id, err)
	}

	e.removed = true
	return newEvent(domain.EventVehicleRemoved, e.state, s.now()), nil
}
