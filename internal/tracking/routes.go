package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/ports"
)

// RouteRef is the route display data embedded in snapshots.
type RouteRef struct {
	ID     string
	Name   string
	Number string
	Color  string
}

// ActiveVehicle is a vehicle state annotated with its route for display.
// Route is nil when the vehicle has no route.
type ActiveVehicle struct {
	domain.VehicleState
	Route *RouteRef
}

// RouteCatalog is a read-through cache of route summaries. Every write
// through the catalog bumps gen; a read that started under an older gen
// returns its result without caching it.
type RouteCatalog struct {
	repo   ports.RouteRepository
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.RouteSummary
	gen   uint64
	loads singleflight.Group
}

func NewRouteCatalog(repo ports.RouteRepository, logger *slog.Logger) *RouteCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteCatalog{
		repo:   repo,
		logger: logger.With("component", "routes"),
		cache:  make(map[string]domain.RouteSummary),
	}
}

// Route returns the summary for id, reading the repository on a cache miss.
func (c *RouteCatalog) Route(ctx context.Context, id string) (domain.RouteSummary, error) {
	c.mu.RLock()
	r, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.loads.Do(id, func() (any, error) {
		gen := c.generation()
		route, err := c.repo.GetRoute(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.cache[id] = *route
		}
		c.mu.Unlock()
		return *route, nil
	})
	if err != nil {
		return domain.RouteSummary{}, fmt.Errorf("route catalog: route_id=%s: %w", id, err)
	}
	return v.(domain.RouteSummary), nil
}

// List reads every route from the repository and refreshes the cache.
func (c *RouteCatalog) List(ctx context.Context) ([]domain.RouteSummary, error) {
	gen := c.generation()
	routes, err := c.repo.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("route catalog: list: %w", err)
	}

	out := make([]domain.RouteSummary, 0, len(routes))
	for _, r := range routes {
		out = append(out, *r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return out, nil
	}
	clear(c.cache)
	for _, r := range out {
		c.cache[r.ID] = r
	}
	return out, nil
}

func (c *RouteCatalog) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Upsert writes the route through to the repository.
func (c *RouteCatalog) Upsert(ctx context.Context, r domain.RouteSummary) error {
	if r.Color == "" {
		r.Color = domain.DefaultRouteColor
	}
	if err := c.repo.UpsertRoute(ctx, &r); err != nil {
		return fmt.Errorf("route catalog: upsert: %w", err)
	}
	c.mu.Lock()
	c.gen++
	c.cache[r.ID] = r
	c.mu.Unlock()
	c.loads.Forget(r.ID)
	return nil
}

// Delete removes the route from the repository and the cache. A cold load
// already in flight for id does not re-cache it.
func (c *RouteCatalog) Delete(ctx context.Context, id string) error {
	if err := c.repo.DeleteRoute(ctx, id); err != nil {
		return fmt.Errorf("route catalog: delete: %w", err)
	}
	c.mu.Lock()
	c.gen++
	delete(c.cache, id)
	c.mu.Unlock()
	c.loads.Forget(id)
	return nil
}

// Annotate embeds route display data into each vehicle. Vehicles whose route
// can not be resolved keep a reference holding only the id.
func (c *RouteCatalog) Annotate(ctx context.Context, vehicles []domain.VehicleState) []ActiveVehicle {
	out := make([]ActiveVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		av := ActiveVehicle{VehicleState: v}
		if v.HasRoute() {
			ref := &RouteRef{ID: v.RouteID}
			r, err := c.Route(ctx, v.RouteID)
			switch {
			case err == nil:
				ref.Name, ref.Number, ref.Color = r.Name, r.Number, r.Color
			case errors.Is(err, domain.ErrNotFound):
			default:
				c.logger.Warn("route lookup failed", "route_id", v.RouteID, "err", err)
			}
			av.Route = ref
		}
		out = append(out, av)
	}
	return out
}
