package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"transit-tracking-service/internal/domain"
)

const (
	redisVehicleIndex = "vehicles"
	redisRouteIndex   = "routes"
)

// Redis-backed FleetRepository. Each record is a JSON string under
// vehicle:<id> or route:<id>; the ids are tracked in index sets.
type RedisRepository struct {
	Client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{Client: client}
}

func redisVehicleKey(id string) string { return "vehicle:" + id }

func redisRouteKey(id string) string { return "route:" + id }

func (r *RedisRepository) GetVehicle(ctx context.Context, id string) (*domain.VehicleState, error) {
	raw, err := r.Client.Get(ctx, redisVehicleKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: %w", id, err)
	}

	var rec vehicleRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("get vehicle: vehicle_id=%s: decode: %w", id, err)
	}
	return rec.toDomain(), nil
}

func (r *RedisRepository) ListVehicles(ctx context.Context) ([]*domain.VehicleState, error) {
	ids, err := r.Client.SMembers(ctx, redisVehicleIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list vehicles: read index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.VehicleState{}, nil
	}
	slices.Sort(ids)

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, redisVehicleKey(id))
	}
	vals, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list vehicles: mget: %w", err)
	}

	out := make([]*domain.VehicleState, 0, len(vals))
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			// index entry without a record; deleted concurrently
			continue
		}
		var rec vehicleRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("list vehicles: decode vehicle_id=%s: %w", ids[i], err)
		}
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *RedisRepository) UpsertVehicle(ctx context.Context, v *domain.VehicleState) error {
	raw, err := json.Marshal(newVehicleRecord(v))
	if err != nil {
		return fmt.Errorf("upsert vehicle: vehicle_id=%s: encode: %w", v.ID, err)
	}

	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisVehicleKey(v.ID), raw, 0)
		p.SAdd(ctx, redisVehicleIndex, v.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert vehicle: vehicle_id=%s: %w", v.ID, err)
	}
	return nil
}

func (r *RedisRepository) DeleteVehicle(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, redisVehicleKey(id))
		p.SRem(ctx, redisVehicleIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete vehicle: vehicle_id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *RedisRepository) GetRoute(ctx context.Context, id string) (*domain.RouteSummary, error) {
	raw, err := r.Client.Get(ctx, redisRouteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route: route_id=%s: %w", id, err)
	}

	var rec routeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("get route: route_id=%s: decode: %w", id, err)
	}
	return rec.toDomain(), nil
}

func (r *RedisRepository) ListRoutes(ctx context.Context) ([]*domain.RouteSummary, error) {
	ids, err := r.Client.SMembers(ctx, redisRouteIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list routes: read index: %w", err)
	}
	slices.SortFunc(ids, strings.Compare)

	out := make([]*domain.RouteSummary, 0, len(ids))
	for _, id := range ids {
		route, err := r.GetRoute(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list routes: %w", err)
		}
		out = append(out, route)
	}
	return out, nil
}

func (r *RedisRepository) UpsertRoute(ctx context.Context, route *domain.RouteSummary) error {
	raw, err := json.Marshal(newRouteRecord(route))
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: encode: %w", route.ID, err)
	}

	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisRouteKey(route.ID), raw, 0)
		p.SAdd(ctx, redisRouteIndex, route.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert route: route_id=%s: %w", route.ID, err)
	}
	return nil
}

func (r *RedisRepository) DeleteRoute(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, redisRouteKey(id))
		p.SRem(ctx, redisRouteIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete route: route_id=%s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete route: route_id=%s: %w", id, domain.ErrNotFound)
	}
	return nil
}
