package tracking

import (
	"errors"
	"log/slog"
	"sync"

	"transit-tracking-service/internal/domain"
)

// Publisher receives change events from the ingest path.
type Publisher interface {
	Publish(ev domain.ChangeEvent) int
}

// Dispatcher routes change events to the outboxes of subscribed connections.
type Dispatcher struct {
	registry *Registry
	outboxes sync.Map // connID -> *Outbox
	logger   *slog.Logger
	metrics  *Metrics
}

func NewDispatcher(registry *Registry, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
		metrics:  metrics,
	}
}

// Attach makes the outbox reachable for events addressed to connID.
func (d *Dispatcher) Attach(connID string, ob *Outbox) {
	d.outboxes.Store(connID, ob)
}

func (d *Dispatcher) Detach(connID string) {
	d.outboxes.Delete(connID)
}

// Publish enqueues ev once on every connection holding at least one of the
// event's topics and returns how many connections it reached. It never
// blocks on a consumer.
func (d *Dispatcher) Publish(ev domain.ChangeEvent) int {
	shared := &ev
	seen := make(map[string]struct{})
	enqueued := 0

	for _, topic := range ev.Topics() {
		for _, connID := range d.registry.SubscribersFor(topic) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}

			v, ok := d.outboxes.Load(connID)
			if !ok {
				continue
			}
			err := v.(*Outbox).Enqueue(Delivery{Kind: DeliveryEvent, Event: shared, At: ev.OccurredAt})
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrBackpressureDrop):
				d.metrics.dropped()
				d.logger.Debug("outbox overflow", "conn_id", connID, "vehicle_id", ev.VehicleID)
			default:
				continue
			}
			enqueued++
		}
	}

	d.metrics.published(string(ev.Kind), enqueued)
	return enqueued
}
