package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/platform/obs"
)

// LocationUpdate is a position report from a driver or an admin.
// Nil Speed or Heading keeps the stored value.
type LocationUpdate struct {
	VehicleID string   `validate:"required"`
	Latitude  *float64 `validate:"required,gte=-90,lte=90"`
	Longitude *float64 `validate:"required,gte=-180,lte=180"`
	Speed     *float64 `validate:"omitempty,gte=0"`
	Heading   *float64
}

type IncidentReport struct {
	VehicleID   string `validate:"required"`
	Incident    string `validate:"required,oneof=none accident medical_emergency puncture breakdown traffic_heavy diversion weather_bad other"`
	Description string `validate:"max=500"`
}

type EditOp string

const (
	EditCreate EditOp = "create"
	EditUpdate EditOp = "update"
	EditUpsert EditOp = "upsert"
	EditDelete EditOp = "delete"
)

// AdminEdit creates, updates or deletes a vehicle. A create without
// VehicleID gets a generated id; an upsert creates the vehicle when the id
// is unknown.
type AdminEdit struct {
	Op           EditOp  `validate:"required,oneof=create update upsert delete"`
	VehicleID    string  `validate:"required_unless=Op create"`
	Registration *string `validate:"omitempty,max=32"`
	Type         *string `validate:"omitempty,oneof=bus minibus metro tram car taxi van"`
	Capacity     *int    `validate:"omitempty,gte=0,lte=500"`
	RouteID      *string `validate:"omitempty,max=64"`
	Status       *string `validate:"omitempty,oneof=inactive active en-route maintenance"`
}

func (e AdminEdit) fields() VehicleFields {
	f := VehicleFields{
		Registration: e.Registration,
		Capacity:     e.Capacity,
		RouteID:      e.RouteID,
	}
	if e.Type != nil {
		t := domain.VehicleType(*e.Type)
		f.Type = &t
	}
	if e.Status != nil {
		s := domain.Status(*e.Status)
		f.Status = &s
	}
	return f
}

// Gateway is the single ingest path. It validates input, serializes updates
// per vehicle, mutates the Store and hands the resulting event to the
// publisher while still holding the vehicle lock, so that events of one
// vehicle are published in the order they were applied.
//
// Callers are expected to be authorized already.
type Gateway struct {
	store     *Store
	publisher Publisher
	locks     *KeyedMutex
	validate  *validator.Validate
	logger    *slog.Logger
	metrics   *Metrics
}

func NewGateway(store *Store, publisher Publisher, logger *slog.Logger, metrics *Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:     store,
		publisher: publisher,
		locks:     NewKeyedMutex(),
		validate:  validator.New(),
		logger:    logger.With("component", "gateway"),
		metrics:   metrics,
	}
}

// check converts validator failures into a *domain.ValidationError.
func (g *Gateway) check(v any) error {
	err := g.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: "request", Reason: err.Error()}}}
	}

	ve := &domain.ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, domain.FieldError{Field: fieldName(fe.Field()), Reason: reason(fe)})
	}
	return ve
}

func fieldName(goName string) string {
	switch goName {
	case "VehicleID":
		return "vehicleId"
	case "RouteID":
		return "routeId"
	case "Incident":
		return "incidentStatus"
	case "Description":
		return "incidentDescription"
	}
	if goName == "" {
		return goName
	}
	return strings.ToLower(goName[:1]) + goName[1:]
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %s %s", fe.Tag(), fe.Param())
	}
}

// result maps an ingest error to the metrics label.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsValidation(err):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// publish fans the event out. Failures are logged and never reach the caller.
func (g *Gateway) publish(ev domain.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("publish panicked", "vehicle_id", ev.VehicleID, "kind", ev.Kind, "panic", r)
		}
	}()
	if g.publisher == nil {
		return
	}
	g.publisher.Publish(ev)
}

// ApplyLocation validates and applies a position report.
func (g *Gateway) ApplyLocation(ctx context.Context, u LocationUpdate) (state domain.VehicleState, err error) {
	defer obs.Time(ctx, "gateway.ApplyLocation")(&err)
	defer func() { g.metrics.ingest("location", result(err)) }()

	u.VehicleID = strings.TrimSpace(u.VehicleID)
	if err := g.check(u); err != nil {
		return domain.VehicleState{}, err
	}

	unlock := g.locks.Lock(u.VehicleID)
	defer unlock()

	ev, err := g.store.ApplyLocation(ctx, u.VehicleID, *u.Latitude, *u.Longitude, u.Speed, u.Heading)
	if err != nil {
		return domain.VehicleState{}, fmt.Errorf("apply location: %w", err)
	}
	g.publish(ev)
	return ev.Vehicle, nil
}

// ReportIncident validates and applies an incident report.
func (g *Gateway) ReportIncident(ctx context.Context, r IncidentReport) (state domain.VehicleState, err error) {
	defer obs.Time(ctx, "gateway.ReportIncident")(&err)
	defer func() { g.metrics.ingest("incident", result(err)) }()

	r.VehicleID = strings.TrimSpace(r.VehicleID)
	if err := g.check(r); err != nil {
		return domain.VehicleState{}, err
	}

	unlock := g.locks.Lock(r.VehicleID)
	defer unlock()

	ev, err := g.store.ApplyIncident(ctx, r.VehicleID, domain.Incident(r.Incident), strings.TrimSpace(r.Description))
	if err != nil {
		return domain.VehicleState{}, fmt.Errorf("report incident: %w", err)
	}

	g.logger.Info("incident reported", "vehicle_id", r.VehicleID, "incident", r.Incident, "status", ev.Vehicle.Status)
	g.publish(ev)
	return ev.Vehicle, nil
}

// Apply runs an admin edit. Delete returns the last known state.
func (g *Gateway) Apply(ctx context.Context, e AdminEdit) (state domain.VehicleState, err error) {
	defer obs.Time(ctx, "gateway.Apply")(&err)
	defer func() { g.metrics.ingest("admin_"+string(e.Op), result(err)) }()

	if err := g.check(e); err != nil {
		return domain.VehicleState{}, err
	}

	id := strings.TrimSpace(e.VehicleID)
	if e.Op == EditCreate {
		if id == "" {
			id = uuid.NewString()
		}
		if e.Type == nil {
			return domain.VehicleState{}, domain.NewValidationError("type", "is required")
		}
	}

	unlock := g.locks.Lock(id)
	defer unlock()

	var ev domain.ChangeEvent
	switch e.Op {
	case EditCreate:
		ev, err = g.store.Create(ctx, id, e.fields())
	case EditUpdate:
		ev, err = g.store.Update(ctx, id, e.fields())
	case EditUpsert:
		ev, err = g.store.Upsert(ctx, id, e.fields())
	case EditDelete:
		ev, err = g.store.Remove(ctx, id)
	}
	if err != nil {
		return domain.VehicleState{}, fmt.Errorf("admin %s: %w", e.Op, err)
	}

	g.logger.Info("vehicle edited", "op", e.Op, "vehicle_id", id)
	g.publish(ev)
	return ev.Vehicle, nil
}
