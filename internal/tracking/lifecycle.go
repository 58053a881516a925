package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"transit-tracking-service/internal/domain"
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Close reasons recorded in logs and metrics.
const (
	ReasonClientClosed   = "client_closed"
	ReasonTransportError = "transport_error"
	ReasonTimeout        = "timeout"
	ReasonShutdown       = "shutdown"
)

// Transport writes deliveries to one consumer.
type Transport interface {
	Send(ctx context.Context, d Delivery) error
	Close() error
}

// Command actions accepted from a consumer.
const (
	ActionGetActiveVehicles      = "getActiveVehicles"
	ActionSubscribe              = "subscribe"
	ActionUnsubscribe            = "unsubscribe"
	ActionSubscribeToVehicle     = "subscribeToVehicle"
	ActionUnsubscribeFromVehicle = "unsubscribeFromVehicle"
	ActionSubscribeToRoute       = "subscribeToRoute"
	ActionUnsubscribeFromRoute   = "unsubscribeFromRoute"
	ActionSubscribeAll           = "subscribeAll"
	ActionUnsubscribeAll         = "unsubscribeAll"
	ActionUpdateVehicleLocation  = "updateVehicleLocation"
)

// Command is one inbound control message. ID is a vehicle or route id
// depending on Action; Topic is used by the raw subscribe actions.
type Command struct {
	Action    string
	ID        string
	Topic     string
	Latitude  *float64
	Longitude *float64
	Speed     *float64
	Heading   *float64
}

// Connection is one admitted consumer. A reconnecting client gets a new
// Connection with a new id; nothing carries over.
type Connection struct {
	ID        string
	Principal domain.Principal
	CreatedAt time.Time

	outbox    *Outbox
	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
	reason    atomic.Value // string
}

func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// Done is closed when the connection reaches StateClosed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Reason returns why the connection closed, or "" while it is still live.
func (c *Connection) Reason() string {
	r, _ := c.reason.Load().(string)
	return r
}

func (c *Connection) Outbox() *Outbox { return c.outbox }

type ManagerConfig struct {
	OutboxSize   int
	WriteTimeout time.Duration
}

// Manager admits, serves and evicts consumer connections.
type Manager struct {
	store      *Store
	catalog    *RouteCatalog
	registry   *Registry
	dispatcher *Dispatcher
	gateway    *Gateway
	cfg        ManagerConfig
	logger     *slog.Logger
	metrics    *Metrics

	conns sync.Map // id -> *Connection
}

func NewManager(store *Store, catalog *RouteCatalog, registry *Registry, dispatcher *Dispatcher, gateway *Gateway, cfg ManagerConfig, logger *slog.Logger, metrics *Metrics) *Manager {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		catalog:    catalog,
		registry:   registry,
		dispatcher: dispatcher,
		gateway:    gateway,
		cfg:        cfg,
		logger:     logger.With("component", "lifecycle"),
		metrics:    metrics,
	}
}

// Admit creates a Connecting connection with a fresh id, registers it and
// attaches its outbox. The initial topics are subscribed before any event
// can reach the connection.
func (m *Manager) Admit(p domain.Principal, topics ...domain.Topic) *Connection {
	conn := &Connection{
		ID:        uuid.NewString(),
		Principal: p,
		CreatedAt: time.Now().UTC(),
		outbox:    NewOutbox(m.cfg.OutboxSize),
		done:      make(chan struct{}),
	}
	conn.state.Store(int32(StateConnecting))

	m.registry.Register(conn.ID)
	for _, t := range topics {
		m.registry.Subscribe(conn.ID, t)
	}
	m.dispatcher.Attach(conn.ID, conn.outbox)
	m.conns.Store(conn.ID, conn)
	m.metrics.connOpened()

	m.logger.Info("connection admitted", "conn_id", conn.ID, "subject", p.Subject, "topics", len(topics))
	return conn
}

// Close moves the connection to Closed: subscriptions are dropped, the
// outbox is detached and its queue discarded. Only the first call has effect.
func (m *Manager) Close(conn *Connection, reason string) {
	conn.closeOnce.Do(func() {
		conn.reason.Store(reason)
		conn.state.Store(int32(StateClosed))

		dropped := m.registry.DropConnection(conn.ID)
		m.dispatcher.Detach(conn.ID)
		conn.outbox.Close()
		m.conns.Delete(conn.ID)
		close(conn.done)

		m.metrics.connClosed(reason)
		m.logger.Info("connection closed", "conn_id", conn.ID, "reason", reason, "topics", len(dropped))
	})
}

// Shutdown closes every live connection.
func (m *Manager) Shutdown() {
	m.conns.Range(func(_, v any) bool {
		m.Close(v.(*Connection), ReasonShutdown)
		return true
	})
}

// Len returns the number of live connections.
func (m *Manager) Len() int {
	n := 0
	m.conns.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Serve opens the connection and runs it until ctx ends, the inbound channel
// closes, or the transport fails. Commands are handled in arrival order;
// replies go through the outbox so they stay ordered with events.
func (m *Manager) Serve(ctx context.Context, conn *Connection, transport Transport, inbound <-chan Command) {
	if !conn.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		_ = transport.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writeLoop(ctx, conn, transport)
	}()

	m.commandLoop(ctx, conn, inbound)

	wg.Wait()
	if err := transport.Close(); err != nil {
		m.logger.Debug("transport close", "conn_id", conn.ID, "err", err)
	}
}

func (m *Manager) commandLoop(ctx context.Context, conn *Connection, inbound <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			m.Close(conn, ReasonShutdown)
			return
		case <-conn.done:
			return
		case cmd, ok := <-inbound:
			if !ok {
				m.Close(conn, ReasonClientClosed)
				return
			}
			if conn.State() != StateOpen {
				return
			}
			m.handle(ctx, conn, cmd)
		}
	}
}

func (m *Manager) writeLoop(ctx context.Context, conn *Connection, transport Transport) {
	for {
		select {
		case <-conn.done:
			return
		case <-ctx.Done():
			return
		case <-conn.outbox.Ready():
		}

		for _, d := range conn.outbox.Drain() {
			if conn.State() == StateClosed {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
			err := transport.Send(sendCtx, d)
			cancel()
			if err != nil {
				terr := &domain.TransportError{ConnID: conn.ID, Err: err}
				m.logger.Warn("send failed", "conn_id", conn.ID, "seq", d.Seq, "err", terr)
				m.Close(conn, ReasonTransportError)
				return
			}
		}
	}
}

func (m *Manager) reply(conn *Connection, d Delivery) {
	err := conn.outbox.Enqueue(d)
	if errors.Is(err, domain.ErrBackpressureDrop) {
		m.metrics.dropped()
	}
}

func (m *Manager) replyError(conn *Connection, err error) {
	m.reply(conn, Delivery{Kind: DeliveryError, Message: err.Error()})
}

// Snapshot returns the active fleet with route display data.
func (m *Manager) Snapshot(ctx context.Context) []ActiveVehicle {
	return m.catalog.Annotate(ctx, m.store.ListActive())
}

func (m *Manager) handle(ctx context.Context, conn *Connection, cmd Command) {
	switch cmd.Action {
	case ActionGetActiveVehicles:
		m.reply(conn, Delivery{Kind: DeliverySnapshot, Snapshot: m.Snapshot(ctx)})

	case ActionSubscribe, ActionUnsubscribe:
		topic, err := domain.ParseTopic(cmd.Topic)
		if err != nil {
			m.replyError(conn, err)
			return
		}
		m.toggle(conn, cmd.Action == ActionSubscribe, topic)

	case ActionSubscribeToVehicle, ActionUnsubscribeFromVehicle:
		if cmd.ID == "" {
			m.replyError(conn, domain.NewValidationError("id", "vehicle id is required"))
			return
		}
		m.toggle(conn, cmd.Action == ActionSubscribeToVehicle, domain.VehicleTopic(cmd.ID))

	case ActionSubscribeToRoute, ActionUnsubscribeFromRoute:
		if cmd.ID == "" {
			m.replyError(conn, domain.NewValidationError("id", "route id is required"))
			return
		}
		m.toggle(conn, cmd.Action == ActionSubscribeToRoute, domain.RouteTopic(cmd.ID))

	case ActionSubscribeAll, ActionUnsubscribeAll:
		m.toggle(conn, cmd.Action == ActionSubscribeAll, domain.TopicAllActive)

	case ActionUpdateVehicleLocation:
		if !conn.Principal.CanReportFor(cmd.ID) {
			m.replyError(conn, fmt.Errorf("update location vehicle_id=%s: %w", cmd.ID, domain.ErrForbidden))
			return
		}
		_, err := m.gateway.ApplyLocation(ctx, LocationUpdate{
			VehicleID: cmd.ID,
			Latitude:  cmd.Latitude,
			Longitude: cmd.Longitude,
			Speed:     cmd.Speed,
			Heading:   cmd.Heading,
		})
		if err != nil {
			m.replyError(conn, err)
		}

	default:
		m.replyError(conn, domain.NewValidationError("action", fmt.Sprintf("unknown action %q", cmd.Action)))
	}
}

// MaxTopicsPerConnection bounds how many topics one connection may hold.
const MaxTopicsPerConnection = 256

func (m *Manager) toggle(conn *Connection, subscribe bool, topic domain.Topic) {
	if subscribe {
		held := m.registry.Topics(conn.ID)
		if len(held) >= MaxTopicsPerConnection && !slices.Contains(held, topic) {
			m.replyError(conn, domain.NewValidationError("topic",
				fmt.Sprintf("at most %d topics per connection", MaxTopicsPerConnection)))
			return
		}
		m.registry.Subscribe(conn.ID, topic)
	} else {
		m.registry.Unsubscribe(conn.ID, topic)
	}
	m.logger.Debug("subscription changed", "conn_id", conn.ID, "topic", topic, "subscribed", subscribe)
}
