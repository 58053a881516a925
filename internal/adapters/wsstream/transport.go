package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/tracking"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxMessageBytes     = 4096
)

// Transport writes deliveries as JSON text frames to one websocket.
// gorilla/websocket allows a single concurrent writer, so writes are serialized.
type Transport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewTransport(conn *websocket.Conn, writeTimeout time.Duration) *Transport {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Transport{conn: conn, writeTimeout: writeTimeout}
}

func (t *Transport) deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(t.writeTimeout)
}

func (t *Transport) Send(ctx context.Context, d tracking.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope(d))
	if err != nil {
		return fmt.Errorf("send: encode seq=%d: %w", d.Seq, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(t.deadline(ctx))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send: write seq=%d: %w", d.Seq, err)
	}
	return nil
}

func (t *Transport) ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

// Close sends a normal closure frame and closes the socket. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

type Options struct {
	// PingInterval is how often the server pings. A peer that sends neither
	// a pong nor a message for two intervals is closed with ReasonTimeout.
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Serve runs an admitted connection over ws until it closes.
func Serve(ctx context.Context, mgr *tracking.Manager, conn *tracking.Connection, ws *websocket.Conn, opts Options, logger *slog.Logger) {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "wsstream", "conn_id", conn.ID)

	transport := NewTransport(ws, opts.WriteTimeout)
	inbound := make(chan tracking.Command, 16)

	go readLoop(mgr, conn, ws, inbound, 2*opts.PingInterval, logger)
	go pingLoop(mgr, conn, transport, opts.PingInterval)

	mgr.Serve(ctx, conn, transport, inbound)
}

func readLoop(mgr *tracking.Manager, conn *tracking.Connection, ws *websocket.Conn, inbound chan<- tracking.Command, wait time.Duration, logger *slog.Logger) {
	defer close(inbound)

	ws.SetReadLimit(maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(wait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				mgr.Close(conn, tracking.ReasonTimeout)
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read ended", "err", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wait))

		var cmd dto.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = conn.Outbox().Enqueue(tracking.Delivery{Kind: tracking.DeliveryError, Message: "malformed message: " + err.Error()})
			continue
		}

		select {
		case inbound <- Command(cmd):
		case <-conn.Done():
			return
		}
	}
}

func pingLoop(mgr *tracking.Manager, conn *tracking.Connection, t *Transport, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := t.ping(); err != nil {
				mgr.Close(conn, tracking.ReasonTransportError)
				return
			}
		}
	}
}
