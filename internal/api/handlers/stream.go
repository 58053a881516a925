package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"transit-tracking-service/internal/adapters/wsstream"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/platform/obs"
	"transit-tracking-service/internal/ports"
	"transit-tracking-service/internal/tracking"
)

// StreamHandler upgrades to a websocket event stream.
//
// Query parameters:
//
//	token      optional capability token for stream-side location pings
//	subscribe  "none" skips the default all-active subscription; otherwise a
//	           comma separated topic list replacing it
type StreamHandler struct {
	Manager *tracking.Manager
	Auth    ports.Authenticator
	Options wsstream.Options
	Logger  *slog.Logger

	Upgrader websocket.Upgrader
}

func (h *StreamHandler) initialTopics(raw string) ([]domain.Topic, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return []domain.Topic{domain.TopicAllActive}, nil
	case "none":
		return nil, nil
	}
	var topics []domain.Topic
	for _, part := range strings.Split(raw, ",") {
		t, err := domain.ParseTopic(part)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p domain.Principal
	token := r.URL.Query().Get("token")
	if token == "" {
		token = BearerToken(r)
	}
	if token != "" {
		if h.Auth == nil {
			writeDomainError(w, r, domain.ErrUnauthorized)
			return
		}
		var err error
		if p, err = h.Auth.Authenticate(r.Context(), token); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	topics, err := h.initialTopics(r.URL.Query().Get("subscribe"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger().Warn("ws upgrade failed", "req_id", obs.RequestID(r.Context()), "err", err)
		return
	}

	conn := h.Manager.Admit(p, topics...)
	wsstream.Serve(r.Context(), h.Manager, conn, ws, h.Options, h.Logger)
}

func (h *StreamHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
