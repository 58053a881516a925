package handlers

import (
	"net/http"
	"strconv"
	"time"

	"transit-tracking-service/internal/adapters/gtfsrt"
	"transit-tracking-service/internal/tracking"
)

// FeedHandler serves the fleet as a GTFS-realtime protobuf feed.
type FeedHandler struct {
	Store *tracking.Store
}

func (h *FeedHandler) VehiclePositions(w http.ResponseWriter, r *http.Request) {
	body, err := gtfsrt.Encode(h.Store.ListAll(), time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
