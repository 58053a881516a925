package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"transit-tracking-service/internal/adapters/auth"
	"transit-tracking-service/internal/adapters/repositories"
	"transit-tracking-service/internal/adapters/wsstream"
	"transit-tracking-service/internal/api/dto"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/tracking"
)

const testSecret = "router-test-secret-0123456789"

type testServer struct {
	*httptest.Server
	authority *auth.JWTAuthority
	manager   *tracking.Manager
}

func seedVehicle(id string, status domain.Status) domain.VehicleState {
	return domain.VehicleState{
		ID:           id,
		Registration: "GJ-01-" + id,
		Type:         domain.VehicleBus,
		Capacity:     40,
		RouteID:      "R1",
		Status:       status,
		Position:     domain.Position{Latitude: 23.03, Longitude: 72.58},
		Incident:     domain.IncidentNone,
		CreatedAt:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := repositories.NewMemoryRepository()
	require.NoError(t, repo.UpsertRoute(ctx, &domain.RouteSummary{
		ID:     "R1",
		Name:   "Central - Airport",
		Number: "101",
		Color:  "#10B981",
		Start:  domain.RouteStop{Name: "Central", Latitude: 23.0225, Longitude: 72.5714},
		End:    domain.RouteStop{Name: "Airport", Latitude: 23.0734, Longitude: 72.6266},
		Stops: []domain.RouteStop{
			{Name: "Central", Latitude: 23.0225, Longitude: 72.5714, Order: 1},
			{Name: "Airport", Latitude: 23.0734, Longitude: 72.6266, Order: 2},
		},
		DistanceKm:       8,
		EstimatedMinutes: 25,
		Active:           true,
	}))
	for _, v := range []domain.VehicleState{
		seedVehicle("V1", domain.StatusActive),
		seedVehicle("V2", domain.StatusInactive),
	} {
		require.NoError(t, repo.UpsertVehicle(ctx, &v))
	}

	reg := prometheus.NewRegistry()
	metrics, err := tracking.NewMetrics(reg)
	require.NoError(t, err)

	catalog := tracking.NewRouteCatalog(repo, logger)
	store := tracking.NewStore(repo, catalog, logger)
	_, err = store.Load(ctx)
	require.NoError(t, err)
	registry := tracking.NewRegistry()
	dispatcher := tracking.NewDispatcher(registry, logger, metrics)
	gateway := tracking.NewGateway(store, dispatcher, logger, metrics)
	manager := tracking.NewManager(store, catalog, registry, dispatcher, gateway,
		tracking.ManagerConfig{OutboxSize: 32, WriteTimeout: time.Second}, logger, metrics)

	authority, err := auth.NewJWTAuthority(testSecret, time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Store:    store,
		Catalog:  catalog,
		Registry: registry,
		Gateway:  gateway,
		Manager:  manager,
		Auth:     authority,
		Stream:   wsstream.Options{PingInterval: time.Second, WriteTimeout: time.Second},
		Gatherer: reg,
		Logger:   logger,
	}))
	t.Cleanup(func() {
		manager.Shutdown()
		srv.Close()
	})
	return &testServer{Server: srv, authority: authority, manager: manager}
}

func (s *testServer) token(t *testing.T, role domain.Role, vehicleIDs ...string) string {
	t.Helper()
	tok, err := s.authority.Issue(domain.Principal{Subject: "u-" + string(role), Role: role, VehicleIDs: vehicleIDs})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	res, body := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
	got := decode[map[string]any](t, body)
	assert.Equal(t, "ok", got["status"])
	assert.EqualValues(t, 2, got["vehicles"])

	res, _ = s.do(t, http.MethodPost, "/health", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestActiveVehiclesEmbedRoute(t *testing.T) {
	s := newTestServer(t)

	res, body := s.do(t, http.MethodGet, "/api/vehicles/active", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := decode[dto.ListVehiclesResponse](t, body)
	require.Equal(t, 1, got.Count)
	v := got.Vehicles[0]
	assert.Equal(t, "V1", v.ID)
	require.NotNil(t, v.Route)
	assert.Equal(t, dto.RouteRef{ID: "R1", Name: "Central - Airport", Number: "101", Color: "#10B981"}, *v.Route)

	res, body = s.do(t, http.MethodGet, "/api/vehicles", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, decode[dto.ListVehiclesResponse](t, body).Count)
}

func TestGetVehicleNotFound(t *testing.T) {
	s := newTestServer(t)

	res, body := s.do(t, http.MethodGet, "/api/vehicles/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, `{"error":"not found"}`, string(body))
}

func TestLocationAuthorization(t *testing.T) {
	s := newTestServer(t)
	body := `{"latitude":23.05,"longitude":72.6,"speed":30}`

	res, _ := s.do(t, http.MethodPut, "/api/vehicles/V2/location", "", body)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V2/location", "not-a-token", body)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V2/location", s.token(t, domain.RoleDriver, "V1"), body)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data := s.do(t, http.MethodPut, "/api/vehicles/V2/location", s.token(t, domain.RoleDriver, "V2"), body)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	v := decode[dto.VehicleResponse](t, data).Vehicle
	assert.Equal(t, 23.05, v.CurrentLocation.Latitude)
	assert.Equal(t, 30.0, v.Speed)
	assert.Equal(t, string(domain.StatusEnRoute), v.Status)
	assert.NotNil(t, v.CurrentLocation.UpdatedAt)
}

func TestLocationValidation(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)

	res, data := s.do(t, http.MethodPut, "/api/vehicles/V1/location", admin, `{"latitude":123,"longitude":72.6}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var body struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "latitude", body.Fields[0].Field)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V1/location", admin, `{"latitude":1,"longitude":2,"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V1/location", admin, `{"latitude":1,"longitude":2}{}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/ghost/location", admin, `{"latitude":1,"longitude":2}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestIncidentRoundTrip(t *testing.T) {
	s := newTestServer(t)
	driver := s.token(t, domain.RoleDriver, "V1")

	res, data := s.do(t, http.MethodPut, "/api/vehicles/V1/incident", driver,
		`{"incidentStatus":"puncture","incidentDescription":"rear left tyre"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	v := decode[dto.VehicleResponse](t, data).Vehicle
	assert.Equal(t, "puncture", v.IncidentStatus)
	assert.Equal(t, string(domain.StatusMaintenance), v.Status)
	assert.NotNil(t, v.IncidentTime)

	res, data = s.do(t, http.MethodPut, "/api/vehicles/V1/incident", driver, `{"incidentStatus":"none"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	v = decode[dto.VehicleResponse](t, data).Vehicle
	assert.Equal(t, "none", v.IncidentStatus)
	assert.Equal(t, string(domain.StatusActive), v.Status)
	assert.Nil(t, v.IncidentTime)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V1/incident", driver, `{"incidentStatus":"alien_abduction"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAdminVehicleLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)

	res, _ := s.do(t, http.MethodPost, "/api/vehicles", s.token(t, domain.RoleDriver, "V1"), `{"id":"V9","type":"tram"}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data := s.do(t, http.MethodPost, "/api/vehicles", admin,
		`{"id":"V9","registration":"TR-9","type":"tram","capacity":120,"routeId":"R1","status":"active"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	v := decode[dto.VehicleResponse](t, data).Vehicle
	assert.Equal(t, "V9", v.ID)
	require.NotNil(t, v.Route)
	assert.Equal(t, "Central - Airport", v.Route.Name)
	assert.Equal(t, 23.0225, v.CurrentLocation.Latitude)

	res, _ = s.do(t, http.MethodPost, "/api/vehicles", admin, `{"id":"V9","type":"tram"}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, data = s.do(t, http.MethodPut, "/api/vehicles/V9", admin, `{"capacity":100}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 100, decode[dto.VehicleResponse](t, data).Vehicle.Capacity)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V9", admin, `{"id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V10", admin, `{"capacity":30}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, "creating through PUT needs a type")

	res, data = s.do(t, http.MethodPut, "/api/vehicles/V10", admin, `{"type":"minibus","capacity":30}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "V10", decode[dto.VehicleResponse](t, data).Vehicle.ID)
	res, _ = s.do(t, http.MethodGet, "/api/vehicles/V10", "", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = s.do(t, http.MethodDelete, "/api/vehicles/V9", admin, "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = s.do(t, http.MethodGet, "/api/vehicles/V9", "", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateGeneratesID(t *testing.T) {
	s := newTestServer(t)

	res, data := s.do(t, http.MethodPost, "/api/vehicles", s.token(t, domain.RoleAdmin), `{"type":"van"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	assert.NotEmpty(t, decode[dto.VehicleResponse](t, data).Vehicle.ID)
}

func TestVehicleETA(t *testing.T) {
	s := newTestServer(t)

	res, data := s.do(t, http.MethodGet, "/api/vehicles/V1/eta", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	eta := decode[dto.ETAResponse](t, data)
	assert.Equal(t, "R1", eta.RouteID)
	assert.Positive(t, eta.RemainingKm)
	assert.Equal(t, "schedule", eta.Basis)
	require.NotNil(t, eta.MinutesToEnd)
}

func TestRoutesAdminAndStats(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)

	res, data := s.do(t, http.MethodPut, "/api/routes/R2", admin,
		`{"name":"Ring Road","number":"7","stops":[{"name":"A","latitude":23.1,"longitude":72.5,"order":1}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	r := decode[dto.RouteResponse](t, data).Route
	assert.Equal(t, "R2", r.ID)
	assert.Equal(t, domain.DefaultRouteColor, r.Color)
	assert.True(t, r.Active)

	res, _ = s.do(t, http.MethodPut, "/api/routes/R3", admin, `{"number":"8"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = s.do(t, http.MethodGet, "/api/routes", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, decode[dto.ListRoutesResponse](t, data).Count)

	res, data = s.do(t, http.MethodGet, "/api/routes/stats", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	stats := decode[dto.RouteStatsResponse](t, data)
	require.Len(t, stats.Routes, 2)
	assert.Equal(t, dto.RouteStats{RouteID: "R1", Name: "Central - Airport", Number: "101", TotalVehicles: 2, ActiveVehicles: 1}, stats.Routes[0])

	res, _ = s.do(t, http.MethodDelete, "/api/routes/R2", admin, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = s.do(t, http.MethodGet, "/api/routes/R2", "", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/vehicles/V2/incident", s.token(t, domain.RoleAdmin), `{"incidentStatus":"breakdown"}`)

	res, data := s.do(t, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, dto.StatsResponse{
		TotalVehicles:  2,
		ActiveVehicles: 1,
		OpenIncidents:  1,
		TotalRoutes:    1,
		ActiveRoutes:   1,
	}, decode[dto.StatsResponse](t, data))
}

func TestVehiclePositionsFeed(t *testing.T) {
	s := newTestServer(t)

	res, data := s.do(t, http.MethodGet, "/api/feeds/vehicle-positions.pb", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/x-protobuf", res.Header.Get("Content-Type"))

	var feed gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(data, &feed))
	require.Len(t, feed.GetEntity(), 1)
	assert.Equal(t, "V1", feed.GetEntity()[0].GetVehicle().GetVehicle().GetId())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/vehicles/V1/location", s.token(t, domain.RoleAdmin), `{"latitude":23.1,"longitude":72.6}`)

	res, data := s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `transit_ingest_updates_total{kind="location",result="ok"} 1`)
}

type wireEnvelope struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, s *testServer, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" + query
	ws, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) wireEnvelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env wireEnvelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestStreamRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ws := dialStream(t, s, "")

	// The snapshot reply proves the connection is admitted and serving.
	require.NoError(t, ws.WriteJSON(dto.Command{Action: tracking.ActionGetActiveVehicles}))
	env := readEnvelope(t, ws)
	require.Equal(t, dto.EventActiveVehicles, env.Event)
	assert.Equal(t, uint64(1), env.Seq)
	assert.Equal(t, 1, decode[dto.ListVehiclesResponse](t, env.Data).Count)

	res, _ := s.do(t, http.MethodPut, "/api/vehicles/V1/location", s.token(t, domain.RoleAdmin), `{"latitude":23.06,"longitude":72.61}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	env = readEnvelope(t, ws)
	require.Equal(t, dto.EventVehicleLocationUpdate, env.Event)
	assert.Equal(t, uint64(2), env.Seq)
	loc := decode[dto.LocationUpdateData](t, env.Data)
	assert.Equal(t, "V1", loc.VehicleID)
	assert.Equal(t, 23.06, loc.Location.Latitude)

	res, _ = s.do(t, http.MethodPut, "/api/vehicles/V1/incident", s.token(t, domain.RoleAdmin), `{"incidentStatus":"accident"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	env = readEnvelope(t, ws)
	require.Equal(t, dto.EventVehicleIncident, env.Event)
	assert.Equal(t, "accident", decode[dto.IncidentData](t, env.Data).IncidentStatus)
}

func TestStreamDriverPingAndErrors(t *testing.T) {
	s := newTestServer(t)
	ws := dialStream(t, s, "?subscribe=vehicle:V2&token="+s.token(t, domain.RoleDriver, "V2"))

	require.NoError(t, ws.WriteJSON(dto.Command{Action: tracking.ActionUpdateVehicleLocation, ID: "V2", Latitude: ptr(23.04), Longitude: ptr(72.59)}))
	env := readEnvelope(t, ws)
	require.Equal(t, dto.EventVehicleLocationUpdate, env.Event)
	assert.Equal(t, string(domain.StatusEnRoute), decode[dto.LocationUpdateData](t, env.Data).Status)

	require.NoError(t, ws.WriteJSON(dto.Command{Action: tracking.ActionUpdateVehicleLocation, ID: "V1", Latitude: ptr(1.0), Longitude: ptr(1.0)}))
	env = readEnvelope(t, ws)
	assert.Equal(t, dto.EventError, env.Event)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env = readEnvelope(t, ws)
	assert.Equal(t, dto.EventError, env.Event)
}

func TestStreamRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=garbage"

	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStreamClientCloseReleasesConnection(t *testing.T) {
	s := newTestServer(t)
	ws := dialStream(t, s, "?subscribe=none")

	require.NoError(t, ws.WriteJSON(dto.Command{Action: tracking.ActionGetActiveVehicles}))
	readEnvelope(t, ws)
	require.Equal(t, 1, s.manager.Len())

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.manager.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func ptr[T any](v T) *T { return &v }

