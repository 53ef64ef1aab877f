package inspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"voco/internal/observability"
	"voco/internal/protocol"
	"voco/internal/timeline"
)

func TestHealthAndSessionEndpoints(t *testing.T) {
	store := timeline.NewStore(nil)
	store.SetConnState("connected")
	store.Apply(protocol.PlanCreated{
		Type:    protocol.TypePlanCreated,
		Payload: protocol.Plan{InteractionID: "int-1", Goal: "G"},
	})

	srv := New(0, store, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health["status"])
	require.Equal(t, "connected", health["conn_state"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var session timeline.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotNil(t, session.Plan)
	require.Equal(t, "G", session.Plan.Goal)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := promclient.NewRegistry()
	metrics, err := observability.New(reg)
	require.NoError(t, err)
	metrics.Connects.Inc()

	srv := New(0, timeline.NewStore(nil), reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "voco_transport_connects_total 1")
}
