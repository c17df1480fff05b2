package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagesplit/pagesplit/internal/config"
	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/store"
)

func newTestServer(t *testing.T) (*Server, *experiment.Service) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := experiment.NewService(s)
	cfg := &config.Config{
		ListenAddr:    ":0",
		DBPath:        dbPath,
		Significance:  0.95,
		AllowedOrigin: "*",
	}
	return New(s, svc, cfg), svc
}

func seedRunningExperiment(t *testing.T, svc *experiment.Service) *store.Experiment {
	t.Helper()
	ctx := context.Background()
	exp, err := svc.CreateExperiment(ctx, experiment.Definition{
		Name:           "cta-color",
		Type:           store.TypeButtonColor,
		TrafficSplit:   100,
		TargetSelector: ".cta",
		Significance:   0.95,
		Variants: []experiment.VariantDefinition{
			{Name: "blue", CSSClass: "btn-blue", IsControl: true},
			{Name: "orange", CSSClass: "btn-orange"},
		},
	})
	require.NoError(t, err)

	exp, err = svc.Transition(ctx, exp.ID, store.StatusRunning)
	require.NoError(t, err)
	return exp
}

func postJSON(t *testing.T, h http.Handler, path string, body any, modify ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range modify {
		m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, 0, resp.ExperimentsCount)
}

func TestBeacon_MalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/b", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBeacon_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/b", BeaconRequest{EventType: "visit"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBeacon_UnknownEventType(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)

	w := postJSON(t, srv.Handler(), "/b", BeaconRequest{
		ExperimentID: exp.ID, EventType: "pageview", VisitorID: "visitor-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBeacon_WellFormedAlwaysAccepted(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)

	// Unassigned visitor: event is dropped internally but the beacon still
	// gets 204.
	w := postJSON(t, srv.Handler(), "/b", BeaconRequest{
		ExperimentID: exp.ID, EventType: "visit", VisitorID: "visitor-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestBeacon_RecordsForAssignedVisitor(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)
	ctx := context.Background()

	_, err := svc.AssignOrGet(ctx, "visitor-1", exp.ID)
	require.NoError(t, err)

	w := postJSON(t, srv.Handler(), "/b", BeaconRequest{
		ExperimentID: exp.ID, EventType: "visit", VisitorID: "visitor-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = postJSON(t, srv.Handler(), "/b", BeaconRequest{
		ExperimentID: exp.ID, EventType: "conversion", VisitorID: "visitor-1", Value: 9.99,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	events, err := srv.store.GetEvents(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestBeacon_Preflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/b", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAssign_MissingExperimentID(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/assign", AssignRequest{VisitorID: "visitor-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssign_UnknownExperiment(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/assign", AssignRequest{
		ExperimentID: "nope", VisitorID: "visitor-1",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssign_IdempotentForVisitor(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)

	var first AssignResponse
	w := postJSON(t, srv.Handler(), "/api/assign", AssignRequest{
		ExperimentID: exp.ID, VisitorID: "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))
	require.NotEmpty(t, first.Variant.ID)
	require.Equal(t, "class", first.Mutation)
	require.Equal(t, ".cta", first.TargetSelector)

	for i := 0; i < 10; i++ {
		var again AssignResponse
		w := postJSON(t, srv.Handler(), "/api/assign", AssignRequest{
			ExperimentID: exp.ID, VisitorID: "visitor-1",
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.NewDecoder(w.Body).Decode(&again))
		require.Equal(t, first.Variant.ID, again.Variant.ID)
	}
}

func TestAssign_IssuesVisitorCookieWhenAbsent(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)

	w := postJSON(t, srv.Handler(), "/api/assign", AssignRequest{ExperimentID: exp.ID})
	require.Equal(t, http.StatusOK, w.Code)

	var resp AssignResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.VisitorID)

	cookies := w.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "ps_vid" && c.Value == resp.VisitorID {
			found = true
		}
	}
	require.True(t, found, "ps_vid cookie not set")
}

func TestListExperiments_DefaultsToRunning(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	_, err := svc.CreateExperiment(context.Background(), experiment.Definition{
		Name: "still-draft", Type: store.TypeHeadlineText, TrafficSplit: 100,
		TargetSelector: "h1", Significance: 0.95,
		Variants: []experiment.VariantDefinition{{Name: "original", IsControl: true}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []ExperimentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	require.Equal(t, "cta-color", resp[0].Name)
	require.Len(t, resp[0].Variants, 2)
}

func TestListExperiments_NonRunningStatusRequiresToken(t *testing.T) {
	srv, svc := newTestServer(t)

	_, err := svc.CreateExperiment(context.Background(), experiment.Definition{
		Name: "unlaunched", Type: store.TypeHeadlineText, TrafficSplit: 100,
		TargetSelector: "h1", Significance: 0.95,
		Variants: []experiment.VariantDefinition{{Name: "original", IsControl: true}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments?status=draft", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code, "draft definitions must not be public")

	req = httptest.NewRequest(http.MethodGet, "/api/experiments?status=draft", nil)
	withBearer(srv.Token())(req)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []ExperimentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	require.Equal(t, "unlaunched", resp[0].Name)
}

func TestCreateExperiment_RequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/experiments", CreateExperimentRequest{
		Name: "headline", Type: "headline-text",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestCreateExperiment_WithToken(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/experiments", CreateExperimentRequest{
		Name:           "headline",
		Type:           "headline-text",
		TargetSelector: "h1",
		Variants: []CreateVariantRequest{
			{Name: "original", Content: "Learn Go the Hard Way", IsControl: true},
			{Name: "punchy", Content: "Ship Go This Weekend"},
		},
	}, withBearer(srv.Token()))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp ExperimentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "draft", resp.Status)
	require.Equal(t, float64(100), resp.TrafficSplit, "traffic split defaults to 100")
	require.Equal(t, 0.95, resp.Significance, "significance defaults from config")
	require.Len(t, resp.Variants, 2)
	require.True(t, resp.Variants[0].IsControl)
}

func TestCreateExperiment_InvalidDefinition(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/experiments", CreateExperimentRequest{
		Name: "bad", Type: "made-up-type",
	}, withBearer(srv.Token()))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExperimentSubresource_RequiresToken(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/cta-color", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExperimentSubresource_Get(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/cta-color", nil)
	withBearer(srv.Token())(req)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ExperimentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "running", resp.Status)
}

func TestPatchStatus_InvalidTransitionConflicts(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)

	_, err := svc.Transition(context.Background(), exp.ID, store.StatusCompleted)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/api/experiments/cta-color/status",
		strings.NewReader(`{"status":"running"}`))
	withBearer(srv.Token())(req)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestPatchStatus_Pause(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/experiments/cta-color/status",
		strings.NewReader(`{"status":"paused"}`))
	withBearer(srv.Token())(req)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ExperimentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "paused", resp.Status)
}

func TestGetStats(t *testing.T) {
	srv, svc := newTestServer(t)
	exp := seedRunningExperiment(t, svc)
	ctx := context.Background()

	v, err := svc.AssignOrGet(ctx, "visitor-1", exp.ID)
	require.NoError(t, err)
	svc.TrackVisit(ctx, "visitor-1", exp.ID)
	svc.TrackConversion(ctx, "visitor-1", exp.ID, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/cta-color/stats", nil)
	withBearer(srv.Token())(req)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "cta-color", resp.Experiment)
	require.Equal(t, 1, resp.TotalVisitors)
	require.Equal(t, 1, resp.TotalConversions)
	require.Len(t, resp.Variants, 2)

	var assigned *VariantStatsEntry
	for i := range resp.Variants {
		if resp.Variants[i].ID == v.ID {
			assigned = &resp.Variants[i]
		}
	}
	require.NotNil(t, assigned)
	require.Equal(t, 1, assigned.Visitors)
}

func TestDeleteExperiment(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/experiments/cta-color", nil)
	withBearer(srv.Token())(req)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/experiments/cta-color", nil)
	withBearer(srv.Token())(req)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddVariant_DraftOnly(t *testing.T) {
	srv, svc := newTestServer(t)
	seedRunningExperiment(t, svc)

	w := postJSON(t, srv.Handler(), "/api/experiments/cta-color/variants",
		CreateVariantRequest{Name: "green", CSSClass: "btn-green"},
		withBearer(srv.Token()))
	require.Equal(t, http.StatusBadRequest, w.Code, "variants are fixed once running")
}

func TestClientJS_Served(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ps.js", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "javascript")
	require.Contains(t, w.Body.String(), "ps_vid")
}
