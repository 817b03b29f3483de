package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/question"
	"github.com/emberfix/repaird/internal/retrieval"
	"github.com/emberfix/repaird/internal/session"
)

type stubRetriever struct{}

func (stubRetriever) Retrieve(_ context.Context, _ retrieval.Query, limit int) (*retrieval.Result, error) {
	tutorials := make([]retrieval.RankedTutorial, limit)
	for i := range tutorials {
		tutorials[i] = retrieval.RankedTutorial{ID: string(rune('a' + i))}
	}
	return &retrieval.Result{Tutorials: tutorials}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()

	ks := knowledge.NewStore()
	ks.Publish(knowledge.NewSnapshot(1, []*knowledge.Pattern{
		{
			ID:         "power_failure",
			Category:   "laptop",
			Symptoms:   []string{"no_power", "led_off"},
			Causes:     map[string]float64{"power_supply": 0.8, "battery": 0.2},
			Confidence: 1.0,
		},
	}, nil))

	orch := session.NewOrchestrator(
		ks,
		belief.NewEngine(),
		question.NewSelector(),
		stubRetriever{},
		feedback.NewMemoryStore(),
		session.NewMemoryStore(),
		session.Config{},
		nil,
	)

	srv, err := NewServer(orch, ks, nil, Config{})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func startSession(t *testing.T, srv *Server) *session.View {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions",
		`{"symptoms":["no_power","led_off"],"category":"laptop"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return &view
}

func TestStartSession(t *testing.T) {
	srv := testServer(t)

	view := startSession(t, srv)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, session.StateComplete, view.State)
	assert.Len(t, view.Tutorials, 5)
}

func TestStartSessionRejectsEmptyInput(t *testing.T) {
	srv := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions", `{"category":"laptop"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/sessions", `{"symptoms":["no_power"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSessionWithoutSnapshot(t *testing.T) {
	ks := knowledge.NewStore()
	orch := session.NewOrchestrator(ks, belief.NewEngine(), question.NewSelector(),
		stubRetriever{}, feedback.NewMemoryStore(), session.NewMemoryStore(), session.Config{}, nil)
	srv, err := NewServer(orch, ks, nil, Config{})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions",
		`{"symptoms":["no_power"],"category":"laptop"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetSession(t *testing.T) {
	srv := testServer(t)
	view := startSession(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/v1/sessions/"+view.SessionID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnswerOnTerminalSessionConflicts(t *testing.T) {
	srv := testServer(t)
	view := startSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions/"+view.SessionID+"/answer",
		`{"question_id":"battery_led","answer":"no"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnswerValidation(t *testing.T) {
	srv := testServer(t)
	view := startSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions/"+view.SessionID+"/answer",
		`{"answer":"no"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFeedback(t *testing.T) {
	srv := testServer(t)
	view := startSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sessions/"+view.SessionID+"/feedback",
		`{"tutorial_id":"a","resolved":true,"clarity_rating":5,"accuracy_rating":4}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/sessions/"+view.SessionID+"/feedback",
		`{"resolved":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAuditTrail(t *testing.T) {
	srv := testServer(t)
	view := startSession(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/v1/sessions/"+view.SessionID+"/trail", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var trail []session.TrailEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	require.NotEmpty(t, trail)
	assert.Equal(t, "session_started", trail[0].Action)
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.KnowledgeHealthy)
	assert.Equal(t, int64(1), resp.SnapshotVersion)
}

func TestHealthzDegradedWithoutSnapshot(t *testing.T) {
	ks := knowledge.NewStore()
	orch := session.NewOrchestrator(ks, belief.NewEngine(), question.NewSelector(),
		stubRetriever{}, feedback.NewMemoryStore(), session.NewMemoryStore(), session.Config{}, nil)
	srv, err := NewServer(orch, ks, nil, Config{})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
