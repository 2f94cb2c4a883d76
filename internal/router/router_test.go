package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnkday/goal-service/internal/handler"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/notifier"
	"github.com/lnkday/goal-service/internal/service"
	"github.com/lnkday/goal-service/internal/storage"
)

type testServer struct {
	handler  http.Handler
	webhooks *atomic.Int32
}

// newTestServer wires the real services over the memory stores. Webhook
// deliveries go to a local receiver.
func newTestServer(t *testing.T) (*testServer, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var hits atomic.Int32
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	goals := storage.NewMemoryGoalStorage()
	notifications := storage.NewMemoryNotificationStorage()
	dispatcher := notifier.NewDispatcher(notifications,
		[]notifier.Channel{notifier.NewWebhookChannel(receiver.Client())},
		notifier.DispatcherConfig{MaxAttempts: 1}, logger)

	h := handler.NewGoalHandler(
		service.NewGoalService(goals, notifications, logger),
		service.NewProgressService(goals, dispatcher, logger),
		service.NewAnalyticsService(goals, logger),
		logger,
	)
	health := handler.NewHealthHandler(service.NewHealthService(map[string]service.Pinger{"goals": goals}, logger), logger)
	return &testServer{handler: NewRouter(h, health), webhooks: &hits}, receiver.URL
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) createGoal(t *testing.T, in model.CreateGoalInput) model.Goal {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/goals", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.Goal](t, rec)
}

func Test_NewRouter_Lifecycle(t *testing.T) {
	srv, hook := newTestServer(t)

	g := srv.createGoal(t, model.CreateGoalInput{
		CampaignID:    "c1",
		TeamID:        "t1",
		Name:          "Signups",
		Type:          model.GoalTypeConversions,
		Target:        100,
		Notifications: model.NotificationConfig{WebhookURL: hook},
	})
	assert.Equal(t, model.StatusActive, g.Status)
	assert.Len(t, g.Thresholds, 4)

	sixty := 60.0
	rec := srv.do(t, http.MethodPost, "/goals/"+g.ID+"/progress", model.ProgressUpdate{SetValue: &sixty})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[model.Goal](t, rec)
	assert.Equal(t, 60.0, updated.Current)
	assert.True(t, updated.Thresholds[0].Notified)
	assert.Equal(t, int32(1), srv.webhooks.Load())

	rec = srv.do(t, http.MethodGet, "/goals/"+g.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[model.ProgressDetail](t, rec)
	assert.Equal(t, 60.0, detail.Percentage)
	assert.Equal(t, 40.0, detail.Remaining)

	rec = srv.do(t, http.MethodGet, "/goals/"+g.ID+"/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ns := decodeBody[[]model.Notification](t, rec)
	require.Len(t, ns, 1)
	assert.Equal(t, model.NotificationThresholdReached, ns[0].Type)
	assert.Equal(t, 50.0, ns[0].Percentage)
	assert.True(t, ns[0].Success)

	rec = srv.do(t, http.MethodPost, "/goals/"+g.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusPaused, decodeBody[model.Goal](t, rec).Status)

	rec = srv.do(t, http.MethodPost, "/goals/"+g.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/goals/"+g.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/goals/"+g.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_NewRouter_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	g := srv.createGoal(t, model.CreateGoalInput{CampaignID: "c1", Name: "Clicks", Type: model.GoalTypeClicks, Target: 10})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"create without name", http.MethodPost, "/goals", model.CreateGoalInput{CampaignID: "c1", Type: model.GoalTypeClicks, Target: 10}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/goals", "not an object", http.StatusBadRequest},
		{"unknown goal", http.MethodGet, "/goals/missing", nil, http.StatusNotFound},
		{"progress on unknown goal", http.MethodPost, "/goals/missing/progress", map[string]float64{"increment": 1}, http.StatusNotFound},
		{"increment and set", http.MethodPost, "/goals/" + g.ID + "/progress", map[string]float64{"increment": 1, "set_value": 2}, http.StatusBadRequest},
		{"bad trend period", http.MethodGet, "/goals/" + g.ID + "/trends?period=year", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/goals/" + g.ID + "/notifications?limit=-1", nil, http.StatusBadRequest},
		{"compare without ids", http.MethodGet, "/goals/compare?a=" + g.ID, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func Test_NewRouter_Campaign(t *testing.T) {
	srv, _ := newTestServer(t)
	clicks := srv.createGoal(t, model.CreateGoalInput{CampaignID: "c1", TeamID: "t1", Name: "Clicks", Type: model.GoalTypeClicks, Target: 100})
	revenue := srv.createGoal(t, model.CreateGoalInput{CampaignID: "c1", TeamID: "t1", Name: "Revenue", Type: model.GoalTypeRevenue, Target: 1000})

	rec := srv.do(t, http.MethodPost, "/campaigns/c1/progress", map[string]float64{"clicks": 25, "revenue": 100})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/campaigns/c1/goals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Goal](t, rec), 2)

	rec = srv.do(t, http.MethodGet, "/campaigns/c1/goals/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[model.CampaignGoalSummary](t, rec)
	assert.Equal(t, 2, sum.Total)
	assert.InDelta(t, 17.5, sum.AverageProgress, 1e-9)

	rec = srv.do(t, http.MethodGet, "/goals/compare?a="+clicks.ID+"&b="+revenue.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cmp := decodeBody[model.GoalComparison](t, rec)
	assert.Equal(t, clicks.ID, cmp.Winner)

	rec = srv.do(t, http.MethodGet, "/teams/t1/goals/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[model.TeamGoalStats](t, rec)
	assert.Equal(t, 2, stats.Total)

	rec = srv.do(t, http.MethodPost, "/goals/"+clicks.ID+"/projection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/goals/"+clicks.ID+"/trends?period=week", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func Test_NewRouter_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/readyz", nil).Code)

	rec := srv.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
