package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"launchpad-deployment/internal/config"
	"launchpad-deployment/internal/models"
	"launchpad-deployment/internal/pipeline"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logSnapshot struct {
	entries []models.LogEntry
	status  models.RunStatus
}

type fakeDeployer struct {
	mu        sync.Mutex
	startErr  error
	started   []int64
	redeploys []int64
	webhooks  []models.WebhookPayload
	snapshots []logSnapshot
	polls     int
}

func (f *fakeDeployer) StartDeployment(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return f.startErr
}

func (f *fakeDeployer) StartRedeployment(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeploys = append(f.redeploys, id)
	return f.startErr
}

// GetLogs walks through the scripted snapshots and then repeats the last.
func (f *fakeDeployer) GetLogs(int64) ([]models.LogEntry, models.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return nil, models.RunIdle
	}
	i := f.polls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.polls++
	return f.snapshots[i].entries, f.snapshots[i].status
}

func (f *fakeDeployer) ReceiveWebhook(_ context.Context, p models.WebhookPayload) error {
	if p.AppID == 0 {
		return fmt.Errorf("app_id is required: %w", models.ErrInvalidArgument)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, p)
	return nil
}

type fakeSubjects struct {
	nextID   int64
	subjects map[int64]*models.Subject
}

func newFakeSubjects(existing ...*models.Subject) *fakeSubjects {
	f := &fakeSubjects{nextID: 100, subjects: map[int64]*models.Subject{}}
	for _, s := range existing {
		f.subjects[s.ID] = s
	}
	return f
}

func (f *fakeSubjects) Create(_ context.Context, s *models.Subject) error {
	if s.Name == "" || s.SourcePath == "" {
		return fmt.Errorf("name and source path are required: %w", models.ErrInvalidArgument)
	}
	s.ID = f.nextID
	s.Status = models.SubjectDraft
	f.nextID++
	f.subjects[s.ID] = s
	return nil
}

func (f *fakeSubjects) LoadSubject(_ context.Context, id int64) (*models.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

var testSources = &config.Config{StorageRoot: "/srv/uploads"}

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/apps", h.CreateApp).Methods("POST")
	r.HandleFunc("/apps/{id}", h.GetApp).Methods("GET")
	r.HandleFunc("/apps/{id}/deploy", h.Deploy).Methods("POST")
	r.HandleFunc("/apps/{id}/redeploy", h.Redeploy).Methods("POST")
	r.HandleFunc("/apps/{id}/logs", h.Logs).Methods("GET")
	r.HandleFunc("/apps/{id}/logs/stream", h.LogsStream).Methods("GET")
	r.HandleFunc("/webhook", h.Webhook).Methods("POST")
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	router := newRouter(NewHandler(&fakeDeployer{}, newFakeSubjects(), testSources))

	rr := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestCreateApp(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"created", `{"name":"Shop","source_path":"1/shop.zip","framework":"react"}`, http.StatusCreated},
		{"absolute path inside storage root", `{"name":"Shop","source_path":"/srv/uploads/1/shop.zip","framework":"react"}`, http.StatusCreated},
		{"missing source", `{"name":"Shop"}`, http.StatusBadRequest},
		{"absolute path outside storage root", `{"name":"Shop","source_path":"/etc"}`, http.StatusBadRequest},
		{"parent traversal", `{"name":"Shop","source_path":"../../etc/passwd"}`, http.StatusBadRequest},
		{"nested traversal", `{"name":"Shop","source_path":"1/../../shop.zip"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandler(&fakeDeployer{}, newFakeSubjects(), testSources))
			rr := do(t, router, http.MethodPost, "/apps", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantStatus == http.StatusCreated {
				var got models.Subject
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
				assert.Equal(t, int64(100), got.ID)
				assert.Equal(t, models.FrameworkReact, got.Framework)
				assert.Equal(t, models.SubjectDraft, got.Status)
			}
		})
	}
}

func TestGetApp(t *testing.T) {
	subjects := newFakeSubjects(&models.Subject{ID: 4, Name: "Blog", Status: models.SubjectPublished, LiveURL: "https://blog.vercel.app"})
	router := newRouter(NewHandler(&fakeDeployer{}, subjects, testSources))

	rr := do(t, router, http.MethodGet, "/apps/4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got models.Subject
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "https://blog.vercel.app", got.LiveURL)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/apps/5", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/apps/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/apps/0", "").Code)
}

func TestDeploy(t *testing.T) {
	deployer := &fakeDeployer{}
	router := newRouter(NewHandler(deployer, newFakeSubjects(), testSources))

	rr := do(t, router, http.MethodPost, "/apps/7/deploy", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.DeploymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.DeploymentResponse{
		Message:  "Deployment started",
		Provider: "vercel",
		AppID:    7,
		Status:   "deploying",
	}, resp)
	assert.Equal(t, []int64{7}, deployer.started)
}

func TestRedeploy(t *testing.T) {
	deployer := &fakeDeployer{}
	router := newRouter(NewHandler(deployer, newFakeSubjects(), testSources))

	rr := do(t, router, http.MethodPost, "/apps/7/redeploy", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.DeploymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Redeployment started with 404 fixes", resp.Message)
	assert.Equal(t, []int64{7}, deployer.redeploys)
	assert.Empty(t, deployer.started)
}

func TestDeployErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound},
		{"queue full", fmt.Errorf("schedule deploy: %w", pipeline.ErrQueueFull), http.StatusServiceUnavailable},
		{"pool stopped", fmt.Errorf("schedule deploy: %w", pipeline.ErrPoolStopped), http.StatusServiceUnavailable},
		{"database", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandler(&fakeDeployer{startErr: tt.err}, newFakeSubjects(), testSources))
			rr := do(t, router, http.MethodPost, "/apps/1/deploy", "")
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.NotContains(t, rr.Body.String(), "disk I/O")
		})
	}
}

func TestLogs(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("idle subject", func(t *testing.T) {
		router := newRouter(NewHandler(&fakeDeployer{}, newFakeSubjects(), testSources))
		rr := do(t, router, http.MethodGet, "/apps/3/logs", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"logs":[],"status":"idle","app_id":3,"is_deploying":false}`, rr.Body.String())
	})

	t.Run("running attempt", func(t *testing.T) {
		deployer := &fakeDeployer{snapshots: []logSnapshot{{
			entries: []models.LogEntry{{Timestamp: now, Level: models.LevelInfo, Message: "Initiating deployment for app ID: 3"}},
			status:  models.RunDeploying,
		}}}
		router := newRouter(NewHandler(deployer, newFakeSubjects(), testSources))
		rr := do(t, router, http.MethodGet, "/apps/3/logs", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp models.LogsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.IsDeploying)
		assert.Equal(t, models.RunDeploying, resp.Status)
		require.Len(t, resp.Logs, 1)
		assert.Equal(t, "Initiating deployment for app ID: 3", resp.Logs[0].Message)
	})
}

func TestWebhook(t *testing.T) {
	deployer := &fakeDeployer{}
	router := newRouter(NewHandler(deployer, newFakeSubjects(), testSources))

	rr := do(t, router, http.MethodPost, "/webhook", `{"app_id": 12, "status": "deployed", "live_url": "https://x.vercel.app"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"received","app_id":12}`, rr.Body.String())
	require.Len(t, deployer.webhooks, 1)
	assert.Equal(t, "https://x.vercel.app", deployer.webhooks[0].LiveURL)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/webhook", `{"status": "deployed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/webhook", `not json`).Code)
}

func TestLogsStream(t *testing.T) {
	first := models.LogEntry{Level: models.LevelInfo, Message: "Initiating deployment for app ID: 8"}
	second := models.LogEntry{Level: models.LevelSuccess, Message: "App verified and published!"}

	deployer := &fakeDeployer{snapshots: []logSnapshot{
		{entries: []models.LogEntry{first}, status: models.RunDeploying},
		{entries: []models.LogEntry{first}, status: models.RunDeploying},
		{entries: []models.LogEntry{first, second}, status: models.RunCompleted},
	}}
	h := NewHandler(deployer, newFakeSubjects(&models.Subject{ID: 8, Name: "Stream"}), testSources)
	h.pollInterval = 5 * time.Millisecond

	srv := httptest.NewServer(newRouter(h))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/apps/8/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []streamMessage
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		got = append(got, msg)
	}

	require.Len(t, got, 3)
	assert.Equal(t, first.Message, got[0].Entry.Message)
	assert.Equal(t, second.Message, got[1].Entry.Message)
	assert.Equal(t, "status", got[2].Type)
	assert.Equal(t, models.RunCompleted, got[2].Status)
}

func TestLogsStreamUnknownSubject(t *testing.T) {
	router := newRouter(NewHandler(&fakeDeployer{}, newFakeSubjects(), testSources))
	rr := do(t, router, http.MethodGet, "/apps/8/logs/stream", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWriteJSONEncodesBody(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusAccepted, map[string]int{"n": 1})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte(`{"n":1}`)))
}
