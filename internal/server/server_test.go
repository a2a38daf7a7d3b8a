package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"launchpad-deployment/internal/config"
	"launchpad-deployment/internal/handlers"
	"launchpad-deployment/internal/models"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-64-characters-long-for-testing-purposes"

type stubDeployer struct{}

func (stubDeployer) StartDeployment(context.Context, int64) error   { return nil }
func (stubDeployer) StartRedeployment(context.Context, int64) error { return nil }
func (stubDeployer) GetLogs(int64) ([]models.LogEntry, models.RunStatus) {
	return nil, models.RunIdle
}
func (stubDeployer) ReceiveWebhook(context.Context, models.WebhookPayload) error { return nil }

type stubSubjects struct{}

func (stubSubjects) Create(_ context.Context, s *models.Subject) error {
	s.ID = 1
	return nil
}

func (stubSubjects) LoadSubject(_ context.Context, id int64) (*models.Subject, error) {
	if id != 1 {
		return nil, models.ErrNotFound
	}
	return &models.Subject{ID: 1, Name: "Shop"}, nil
}

func newTestServer(t *testing.T, nrApp *newrelic.Application) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:             "0",
		ValidSecret:      testSecret,
		WebhookRateLimit: 1,
		StorageRoot:      "/srv/uploads",
	}
	s := NewServer(cfg, handlers.NewHandler(stubDeployer{}, stubSubjects{}, cfg), nrApp)
	require.NotNil(t, s)
	return s
}

func request(t *testing.T, h http.Handler, method, path, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Secret-Key", secret)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestUnprotectedRoutes(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rr := request(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "launchpad_jobs_queued")
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		secret     string
		body       string
		wantStatus int
	}{
		{"missing key", http.MethodGet, "/apps/1", "", "", http.StatusUnauthorized},
		{"wrong key", http.MethodGet, "/apps/1", "nope", "", http.StatusUnauthorized},
		{"valid key", http.MethodGet, "/apps/1", testSecret, "", http.StatusOK},
		{"valid key unknown app", http.MethodGet, "/apps/2", testSecret, "", http.StatusNotFound},
		{"create requires key", http.MethodPost, "/apps", "", `{"name":"a","source_path":"b"}`, http.StatusUnauthorized},
		{"create", http.MethodPost, "/apps", testSecret, `{"name":"a","source_path":"b"}`, http.StatusCreated},
		{"create outside storage root", http.MethodPost, "/apps", testSecret, `{"name":"a","source_path":"../b"}`, http.StatusBadRequest},
		{"deploy", http.MethodPost, "/apps/1/deploy", testSecret, "", http.StatusOK},
		{"redeploy", http.MethodPost, "/apps/1/redeploy", testSecret, "", http.StatusOK},
		{"logs", http.MethodGet, "/apps/1/logs", testSecret, "", http.StatusOK},
		{"wrong method", http.MethodGet, "/apps/1/deploy", testSecret, "", http.StatusMethodNotAllowed},
	}

	h := newTestServer(t, nil).Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := request(t, h, tt.method, tt.path, tt.secret, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestWebhookIsRateLimited(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	body := `{"app_id": 1, "status": "deployed"}`

	// burst is twice the per-second rate
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodPost, "/webhook", "", body).Code)
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodPost, "/webhook", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, request(t, h, http.MethodPost, "/webhook", "", body).Code)
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := newRateLimiter(1)
	h := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestServerWithNewRelic(t *testing.T) {
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName("test-app"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)

	h := newTestServer(t, nrApp).Handler()
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/apps/1/logs", testSecret, "").Code)
}

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewUnstartedServer(nil)
	l := srv.Listener

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}
