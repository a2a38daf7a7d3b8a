package vercel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	calls atomic.Int32
}

func (t *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return nil, errors.New("unexpected network call")
}

func viteDetection() models.DetectionResult {
	return models.DetectionResult{
		Category:        models.FrameworkReact,
		Confidence:      90,
		Framework:       "vite",
		DeploymentStyle: models.StyleStatic,
		BuildCommand:    "vite build",
		OutputDir:       "dist",
	}
}

func TestDeployMissingTokenMakesNoCalls(t *testing.T) {
	transport := &countingTransport{}
	c := NewClient("https://api.example.test", "").WithHTTPClient(&http.Client{Transport: transport})
	store := deploylog.NewMemoryStore(nil)

	url, err := c.Deploy(context.Background(), &models.Subject{ID: 1, Name: "x"}, nil, viteDetection(), deploylog.NewRecorder(store, 1))

	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Empty(t, url)
	assert.Zero(t, transport.calls.Load())
	require.Len(t, store.List(1), 1)
	assert.Equal(t, models.LevelError, store.List(1)[0].Level)
}

func TestDeploySuccess(t *testing.T) {
	var got map[string]any
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v13/deployments", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "dpl_123", "url": "app-7-my-shop.vercel.app"}`))
	}))
	defer srv.Close()

	files := []models.PackagedFile{{Path: "index.html", Data: "<p></p>"}}
	subject := &models.Subject{ID: 7, Name: "My Shop!"}

	url, err := NewClient(srv.URL, "tok").Deploy(context.Background(), subject, files, viteDetection(), deploylog.Recorder{})
	require.NoError(t, err)

	assert.Equal(t, "https://app-7-my-shop.vercel.app", url)
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))
	assert.Equal(t, "app-7-my-shop", got["name"])
	assert.Equal(t, "production", got["target"])

	settings := got["projectSettings"].(map[string]any)
	assert.Equal(t, "vite", settings["framework"])
	assert.Equal(t, "dist", settings["outputDirectory"])

	sent := got["files"].([]any)
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]any{"file": "index.html", "data": "<p></p>"}, sent[0])
}

func TestDeployFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		message string
	}{
		{
			name:    "ok without url",
			status:  http.StatusOK,
			body:    `{"id": "dpl_1"}`,
			wantErr: ErrNoURL,
		},
		{
			name:    "structured error",
			status:  http.StatusBadRequest,
			body:    `{"error": {"code": "bad_request", "message": "Invalid projectSettings"}}`,
			message: "Invalid projectSettings",
		},
		{
			name:   "malformed error body",
			status: http.StatusInternalServerError,
			body:   `<html>oops`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			store := deploylog.NewMemoryStore(nil)
			url, err := NewClient(srv.URL, "tok").Deploy(context.Background(), &models.Subject{ID: 1}, nil, viteDetection(), deploylog.NewRecorder(store, 1))

			assert.Empty(t, url)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestDeployTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, "tok").Deploy(context.Background(), &models.Subject{ID: 1}, nil, viteDetection(), deploylog.Recorder{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to submit deployment"))
}

func TestSanitizeProjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Shop", "my-shop"},
		{"  --Hello__World--  ", "hello-world"},
		{"Café Déjà Vu", "cafe-deja-vu"},
		{"!!!", "saas-app"},
		{"", "saas-app"},
		{strings.Repeat("a", 49) + " b", strings.Repeat("a", 49)},
		{strings.Repeat("x", 60), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeProjectName(tt.in), "input %q", tt.in)
	}
}

func TestProjectSettings(t *testing.T) {
	tests := []struct {
		name      string
		detection models.DetectionResult
		want      map[string]any
	}{
		{
			name:      "create react app",
			detection: models.DetectionResult{Framework: "create-react-app", DeploymentStyle: models.StyleStatic},
			want: map[string]any{
				"framework":       "create-react-app",
				"buildCommand":    "npm run build",
				"outputDirectory": "build",
				"installCommand":  "npm install",
			},
		},
		{
			name:      "generic static uses detection hints",
			detection: models.DetectionResult{Framework: "react", DeploymentStyle: models.StyleStatic, BuildCommand: "webpack", OutputDir: "build"},
			want: map[string]any{
				"framework":       nil,
				"buildCommand":    "webpack",
				"outputDirectory": "build",
				"installCommand":  "npm install",
			},
		},
		{
			name:      "empty style defaults to static",
			detection: models.DetectionResult{},
			want: map[string]any{
				"framework":       nil,
				"buildCommand":    "npm run build",
				"outputDirectory": "dist",
				"installCommand":  "npm install",
			},
		},
		{
			name:      "node server",
			detection: models.DetectionResult{Category: models.FrameworkNode, DeploymentStyle: models.StyleServer},
			want: map[string]any{
				"framework":      "nodejs",
				"buildCommand":   "npm run build",
				"installCommand": "npm install",
			},
		},
		{
			name:      "python server",
			detection: models.DetectionResult{Category: models.FrameworkPython, DeploymentStyle: models.StyleServer},
			want: map[string]any{
				"framework":      "python",
				"buildCommand":   "pip install -r requirements.txt",
				"installCommand": "pip install -r requirements.txt",
			},
		},
		{
			name:      "nextjs left to provider",
			detection: models.DetectionResult{Framework: "nextjs", DeploymentStyle: models.StyleNextJS},
			want:      map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, desc := ProjectSettings(tt.detection)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, desc)
		})
	}
}
