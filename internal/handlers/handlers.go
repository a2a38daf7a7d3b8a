package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/models"
	"launchpad-deployment/internal/pipeline"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Deployer starts deployment attempts and reports their progress.
type Deployer interface {
	StartDeployment(ctx context.Context, subjectID int64) error
	StartRedeployment(ctx context.Context, subjectID int64) error
	GetLogs(subjectID int64) ([]models.LogEntry, models.RunStatus)
	ReceiveWebhook(ctx context.Context, payload models.WebhookPayload) error
}

// Subjects registers and looks up deployment subjects.
type Subjects interface {
	Create(ctx context.Context, s *models.Subject) error
	LoadSubject(ctx context.Context, id int64) (*models.Subject, error)
}

// SourceResolver confines subject source paths to the storage root.
type SourceResolver interface {
	ResolveSource(sourcePath string) (string, error)
}

type Handler struct {
	deployer Deployer
	subjects Subjects
	sources  SourceResolver
	log      *logrus.Entry

	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

func NewHandler(deployer Deployer, subjects Subjects, sources SourceResolver) *Handler {
	return &Handler{
		deployer: deployer,
		subjects: subjects,
		sources:  sources,
		log:      logger.WithModule("handlers"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers are authenticated by secret key before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Reject sources that resolve outside the storage root
	if _, err := h.sources.ResolveSource(req.SourcePath); err != nil {
		h.writeError(w, err)
		return
	}

	subject := &models.Subject{
		Name:       req.Name,
		SourcePath: filepath.Clean(req.SourcePath),
		Framework:  req.Framework,
	}
	// Store initial subject record
	if err := h.subjects.Create(r.Context(), subject); err != nil {
		h.writeError(w, err)
		return
	}

	logger.WithSubject("handlers", subject.ID).WithField("name", subject.Name).Info("App registered")
	writeJSON(w, http.StatusCreated, subject)
}

func (h *Handler) GetApp(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	subject, err := h.subjects.LoadSubject(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	// Trigger deployment
	if err := h.deployer.StartDeployment(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeploymentResponse{
		Message:  "Deployment started",
		Provider: models.ProviderVercel,
		AppID:    id,
		Status:   string(models.SubjectDeploying),
	})
}

func (h *Handler) Redeploy(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	// Trigger redeployment with 404 fixes
	if err := h.deployer.StartRedeployment(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeploymentResponse{
		Message:  "Redeployment started with 404 fixes",
		Provider: models.ProviderVercel,
		AppID:    id,
		Status:   string(models.SubjectDeploying),
	})
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	entries, status := h.deployer.GetLogs(id)
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, models.LogsResponse{
		Logs:        entries,
		Status:      status,
		AppID:       id,
		IsDeploying: status == models.RunDeploying,
	})
}

// Webhook receives status callbacks from CI workflows.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.deployer.ReceiveWebhook(r.Context(), payload); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.WebhookResponse{Status: "received", AppID: payload.AppID})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "App not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrPoolStopped):
		http.Error(w, "Deployment queue unavailable, try again later", http.StatusServiceUnavailable)
	default:
		h.log.WithError(err).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func appID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid app id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
