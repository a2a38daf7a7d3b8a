// Package vercel submits packaged source trees to the hosting provider's
// deployments API.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api.vercel.com"
	deployTimeout  = 60 * time.Second
	maxErrorBody   = 1 << 20
)

var (
	ErrMissingToken = errors.New("VERCEL_TOKEN not configured")
	ErrNoURL        = errors.New("deployment created but no URL returned")
)

// APIError is returned for any response other than 200 or 201.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vercel returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vercel returned status %d", e.StatusCode)
}

type deploymentRequest struct {
	Name            string                `json:"name"`
	Files           []models.PackagedFile `json:"files"`
	Target          string                `json:"target"`
	ProjectSettings map[string]any        `json:"projectSettings"`
}

type Client struct {
	URL    string
	token  string
	client *http.Client
	log    *logrus.Entry
}

func NewClient(url, token string) *Client {
	if url == "" {
		url = DefaultBaseURL
	}
	return &Client{
		URL:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: deployTimeout},
		log:    logger.WithModule("vercel"),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Deploy sends one deployment request and returns the live URL. The call is
// made exactly once; callers decide whether to retry.
func (c *Client) Deploy(ctx context.Context, subject *models.Subject, files []models.PackagedFile, detection models.DetectionResult, rec deploylog.Recorder) (string, error) {
	if c.token == "" {
		rec.Error("VERCEL_TOKEN not configured - cannot deploy to Vercel")
		return "", ErrMissingToken
	}
	rec.Info("Vercel token configured, proceeding with deployment")

	rec.Info("Creating deployment configuration...")
	settings, desc := ProjectSettings(detection)
	rec.Infof("Configuring for %s (%s)", detection.FrameworkName(), detection.Style())
	rec.Info(desc)

	payload := deploymentRequest{
		Name:            ProjectName(subject),
		Files:           files,
		Target:          "production",
		ProjectSettings: settings,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		rec.Errorf("Vercel deployment error: %v", err)
		return "", fmt.Errorf("failed to marshal deployment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v13/deployments", bytes.NewReader(body))
	if err != nil {
		rec.Errorf("Vercel deployment error: %v", err)
		return "", fmt.Errorf("failed to build deployment request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	log := c.log.WithFields(logrus.Fields{
		"subject_id": subject.ID,
		"project":    payload.Name,
		"files":      len(files),
		"request_id": requestID,
	})

	rec.Info("Starting Vercel deployment...")
	rec.Infof("Uploading %d files...", len(files))
	log.Debug("Submitting deployment")

	resp, err := c.client.Do(req)
	if err != nil {
		rec.Errorf("Vercel deployment error: %v", err)
		log.WithError(err).Error("Deployment request failed")
		return "", fmt.Errorf("failed to submit deployment: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		rec.Errorf("Vercel deployment error: %v", err)
		return "", fmt.Errorf("failed to read deployment response: %w", err)
	}

	rec.Infof("Vercel API Response: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if gjson.ValidBytes(respBody) {
			apiErr.Message = gjson.GetBytes(respBody, "error.message").String()
		}
		rec.Errorf("Vercel deployment failed: %d", resp.StatusCode)
		rec.Errorf("Error details: %s", respBody)
		if apiErr.Message != "" {
			rec.Errorf("Specific error: %s", apiErr.Message)
		}
		log.WithField("status", resp.StatusCode).Warn("Deployment rejected")
		return "", apiErr
	}

	host := gjson.GetBytes(respBody, "url").String()
	if host == "" {
		rec.Error("Deployment created but no URL returned")
		rec.Infof("Response: %s", respBody)
		return "", ErrNoURL
	}

	liveURL := "https://" + host
	rec.Success("Vercel deployment successful!")
	rec.Successf("Live URL: %s", liveURL)
	deploymentID := gjson.GetBytes(respBody, "id").String()
	if deploymentID == "" {
		deploymentID = "unknown"
	}
	rec.Infof("Deployment ID: %s", deploymentID)
	rec.Infof("Framework: %s (%s)", detection.FrameworkName(), detection.Style())

	log.WithFields(logrus.Fields{
		"deployment_id": deploymentID,
		"url":           liveURL,
	}).Info("Deployment created")

	return liveURL, nil
}
