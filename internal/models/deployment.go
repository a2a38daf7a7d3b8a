package models

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that a requested subject does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Framework is the coarse runtime category of an uploaded application.
type Framework string

const (
	FrameworkReact   Framework = "react"
	FrameworkNode    Framework = "node"
	FrameworkPython  Framework = "python"
	FrameworkUnknown Framework = "unknown"
)

// SubjectStatus is the persisted deployment outcome of a subject.
type SubjectStatus string

const (
	SubjectDraft     SubjectStatus = "draft"
	SubjectDeploying SubjectStatus = "deploying"
	SubjectDeployed  SubjectStatus = "deployed"
	SubjectPublished SubjectStatus = "published"
	SubjectFailed    SubjectStatus = "failed"
)

// ProviderVercel is the only hosting target the pipeline deploys to.
const ProviderVercel = "vercel"

// Subject is one deployable application bundle.
type Subject struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	SourcePath string        `json:"source_path"`
	Framework  Framework     `json:"framework"`
	Status     SubjectStatus `json:"status"`
	LiveURL    string        `json:"live_url,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type CreateSubjectRequest struct {
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Framework  Framework `json:"framework,omitempty"`
}

type DeploymentResponse struct {
	Message  string `json:"message"`
	Provider string `json:"provider"`
	AppID    int64  `json:"app_id"`
	Status   string `json:"status"`
}

type LogsResponse struct {
	Logs        []LogEntry `json:"logs"`
	Status      RunStatus  `json:"status"`
	AppID       int64      `json:"app_id"`
	IsDeploying bool       `json:"is_deploying"`
}

// WebhookPayload is pushed by an external CI run once it has deployed
// (or failed to deploy) a subject.
type WebhookPayload struct {
	AppID   int64  `json:"app_id"`
	Status  string `json:"status"`
	LiveURL string `json:"live_url,omitempty"`
}

const (
	WebhookStatusDeployed = "deployed"
	WebhookStatusFailed   = "failed"
)

type WebhookResponse struct {
	Status string `json:"status"`
	AppID  int64  `json:"app_id"`
}
