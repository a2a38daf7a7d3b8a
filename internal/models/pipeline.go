package models

import "time"

// RunStatus tracks pipeline liveness for a subject. It says whether an
// attempt is running or finished, not whether the deployment succeeded.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunDeploying RunStatus = "deploying"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// DeploymentStyle drives which provider build settings are sent.
type DeploymentStyle string

const (
	StyleStatic DeploymentStyle = "static"
	StyleServer DeploymentStyle = "server"
	StyleNextJS DeploymentStyle = "nextjs"
)

// DetectionResult is the classifier verdict for a source tree. Confidence is
// advisory; callers decide what threshold to trust.
type DetectionResult struct {
	Category        Framework       `json:"category"`
	Confidence      int             `json:"confidence"`
	Reason          string          `json:"reason"`
	Framework       string          `json:"framework,omitempty"`
	DeploymentStyle DeploymentStyle `json:"deployment_type,omitempty"`
	BuildCommand    string          `json:"build_command,omitempty"`
	OutputDir       string          `json:"output_dir,omitempty"`
	Version         string          `json:"version,omitempty"`
	Scores          map[string]int  `json:"detected_frameworks,omitempty"`
	HTMLFiles       int             `json:"files,omitempty"`
}

// Style returns the deployment style, defaulting to static.
func (d DetectionResult) Style() DeploymentStyle {
	if d.DeploymentStyle == "" {
		return StyleStatic
	}
	return d.DeploymentStyle
}

// FrameworkName returns the detected framework name or "unknown".
func (d DetectionResult) FrameworkName() string {
	if d.Framework == "" {
		return "unknown"
	}
	return d.Framework
}

const EncodingBase64 = "base64"

// PackagedFile is one file in the provider's inline-files wire format.
type PackagedFile struct {
	Path     string `json:"file"`
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"`
}
