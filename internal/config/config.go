package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"launchpad-deployment/internal/models"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	ValidSecret string
	PublicURL   string

	DatabasePath string
	// StorageRoot is resolved to an absolute path once at load time.
	// Relative subject source paths are joined onto it.
	StorageRoot string

	VercelToken  string
	VercelAPIURL string

	WorkerCount         int
	QueueSize           int
	DeploySettleDelay   time.Duration
	RedeploySettleDelay time.Duration
	WebhookRateLimit    int

	NewRelicLicense string
	NewRelicAppName string
	NewRelicEnabled bool
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is applied first without overriding variables that
// are already set.
func Load() *Config {
	_ = godotenv.Load()

	newRelicEnabledStr := getEnv("NEW_RELIC_ENABLED", "false")
	newRelicEnabled, err := strconv.ParseBool(newRelicEnabledStr)
	if err != nil {
		newRelicEnabled = false
	}

	storageRoot := getEnv("STORAGE_ROOT", "./storage/uploads")
	if abs, err := filepath.Abs(storageRoot); err == nil {
		storageRoot = abs
	}

	return &Config{
		Port:                getEnv("PORT", "16166"),
		ValidSecret:         getEnv("RPC_SECRET", "your-64-character-secret-key-here-please-change-this-in-production"),
		PublicURL:           getEnv("PUBLIC_URL", "http://localhost:16166"),
		DatabasePath:        getEnv("DATABASE_PATH", "./launchpad.db"),
		StorageRoot:         storageRoot,
		VercelToken:         getEnv("VERCEL_TOKEN", ""),
		VercelAPIURL:        getEnv("VERCEL_API_URL", "https://api.vercel.com"),
		WorkerCount:         getEnvInt("WORKER_COUNT", 10),
		QueueSize:           getEnvInt("QUEUE_SIZE", 100),
		DeploySettleDelay:   getEnvDuration("DEPLOY_SETTLE_DELAY", 2*time.Second),
		RedeploySettleDelay: getEnvDuration("REDEPLOY_SETTLE_DELAY", 45*time.Second),
		WebhookRateLimit:    getEnvInt("WEBHOOK_RATE_LIMIT", 5),
		NewRelicLicense:     getEnv("NEW_RELIC_LICENSE_KEY", ""),
		NewRelicAppName:     getEnv("NEW_RELIC_APP_NAME", "launchpad-deployment"),
		NewRelicEnabled:     newRelicEnabled,
	}
}

// ResolveSource maps a subject source path onto the storage root. Relative
// paths are joined onto the root; absolute paths are accepted only when they
// already point inside it. Anything that resolves outside the root, or to the
// root itself, is rejected with models.ErrInvalidArgument.
func (c *Config) ResolveSource(sourcePath string) (string, error) {
	if sourcePath == "" {
		return "", fmt.Errorf("source path is required: %w", models.ErrInvalidArgument)
	}
	if c.StorageRoot == "" {
		return "", fmt.Errorf("storage root is not configured: %w", models.ErrInvalidArgument)
	}

	root := filepath.Clean(c.StorageRoot)
	resolved := filepath.Clean(sourcePath)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source path %q is outside the storage root: %w", sourcePath, models.ErrInvalidArgument)
	}
	return resolved, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
