package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	initOnce     sync.Once
)

// Initialize sets up the process logger from LOG_LEVEL and LOG_FORMAT.
// Later calls return the same instance.
func Initialize() *logrus.Logger {
	initOnce.Do(func() {
		logger := logrus.New()
		logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))

		if strings.ToLower(os.Getenv("LOG_FORMAT")) == "text" {
			logger.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:    true,
				ForceColors:      true,
				CallerPrettyfier: callerPrettyfier,
			})
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
				CallerPrettyfier: callerPrettyfier,
			})
		}

		logger.SetReportCaller(true)
		logger.SetOutput(os.Stdout)

		globalLogger = logger
	})
	return globalLogger
}

// Get returns the process logger, initializing it if necessary.
func Get() *logrus.Logger {
	return Initialize()
}

// WithModule creates a new entry with module name
func WithModule(moduleName string) *logrus.Entry {
	return Get().WithField("module", moduleName)
}

// WithSubject scopes a module entry to one deployment subject.
func WithSubject(moduleName string, subjectID int64) *logrus.Entry {
	return WithModule(moduleName).WithField("subject_id", subjectID)
}

// Discard returns an entry that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func parseLevel(raw string) logrus.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	filename := path.Base(f.File)
	return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
}
