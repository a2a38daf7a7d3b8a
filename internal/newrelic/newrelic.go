// Package newrelic wires the New Relic agent into the service. A nil
// *newrelic.Application is valid everywhere it is accepted, so callers
// never need to branch on whether monitoring is enabled.
package newrelic

import (
	"net/http"
	"strings"
	"time"

	"launchpad-deployment/internal/config"
	"launchpad-deployment/internal/logger"

	"github.com/gorilla/mux"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Initialize sets up New Relic monitoring. It returns a nil application when
// monitoring is disabled or unconfigured.
func Initialize(cfg *config.Config) (*newrelic.Application, error) {
	nrLogger := logger.WithModule("newrelic")

	if !cfg.NewRelicEnabled {
		nrLogger.Info("New Relic monitoring is disabled")
		return nil, nil
	}

	if cfg.NewRelicLicense == "" {
		nrLogger.Warn("New Relic license key is not provided, monitoring will be disabled")
		return nil, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelicAppName),
		newrelic.ConfigLicense(cfg.NewRelicLicense),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigLogger(logAdapter{logger: nrLogger}),
	)
	if err != nil {
		nrLogger.WithError(err).Error("Failed to initialize New Relic")
		return nil, err
	}

	nrLogger.WithField("app_name", cfg.NewRelicAppName).Info("New Relic initialized successfully")
	return app, nil
}

// Middleware names a web transaction after the matched mux route template,
// so /apps/{id}/logs groups as one transaction rather than one per subject.
func Middleware(app *newrelic.Application) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if app == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Upgraded connections need the raw writer to hijack.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			name := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					name = tpl
				}
			}
			txn := app.StartTransaction(r.Method + " " + name)
			defer txn.End()

			txn.SetWebRequestHTTP(r)
			w = txn.SetWebResponse(w)
			next.ServeHTTP(w, newrelic.RequestWithTransactionContext(r, txn))
		})
	}
}

// Shutdown flushes pending data. Safe on a nil application.
func Shutdown(app *newrelic.Application) {
	if app == nil {
		return
	}
	app.Shutdown(shutdownTimeout)
}

// logAdapter implements newrelic.Logger on top of logrus.
type logAdapter struct {
	logger *logrus.Entry
}

func (l logAdapter) Error(msg string, context map[string]interface{}) {
	l.logger.WithFields(logrus.Fields(context)).Error(msg)
}

func (l logAdapter) Warn(msg string, context map[string]interface{}) {
	l.logger.WithFields(logrus.Fields(context)).Warn(msg)
}

func (l logAdapter) Info(msg string, context map[string]interface{}) {
	l.logger.WithFields(logrus.Fields(context)).Info(msg)
}

func (l logAdapter) Debug(msg string, context map[string]interface{}) {
	l.logger.WithFields(logrus.Fields(context)).Debug(msg)
}

func (l logAdapter) DebugEnabled() bool {
	return l.logger.Logger.IsLevelEnabled(logrus.DebugLevel)
}
