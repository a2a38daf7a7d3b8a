package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"launchpad-deployment/internal/config"
	"launchpad-deployment/internal/handlers"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/metrics"
	nr "launchpad-deployment/internal/newrelic"

	"github.com/gorilla/mux"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config     *config.Config
	handler    *handlers.Handler
	router     *mux.Router
	httpServer *http.Server
	limiter    *rateLimiter
	logger     *logrus.Entry
}

func NewServer(cfg *config.Config, handler *handlers.Handler, nrApp *newrelic.Application) *Server {
	serverLogger := logger.WithModule("server")

	s := &Server{
		config:  cfg,
		handler: handler,
		router:  mux.NewRouter(),
		limiter: newRateLimiter(cfg.WebhookRateLimit),
		logger:  serverLogger,
	}
	s.router.Use(nr.Middleware(nrApp))
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	// Health endpoint (unprotected)
	s.router.HandleFunc("/health", s.handler.Health).Methods("GET")

	// Metrics endpoint (unprotected)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// CI callbacks carry no secret, so they are throttled instead.
	webhook := s.router.PathPrefix("/webhook").Subrouter()
	webhook.Use(s.limiter.middleware)
	webhook.HandleFunc("", s.handler.Webhook).Methods("POST")

	// Protected routes with secret key validation
	apps := s.router.PathPrefix("/apps").Subrouter()
	apps.Use(s.authMiddleware)
	apps.HandleFunc("", s.handler.CreateApp).Methods("POST")
	apps.HandleFunc("/{id:[0-9]+}", s.handler.GetApp).Methods("GET")

	// Deploy endpoints
	apps.HandleFunc("/{id:[0-9]+}/deploy", s.handler.Deploy).Methods("POST")
	apps.HandleFunc("/{id:[0-9]+}/redeploy", s.handler.Redeploy).Methods("POST")

	// Log endpoints
	apps.HandleFunc("/{id:[0-9]+}/logs", s.handler.Logs).Methods("GET")
	apps.HandleFunc("/{id:[0-9]+}/logs/stream", s.handler.LogsStream).Methods("GET")
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get secret key from header
		secretKey := r.Header.Get("X-Secret-Key")
		s.logger.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}).Debug("Authenticating request")

		// Validate secret key
		if secretKey != s.config.ValidSecret {
			s.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"ip":     r.RemoteAddr,
			}).Warn("Invalid secret key provided")
			http.Error(w, "Invalid secret key", http.StatusUnauthorized)
			return
		}

		// Continue to next handler
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.WithField("addr", l.Addr().String()).Info("Server starting")
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Server shutting down")
	return s.httpServer.Shutdown(ctx)
}
