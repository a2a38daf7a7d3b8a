package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"launchpad-deployment/internal/config"
	"launchpad-deployment/internal/database"
	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/detector"
	"launchpad-deployment/internal/handlers"
	"launchpad-deployment/internal/logger"
	nr "launchpad-deployment/internal/newrelic"
	"launchpad-deployment/internal/packager"
	"launchpad-deployment/internal/pipeline"
	"launchpad-deployment/internal/server"
	"launchpad-deployment/internal/vercel"
	"launchpad-deployment/internal/verifier"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment API and worker pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, config.Load())
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.WithModule("main")
	log.Info("Starting Launchpad Deployment Service")

	nrApp, err := nr.Initialize(cfg)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize New Relic, continuing without monitoring")
	}
	defer nr.Shutdown(nrApp)

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	subjects := &database.SubjectRepo{DB: db}

	if cfg.VercelToken == "" {
		log.Warn("VERCEL_TOKEN is not set, deployments will fail until it is configured")
	}

	pool := pipeline.NewPool(cfg.WorkerCount, cfg.QueueSize)
	orchestrator := pipeline.New(pipeline.Options{
		Store:               subjects,
		Logs:                deploylog.NewMemoryStore(logger.WithModule("deploylog")),
		Classifier:          detector.New(),
		Packager:            packager.New(),
		Submitter:           vercel.NewClient(cfg.VercelAPIURL, cfg.VercelToken),
		Verifier:            verifier.New(),
		Scheduler:           pool,
		ResolveSource:       cfg.ResolveSource,
		CallbackURL:         cfg.PublicURL,
		DeploySettleDelay:   cfg.DeploySettleDelay,
		RedeploySettleDelay: cfg.RedeploySettleDelay,
		NewRelic:            nrApp,
	})
	pool.Start(ctx, orchestrator.HandleJob)

	srv := server.NewServer(cfg, handlers.NewHandler(orchestrator, subjects, cfg), nrApp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		pool.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
		return err
	}
	log.Info("Launchpad Deployment Service stopped")
	return nil
}
