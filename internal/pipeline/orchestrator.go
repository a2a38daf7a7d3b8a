// Package pipeline drives deployment attempts: detect, package, submit,
// verify. Attempts run on a background worker pool and report progress only
// through the deployment log channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/metrics"
	"launchpad-deployment/internal/models"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// SubjectStore is the data layer the pipeline reads and writes subjects
// through. Implementations must be safe for use from background jobs.
type SubjectStore interface {
	LoadSubject(ctx context.Context, id int64) (*models.Subject, error)
	SaveSubject(ctx context.Context, s *models.Subject) error
}

type Classifier interface {
	Detect(sourcePath string) models.DetectionResult
}

type Packager interface {
	Package(subject *models.Subject, rec deploylog.Recorder) ([]models.PackagedFile, error)
}

type Submitter interface {
	Deploy(ctx context.Context, subject *models.Subject, files []models.PackagedFile, detection models.DetectionResult, rec deploylog.Recorder) (string, error)
}

type Verifier interface {
	Verify(ctx context.Context, liveURL string, rec deploylog.Recorder) bool
}

// Scheduler accepts background jobs without blocking the caller.
type Scheduler interface {
	Submit(job Job) error
}

// Options wires an Orchestrator. Store, Logs, Classifier, Packager,
// Submitter, Verifier and Scheduler are required.
type Options struct {
	Store      SubjectStore
	Logs       deploylog.Store
	Classifier Classifier
	Packager   Packager
	Submitter  Submitter
	Verifier   Verifier
	Scheduler  Scheduler

	// ResolveSource maps a stored source path to the location the attempt
	// reads from, rejecting paths outside the storage root. Without it the
	// stored path is only cleaned.
	ResolveSource func(string) (string, error)
	// CallbackURL is the public base URL written into CI workflows.
	CallbackURL string

	DeploySettleDelay   time.Duration
	RedeploySettleDelay time.Duration

	NewRelic *newrelic.Application
}

type Orchestrator struct {
	store      SubjectStore
	logs       deploylog.Store
	classifier Classifier
	packager   Packager
	submitter  Submitter
	verifier   Verifier
	scheduler  Scheduler

	resolve     func(string) (string, error)
	callbackURL string

	deploySettle   time.Duration
	redeploySettle time.Duration
	sleep          func(ctx context.Context, d time.Duration) error

	nr  *newrelic.Application
	log *logrus.Entry
}

func New(opts Options) *Orchestrator {
	resolve := opts.ResolveSource
	if resolve == nil {
		resolve = cleanSource
	}
	return &Orchestrator{
		store:          opts.Store,
		logs:           opts.Logs,
		classifier:     opts.Classifier,
		packager:       opts.Packager,
		submitter:      opts.Submitter,
		verifier:       opts.Verifier,
		scheduler:      opts.Scheduler,
		resolve:        resolve,
		callbackURL:    opts.CallbackURL,
		deploySettle:   opts.DeploySettleDelay,
		redeploySettle: opts.RedeploySettleDelay,
		sleep:          sleepContext,
		nr:             opts.NewRelic,
		log:            logger.WithModule("pipeline"),
	}
}

// StartDeployment runs the pre-flight checks for a first deployment and
// schedules the attempt. It returns once the job is queued.
func (o *Orchestrator) StartDeployment(ctx context.Context, subjectID int64) error {
	return o.start(ctx, subjectID, JobTypeDeploy)
}

// StartRedeployment is StartDeployment for a subject whose provider
// configuration should be regenerated first.
func (o *Orchestrator) StartRedeployment(ctx context.Context, subjectID int64) error {
	return o.start(ctx, subjectID, JobTypeRedeploy)
}

func (o *Orchestrator) start(ctx context.Context, subjectID int64, jobType JobType) error {
	subject, err := o.store.LoadSubject(ctx, subjectID)
	if err != nil {
		return err
	}

	o.logs.Clear(subjectID)
	rec := deploylog.NewRecorder(o.logs, subjectID)
	if jobType == JobTypeRedeploy {
		rec.Infof("Initiating redeploy for app ID: %d", subjectID)
		rec.Info("This will fix 404 errors and deployment issues")
	} else {
		rec.Infof("Initiating deployment for app ID: %d", subjectID)
	}

	subject.Status = models.SubjectDeploying
	subject.Provider = models.ProviderVercel
	if err := o.store.SaveSubject(ctx, subject); err != nil {
		rec.Errorf("Database error: %v", err)
		return err
	}
	o.logs.SetStatus(subjectID, models.RunDeploying)

	job := NewJob(jobType, subjectID)
	if err := o.scheduler.Submit(job); err != nil {
		rec.Errorf("Failed to start %s: %v", jobType, err)
		o.logs.SetStatus(subjectID, models.RunFailed)
		subject.Status = models.SubjectFailed
		if saveErr := o.store.SaveSubject(ctx, subject); saveErr != nil {
			logger.WithSubject("pipeline", subjectID).WithError(saveErr).Error("Failed to mark subject failed")
		}
		return fmt.Errorf("schedule %s: %w", jobType, err)
	}

	logger.WithSubject("pipeline", subjectID).WithFields(logrus.Fields{
		"job_id":   job.ID,
		"job_type": jobType,
	}).Info("Deployment scheduled")
	return nil
}

// GetLogs returns a snapshot of the subject's log and its run status.
// A subject with no attempt on record is idle.
func (o *Orchestrator) GetLogs(subjectID int64) ([]models.LogEntry, models.RunStatus) {
	status, ok := o.logs.Status(subjectID)
	if !ok {
		status = models.RunIdle
	}
	return o.logs.List(subjectID), status
}

// ReceiveWebhook applies a status pushed by an external CI run. A deployed
// status also schedules a verification of the reported URL.
func (o *Orchestrator) ReceiveWebhook(ctx context.Context, payload models.WebhookPayload) error {
	if payload.AppID == 0 {
		return fmt.Errorf("app_id is required: %w", models.ErrInvalidArgument)
	}

	subject, err := o.store.LoadSubject(ctx, payload.AppID)
	if err != nil {
		return err
	}

	log := logger.WithSubject("pipeline", payload.AppID).WithField("status", payload.Status)

	switch payload.Status {
	case models.WebhookStatusDeployed:
		subject.Status = models.SubjectDeployed
		if payload.LiveURL != "" {
			subject.LiveURL = payload.LiveURL
		}
		if err := o.store.SaveSubject(ctx, subject); err != nil {
			return err
		}
		if err := o.scheduler.Submit(NewJob(JobTypeVerify, subject.ID)); err != nil {
			log.WithError(err).Warn("Could not schedule verification")
		}
	case models.WebhookStatusFailed:
		subject.Status = models.SubjectFailed
		if err := o.store.SaveSubject(ctx, subject); err != nil {
			return err
		}
	default:
		log.Debug("Ignoring webhook status")
		return nil
	}

	metrics.WebhooksTotal.WithLabelValues(payload.Status).Inc()
	log.Info("Webhook applied")
	return nil
}

// HandleJob is the worker pool entry point.
func (o *Orchestrator) HandleJob(ctx context.Context, job Job) {
	switch job.Type {
	case JobTypeDeploy, JobTypeRedeploy:
		o.runAttempt(ctx, job)
	case JobTypeVerify:
		o.runVerification(ctx, job)
	default:
		o.log.WithField("job_type", job.Type).Error("Unknown job type")
	}
}

func cleanSource(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Clean(p), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
