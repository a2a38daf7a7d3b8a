package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"launchpad-deployment/internal/archive"
	"launchpad-deployment/internal/artifacts"
	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/metrics"
	"launchpad-deployment/internal/models"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// confidenceThreshold is the detection confidence above which the subject's
// stored framework category is overwritten.
const confidenceThreshold = 70

// runAttempt executes one deployment attempt. Every outcome is reported on
// the subject's log; the run status register always ends as completed unless
// the attempt panicked.
func (o *Orchestrator) runAttempt(ctx context.Context, job Job) {
	id := job.SubjectID
	redeploy := job.Type == JobTypeRedeploy
	rec := deploylog.NewRecorder(o.logs, id)
	log := logger.WithSubject("pipeline", id).WithFields(logrus.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
	})

	txn := o.nr.StartTransaction(string(job.Type))
	defer txn.End()
	txn.AddAttribute("subject_id", id)
	ctx = newrelic.NewContext(ctx, txn)

	succeeded := false
	defer func() {
		if r := recover(); r != nil {
			rec.Errorf("Deployment error: %v", r)
			log.WithField("panic", r).Errorf("Deployment attempt panicked: %s", debug.Stack())
			txn.NoticeError(fmt.Errorf("panic: %v", r))
			metrics.JobPanicsTotal.WithLabelValues(string(job.Type)).Inc()
			metrics.AttemptsTotal.WithLabelValues(string(job.Type), metrics.ResultFailure).Inc()
			o.logs.SetStatus(id, models.RunFailed)
			o.markFailed(ctx, id)
			return
		}
		o.logs.SetStatus(id, models.RunCompleted)
		metrics.AttemptsTotal.WithLabelValues(string(job.Type), metrics.Result(succeeded)).Inc()
	}()

	subject, err := o.store.LoadSubject(ctx, id)
	if err != nil {
		rec.Errorf("Database error: %v", err)
		log.WithError(err).Error("Failed to load subject")
		return
	}

	sourcePath, err := o.resolve(subject.SourcePath)
	if err != nil {
		rec.Errorf("Invalid source path: %v", err)
		log.WithError(err).Warn("Rejected source path")
		subject.Status = models.SubjectFailed
		o.save(ctx, subject, rec)
		return
	}
	o.writeArtifacts(subject, sourcePath, redeploy, rec)

	rec.Infof("Detecting framework for app %d...", id)
	done := o.stage(txn, "detect")
	detection := o.classifier.Detect(sourcePath)
	done()
	metrics.DetectionsTotal.WithLabelValues(string(detection.Category)).Inc()

	rec.Success("Framework Detection Complete:")
	rec.Infof("  • Detected: %s", detection.Category)
	rec.Infof("  • Confidence: %d%%", detection.Confidence)
	rec.Infof("  • Framework: %s", detection.FrameworkName())
	rec.Infof("  • Deployment Type: %s", detection.Style())

	if detection.Confidence > confidenceThreshold && detection.Category != subject.Framework {
		subject.Framework = detection.Category
		if o.save(ctx, subject, rec) {
			rec.Successf("Updated app framework to: %s", detection.Category)
		}
	}

	rec.Info("Preparing files for deployment...")
	staged := *subject
	staged.SourcePath = sourcePath

	done = o.stage(txn, "package")
	files, err := o.packager.Package(&staged, rec)
	done()
	if err != nil || len(files) == 0 {
		rec.Error("No files found for deployment")
		if err != nil {
			log.WithError(err).Warn("Packaging failed")
		}
		subject.Status = models.SubjectFailed
		o.save(ctx, subject, rec)
		return
	}
	metrics.FilesPackaged.Observe(float64(len(files)))

	done = o.stage(txn, "submit")
	liveURL, err := o.submitter.Deploy(ctx, &staged, files, detection, rec)
	done()
	if err != nil {
		if isShutdown(ctx, err) {
			log.Warn("Attempt abandoned during shutdown")
			return
		}
		txn.NoticeError(err)
		log.WithError(err).Warn("Submission failed")
	}

	if liveURL == "" {
		subject.Status = models.SubjectFailed
		if redeploy {
			rec.Error("Vercel redeployment failed")
		} else {
			rec.Error("Vercel deployment failed")
		}
		o.save(ctx, subject, rec)
		return
	}

	subject.LiveURL = liveURL
	subject.Status = models.SubjectDeployed
	o.save(ctx, subject, rec)

	settle := o.deploySettle
	if redeploy {
		settle = o.redeploySettle
		rec.Info("Starting verification (waiting for deployment to be ready)...")
	} else {
		rec.Info("Starting verification process...")
	}
	if err := o.sleep(ctx, settle); err != nil {
		log.Warn("Attempt abandoned during shutdown")
		return
	}

	if o.verify(ctx, txn, liveURL, rec) {
		subject.Status = models.SubjectPublished
		succeeded = true
		if redeploy {
			rec.Success("App verified and published! 404 issues should be fixed.")
		} else {
			rec.Success("App verified and published!")
		}
	} else {
		subject.Status = models.SubjectFailed
		if redeploy {
			rec.Warn("App deployed but still having verification issues")
			rec.Info("Try accessing the app directly - it may work despite verification warnings")
		} else {
			rec.Warn("App deployed but failed verification")
		}
	}
	o.save(ctx, subject, rec)

	log.WithFields(logrus.Fields{
		"status": subject.Status,
		"url":    liveURL,
	}).Info("Deployment attempt finished")
}

// runVerification re-checks a subject whose deployment was reported by a
// webhook.
func (o *Orchestrator) runVerification(ctx context.Context, job Job) {
	rec := deploylog.NewRecorder(o.logs, job.SubjectID)
	log := logger.WithSubject("pipeline", job.SubjectID).WithField("job_id", job.ID)

	txn := o.nr.StartTransaction(string(job.Type))
	defer txn.End()
	ctx = newrelic.NewContext(ctx, txn)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("Verification panicked: %s", debug.Stack())
			metrics.JobPanicsTotal.WithLabelValues(string(job.Type)).Inc()
		}
	}()

	subject, err := o.store.LoadSubject(ctx, job.SubjectID)
	if err != nil {
		log.WithError(err).Error("Failed to load subject")
		return
	}
	if subject.LiveURL == "" {
		rec.Errorf("No production URL for app %d", subject.ID)
		return
	}

	if o.verify(ctx, txn, subject.LiveURL, rec) {
		subject.Status = models.SubjectPublished
		log.Info("App verified and published")
	} else {
		subject.Status = models.SubjectFailed
		log.Warn("App failed verification")
	}
	o.save(ctx, subject, rec)
}

func (o *Orchestrator) verify(ctx context.Context, txn *newrelic.Transaction, liveURL string, rec deploylog.Recorder) bool {
	done := o.stage(txn, "verify")
	verified := o.verifier.Verify(ctx, liveURL, rec)
	done()

	result := "unverified"
	if verified {
		result = "verified"
	}
	metrics.VerificationsTotal.WithLabelValues(result).Inc()
	return verified
}

// writeArtifacts refreshes the CI workflow, and on redeploy the provider
// config, inside the source tree. Failures are warnings only.
func (o *Orchestrator) writeArtifacts(subject *models.Subject, sourcePath string, redeploy bool, rec deploylog.Recorder) {
	if _, err := os.Stat(sourcePath); err != nil {
		return
	}
	dir, err := archive.Resolve(sourcePath)
	if err != nil {
		rec.Warnf("Could not prepare source for configuration files: %v", err)
		return
	}

	if redeploy {
		rec.Info("Regenerating Vercel configuration with fixes...")
		if err := artifacts.WriteProviderConfig(dir, subject); err != nil {
			rec.Warnf("Config regeneration failed: %v", err)
		} else {
			rec.Success("Updated Vercel configuration with 404 fixes")
		}
		rec.Info("Updating GitHub Actions workflow...")
	} else {
		rec.Info("Creating GitHub Actions workflow...")
	}

	if err := artifacts.WriteWorkflow(dir, subject, o.callbackURL); err != nil {
		rec.Warnf("Workflow update failed: %v", err)
		return
	}
	if redeploy {
		rec.Success("GitHub Actions workflow updated")
	} else {
		rec.Success("GitHub Actions workflow created")
	}
}

func (o *Orchestrator) save(ctx context.Context, subject *models.Subject, rec deploylog.Recorder) bool {
	if err := o.store.SaveSubject(ctx, subject); err != nil {
		rec.Errorf("Database error: %v", err)
		logger.WithSubject("pipeline", subject.ID).WithError(err).Error("Failed to save subject")
		return false
	}
	return true
}

func (o *Orchestrator) markFailed(ctx context.Context, id int64) {
	subject, err := o.store.LoadSubject(ctx, id)
	if err != nil {
		logger.WithSubject("pipeline", id).WithError(err).Error("Failed to update app status")
		return
	}
	subject.Status = models.SubjectFailed
	if err := o.store.SaveSubject(ctx, subject); err != nil {
		logger.WithSubject("pipeline", id).WithError(err).Error("Failed to update app status")
	}
}

// stage starts a trace segment and returns the func that ends it and records
// the stage duration.
func (o *Orchestrator) stage(txn *newrelic.Transaction, name string) func() {
	seg := txn.StartSegment(name)
	start := time.Now()
	return func() {
		seg.End()
		metrics.StageDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}
