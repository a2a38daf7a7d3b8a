package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/metrics"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

const (
	defaultWorkers   = 10
	defaultQueueSize = 100
)

// JobHandler runs one job. It is expected to handle its own failures; a
// panic is recovered by the pool and logged.
type JobHandler func(ctx context.Context, job Job)

// Pool runs background jobs on a fixed set of goroutines fed by a buffered
// channel.
type Pool struct {
	jobs       chan Job
	numWorkers int
	log        *logrus.Entry

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		jobs:       make(chan Job, queueSize),
		numWorkers: numWorkers,
		log:        logger.WithModule("pool"),
	}
}

// Start launches the workers. Cancelling ctx has the same effect as Stop.
func (p *Pool) Start(ctx context.Context, handler JobHandler) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.log.Infof("Starting worker pool with %d workers", p.numWorkers)

	for i := 0; i < p.numWorkers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.runWorker(ctx, workerID, handler)
	}
}

// Submit queues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		metrics.JobsQueued.Inc()
		return nil
	default:
		metrics.JobsRejectedTotal.WithLabelValues(string(job.Type)).Inc()
		return ErrQueueFull
	}
}

// Stop cancels running jobs and waits for every worker to exit. Jobs still
// queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.log.Info("Stopping worker pool...")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	dropped := len(p.jobs)
	metrics.JobsQueued.Sub(float64(dropped))
	p.log.WithField("dropped", dropped).Info("Worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, workerID string, handler JobHandler) {
	defer p.wg.Done()

	p.log.Debugf("Worker %s started", workerID)

	for {
		select {
		case <-ctx.Done():
			p.log.Debugf("Worker %s shutting down", workerID)
			return
		case job := <-p.jobs:
			metrics.JobsQueued.Dec()
			p.processJob(ctx, workerID, job, handler)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, workerID string, job Job, handler JobHandler) {
	log := p.log.WithFields(logrus.Fields{
		"worker":     workerID,
		"job_id":     job.ID,
		"job_type":   job.Type,
		"subject_id": job.SubjectID,
	})

	defer func() {
		if r := recover(); r != nil {
			metrics.JobPanicsTotal.WithLabelValues(string(job.Type)).Inc()
			log.WithField("panic", r).Errorf("Job panicked: %s", debug.Stack())
		}
	}()

	log.Debug("Processing job")
	handler(ctx, job)
}
