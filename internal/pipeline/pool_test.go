package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoolRunsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(3, 10)
	var wg sync.WaitGroup
	var ran atomic.Int32
	p.Start(context.Background(), func(_ context.Context, job Job) {
		ran.Add(1)
		wg.Done()
	})

	wg.Add(5)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, p.Submit(NewJob(JobTypeDeploy, i)))
	}
	wg.Wait()
	p.Stop()

	assert.Equal(t, int32(5), ran.Load())
}

func TestPoolSubmitNeverBlocks(t *testing.T) {
	p := NewPool(1, 2)

	require.NoError(t, p.Submit(NewJob(JobTypeDeploy, 1)))
	require.NoError(t, p.Submit(NewJob(JobTypeDeploy, 2)))

	done := make(chan error, 1)
	go func() { done <- p.Submit(NewJob(JobTypeDeploy, 3)) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	p.Stop()
}

func TestPoolRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(1, 4)
	processed := make(chan int64, 2)
	p.Start(context.Background(), func(_ context.Context, job Job) {
		if job.SubjectID == 1 {
			panic("bad job")
		}
		processed <- job.SubjectID
	})

	require.NoError(t, p.Submit(NewJob(JobTypeDeploy, 1)))
	require.NoError(t, p.Submit(NewJob(JobTypeDeploy, 2)))

	select {
	case id := <-processed:
		assert.Equal(t, int64(2), id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
	p.Stop()
}

func TestPoolStopCancelsRunningJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPool(2, 4)
	started := make(chan struct{})
	p.Start(context.Background(), func(ctx context.Context, job Job) {
		close(started)
		<-ctx.Done()
	})

	require.NoError(t, p.Submit(NewJob(JobTypeRedeploy, 1)))
	<-started
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(NewJob(JobTypeDeploy, 2)), ErrPoolStopped)
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(0, -1)
	assert.Equal(t, defaultWorkers, p.numWorkers)
	assert.Equal(t, defaultQueueSize, cap(p.jobs))
}
