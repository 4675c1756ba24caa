package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/concurrency-core/internal/coreerr"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
)

func testConfig() Config {
	return Config{
		High:   Limits{QueueCapacity: 2, Concurrency: 2},
		Medium: Limits{QueueCapacity: 2, Concurrency: 1},
		Low:    Limits{QueueCapacity: 2, Concurrency: 1},
		Shutdown: resilience.ShutdownConfig{
			DrainPeriod: time.Second,
			GracePeriod: time.Millisecond,
		},
	}
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(testConfig(), nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func blockingTask(release <-chan struct{}) Task {
	return func(ctx context.Context) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "done", nil
	}
}

// blockingTaskStarted is like blockingTask but signals started once the
// worker has actually begun executing it, for tests that need the worker
// pinned down before submitting the next task.
func blockingTaskStarted(started chan<- struct{}, release <-chan struct{}) Task {
	return func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "done", nil
	}
}

func TestScheduler_SubmitRunsTask(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	}, Medium, 0)
	require.NoError(t, err)

	v, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestScheduler_AdmissionControlRejectsWhenFull(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	release := make(chan struct{})
	defer close(release)

	// Medium has 1 worker and a queue capacity of 2: pin the worker down
	// first, then fill the queue, then the next submission must be
	// rejected outright.
	started := make(chan struct{})
	_, err := s.Submit(context.Background(), blockingTaskStarted(started, release), Medium, 0)
	require.NoError(t, err)
	<-started

	_, err = s.Submit(context.Background(), blockingTask(release), Medium, 0)
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), blockingTask(release), Medium, 0)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), blockingTask(release), Medium, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.ErrQueueFull)
}

func TestScheduler_PrioritiesAreIsolated(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	release := make(chan struct{})
	// Saturate Low's single worker.
	_, err := s.Submit(context.Background(), blockingTask(release), Low, 0)
	require.NoError(t, err)

	// High must still complete promptly; it never waits on Low's worker.
	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "high-done", nil
	}, High, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "high-done", v)

	close(release)
}

func TestScheduler_GatherPartialOKCollectsEachError(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) (any, error) { return 1, nil },
		func(ctx context.Context) (any, error) { return nil, boom },
		func(ctx context.Context) (any, error) { return 3, nil },
	}

	results, err := s.Gather(context.Background(), tasks, Medium, 2, PartialOK)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 3, results[2].Value)
}

func TestScheduler_GatherAllOrNothingStopsOnFirstFailure(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	boom := errors.New("boom")
	var ran int32
	tasks := []Task{
		func(ctx context.Context) (any, error) {
			atomic.AddInt32(&ran, 1)
			return nil, boom
		},
		func(ctx context.Context) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				atomic.AddInt32(&ran, 1)
				return "late", nil
			}
		},
	}

	_, err := s.Gather(context.Background(), tasks, Medium, 2, AllOrNothing)
	require.Error(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&ran), int32(1), "the slow sibling must be cancelled before completing")
}

func TestScheduler_StatsReflectAdmittedProcessedRejected(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
			defer wg.Done()
			return nil, nil
		}, High, 0)
		require.NoError(t, err)
		_, _ = fut.Wait(context.Background())
	}
	wg.Wait()

	stats := s.Stats(High)
	assert.Equal(t, uint64(3), stats.Admitted)
	assert.Equal(t, uint64(3), stats.Processed)
}

func TestScheduler_StatsRecordsErrorLog(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("task failure")
	}, Medium, 0)
	require.NoError(t, err)
	_, _ = fut.Wait(context.Background())

	stats := s.Stats(Medium)
	require.Len(t, stats.RecentErrors, 1)
	assert.Contains(t, stats.RecentErrors[0], "task failure")
}

func TestScheduler_TaskPanicIsIsolated(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	}, Medium, 0)
	require.NoError(t, err)

	_, err = fut.Wait(context.Background())
	require.Error(t, err)

	// The worker must still be alive for subsequent submissions.
	fut2, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "alive", nil
	}, Medium, 0)
	require.NoError(t, err)
	v, err := fut2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alive", v)
}

func TestScheduler_SubmitTimeoutCancelsTask(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, Medium, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = fut.Wait(context.Background())
	require.Error(t, err)
}

func TestScheduler_ShutdownDrainsBeforeStopping(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), nil, nil)

	var completed atomic.Bool
	fut, err := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		completed.Store(true)
		return nil, nil
	}, Medium, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, _ = fut.Wait(context.Background())
	assert.True(t, completed.Load())
}
