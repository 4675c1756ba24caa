// Package scheduler implements the priority-isolated task scheduler: three
// independent FIFO queues, one dedicated worker pool per priority, and no
// pre-emption or cross-priority borrowing. A LOW-priority flood can never
// starve HIGH-priority work because HIGH work is never waiting on the same
// workers.
package scheduler

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iruldev/concurrency-core/internal/coreerr"
	"github.com/iruldev/concurrency-core/internal/infra/observability"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
	"github.com/iruldev/concurrency-core/internal/intent"
)

// Priority is one of the three isolated scheduling classes.
type Priority = intent.TaskPriority

// The three scheduling classes, re-exported from intent for call sites that
// don't otherwise need the intent package.
const (
	High   = intent.PriorityHigh
	Medium = intent.PriorityMedium
	Low    = intent.PriorityLow
)

// Task is the unit of work a caller submits. It receives a context carrying
// the submission's optional timeout and returns a result or an error.
type Task func(ctx context.Context) (any, error)

// Limits configures one priority's queue capacity and worker concurrency.
type Limits struct {
	QueueCapacity int
	Concurrency   int
}

// Config configures a Scheduler's three priority classes and shutdown
// behavior.
type Config struct {
	High, Medium, Low Limits
	Shutdown          resilience.ShutdownConfig
}

// job is one queued unit of work awaiting a worker.
type job struct {
	id        string
	task      Task
	ctx       context.Context
	timeout   time.Duration
	resultCh  chan result
	enqueued  time.Time
}

type result struct {
	value any
	err   error
}

// Stats is a point-in-time snapshot of one priority queue's counters,
// returned by Scheduler.Stats for a given priority.
type Stats struct {
	QueueLength int
	Active      int
	Admitted    uint64
	Rejected    uint64
	Processed   uint64
	Failed      uint64
	RecentErrors []string
}

// queueState holds the live FIFO queue and counters for one priority class.
type queueState struct {
	priority Priority
	ch       chan *job

	mu     sync.Mutex
	active int

	admitted  uint64
	rejected  uint64
	processed uint64
	failed    uint64
	errLog    *list.List // bounded ring of recent error strings

	metrics *queueMetrics
}

// queueMetrics holds the Prometheus vectors a queueState reports to, already
// bound to this queue's priority label.
type queueMetrics struct {
	admitted  prometheus.Counter
	rejected  prometheus.Counter
	processed prometheus.Counter
	failed    prometheus.Counter
	active    prometheus.Gauge
	queueLen  prometheus.Gauge
}

const maxErrLog = 100

// Scheduler runs three priority-isolated FIFO work queues, each served by
// its own fixed-size worker pool.
type Scheduler struct {
	queues map[Priority]*queueState

	shutdown resilience.ShutdownCoordinator
	cfg      Config

	wg     sync.WaitGroup
	cancel context.CancelFunc

	logger *zap.Logger
}

// New constructs a Scheduler and immediately spawns its worker pools. Pass a
// nil registry to skip metrics registration (e.g. in tests). Call Shutdown
// to drain and stop the worker pools.
func New(cfg Config, registry *prometheus.Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		queues:   make(map[Priority]*queueState, 3),
		cfg:      cfg,
		shutdown: resilience.NewShutdownCoordinator(cfg.Shutdown),
		logger:   logger,
	}

	var vecs *schedulerMetricVecs
	if registry != nil {
		vecs = newSchedulerMetricVecs(registry)
	}

	s.queues[High] = newQueueState(High, cfg.High, vecs)
	s.queues[Medium] = newQueueState(Medium, cfg.Medium, vecs)
	s.queues[Low] = newQueueState(Low, cfg.Low, vecs)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, qs := range s.queues {
		s.spawnWorkers(ctx, qs)
	}

	return s
}

// schedulerMetricVecs are the shared label-vectored collectors registered
// once per Scheduler; queueMetrics binds a priority label onto each.
type schedulerMetricVecs struct {
	admitted  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	active    *prometheus.GaugeVec
	queueLen  *prometheus.GaugeVec
}

func newSchedulerMetricVecs(registry *prometheus.Registry) *schedulerMetricVecs {
	return &schedulerMetricVecs{
		admitted:  observability.MustNewCounter(registry, "scheduler_admitted_total", "Tasks admitted into a priority queue", []string{"priority"}),
		rejected:  observability.MustNewCounter(registry, "scheduler_rejected_total", "Tasks rejected for a full priority queue", []string{"priority"}),
		processed: observability.MustNewCounter(registry, "scheduler_processed_total", "Tasks completed by a priority's worker pool", []string{"priority"}),
		failed:    observability.MustNewCounter(registry, "scheduler_failed_total", "Tasks that returned an error", []string{"priority"}),
		active:    observability.MustNewGauge(registry, "scheduler_active_workers", "Workers currently executing a task", []string{"priority"}),
		queueLen:  observability.MustNewGauge(registry, "scheduler_queue_depth", "Queued tasks awaiting a worker", []string{"priority"}),
	}
}

func newQueueState(p Priority, limits Limits, vecs *schedulerMetricVecs) *queueState {
	qs := &queueState{
		priority: p,
		ch:       make(chan *job, limits.QueueCapacity),
		errLog:   list.New(),
	}
	if vecs != nil {
		label := string(p)
		qs.metrics = &queueMetrics{
			admitted:  vecs.admitted.WithLabelValues(label),
			rejected:  vecs.rejected.WithLabelValues(label),
			processed: vecs.processed.WithLabelValues(label),
			failed:    vecs.failed.WithLabelValues(label),
			active:    vecs.active.WithLabelValues(label),
			queueLen:  vecs.queueLen.WithLabelValues(label),
		}
	}
	return qs
}

func (s *Scheduler) spawnWorkers(ctx context.Context, qs *queueState) {
	n := qs.concurrencyFor(s.cfg)
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.worker(ctx, qs)
	}
}

func (qs *queueState) concurrencyFor(cfg Config) int {
	switch qs.priority {
	case High:
		return cfg.High.Concurrency
	case Medium:
		return cfg.Medium.Concurrency
	default:
		return cfg.Low.Concurrency
	}
}

func (s *Scheduler) worker(ctx context.Context, qs *queueState) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-qs.ch:
			if !ok {
				return
			}
			s.runJob(qs, j)
		}
	}
}

func (s *Scheduler) runJob(qs *queueState, j *job) {
	qs.mu.Lock()
	qs.active++
	if qs.metrics != nil {
		qs.metrics.active.Inc()
	}
	qs.mu.Unlock()
	defer func() {
		qs.mu.Lock()
		qs.active--
		if qs.metrics != nil {
			qs.metrics.active.Dec()
		}
		qs.mu.Unlock()
		s.shutdown.DecrementActive()
	}()

	runCtx := j.ctx
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, j.timeout)
		defer cancel()
	}

	value, err := s.invoke(runCtx, j.task)

	qs.mu.Lock()
	qs.processed++
	if qs.metrics != nil {
		qs.metrics.processed.Inc()
	}
	if err != nil {
		qs.failed++
		qs.pushError(err)
		if qs.metrics != nil {
			qs.metrics.failed.Inc()
		}
	}
	qs.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled task failed",
			zap.String("task_id", j.id),
			zap.String("priority", string(qs.priority)),
			zap.Error(err))
	}

	j.resultCh <- result{value: value, err: err}
	close(j.resultCh)
}

// invoke isolates a panicking task: it is reported as an error rather than
// crashing the worker goroutine.
func (s *Scheduler) invoke(ctx context.Context, t Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task panicked: %v", r)
		}
	}()
	return t(ctx)
}

func (qs *queueState) pushError(err error) {
	qs.errLog.PushBack(err.Error())
	if qs.errLog.Len() > maxErrLog {
		qs.errLog.Remove(qs.errLog.Front())
	}
}

// Future is the handle returned by Submit; call Wait to block for the
// result.
type Future struct {
	resultCh <-chan result
}

// Wait blocks until the task completes or ctx is cancelled, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-f.resultCh:
		return r.value, r.err
	case <-ctx.Done():
		return nil, coreerr.NewCancelledError()
	}
}

// Submit enqueues task at priority with an optional per-task timeout (zero
// means no timeout beyond ctx's own deadline). Admission is non-blocking: a
// full queue returns CORE-001 immediately rather than backing up the
// caller.
func (s *Scheduler) Submit(ctx context.Context, task Task, priority Priority, timeout time.Duration) (*Future, error) {
	qs, ok := s.queues[priority]
	if !ok {
		return nil, coreerr.NewValidationError("unknown priority: " + string(priority))
	}

	if !s.shutdown.IncrementActive() {
		return nil, coreerr.NewCancelledError()
	}

	j := &job{
		id:       uuid.NewString(),
		task:     task,
		ctx:      ctx,
		timeout:  timeout,
		resultCh: make(chan result, 1),
		enqueued: time.Now().UTC(),
	}

	select {
	case qs.ch <- j:
		qs.mu.Lock()
		qs.admitted++
		if qs.metrics != nil {
			qs.metrics.admitted.Inc()
			qs.metrics.queueLen.Set(float64(len(qs.ch)))
		}
		qs.mu.Unlock()
		return &Future{resultCh: j.resultCh}, nil
	default:
		s.shutdown.DecrementActive()
		qs.mu.Lock()
		qs.rejected++
		if qs.metrics != nil {
			qs.metrics.rejected.Inc()
		}
		qs.mu.Unlock()
		return nil, coreerr.NewQueueFullError(string(priority))
	}
}

// GatherPolicy selects how Gather reacts to a single task's failure.
type GatherPolicy int

const (
	// PartialOK runs every task to completion; failed tasks contribute their
	// error at their index and do not affect siblings.
	PartialOK GatherPolicy = iota
	// AllOrNothing cancels every still-running sibling as soon as one task
	// fails, and returns that first error.
	AllOrNothing
)

// GatherResult is one index-aligned slot of a Gather call.
type GatherResult struct {
	Value any
	Err   error
}

// Gather submits every task in tasks at priority, bounding concurrency to at
// most concurrency in flight at once, and returns index-aligned results.
// Gather itself does not consume admission slots beyond what Submit already
// enforces: a full queue surfaces as a per-task CORE-001 error under
// PartialOK, or as Gather's returned error under AllOrNothing.
func (s *Scheduler) Gather(ctx context.Context, tasks []Task, priority Priority, concurrency int, policy GatherPolicy) ([]GatherResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]GatherResult, len(tasks))

	if policy == AllOrNothing {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, t := range tasks {
			i, t := i, t
			g.Go(func() error {
				fut, err := s.Submit(gctx, t, priority, 0)
				if err != nil {
					return err
				}
				v, err := fut.Wait(gctx)
				if err != nil {
					return err
				}
				results[i] = GatherResult{Value: v}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}
		return results, nil
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, t := range tasks {
		i, t := i, t
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fut, err := s.Submit(ctx, t, priority, 0)
			if err != nil {
				results[i] = GatherResult{Err: err}
				return
			}
			v, err := fut.Wait(ctx)
			results[i] = GatherResult{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results, nil
}

// Stats returns a point-in-time snapshot of priority's counters.
func (s *Scheduler) Stats(priority Priority) Stats {
	qs, ok := s.queues[priority]
	if !ok {
		return Stats{}
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()

	errs := make([]string, 0, qs.errLog.Len())
	for e := qs.errLog.Front(); e != nil; e = e.Next() {
		errs = append(errs, e.Value.(string))
	}

	return Stats{
		QueueLength:  len(qs.ch),
		Active:       qs.active,
		Admitted:     qs.admitted,
		Rejected:     qs.rejected,
		Processed:    qs.processed,
		Failed:       qs.failed,
		RecentErrors: errs,
	}
}

// Shutdown stops admitting new work, waits up to the configured drain
// period for in-flight tasks to finish, and then stops every worker.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdown.InitiateShutdown()
	err := s.shutdown.WaitForDrain(ctx)
	s.cancel()
	s.wg.Wait()
	return err
}
