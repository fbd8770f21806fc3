package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/internal/backoff"
	"selflearning/apps/worker/internal/events"
	"selflearning/apps/worker/internal/logger"
	"selflearning/apps/worker/internal/pool"
)

var ErrAlreadyRunning = errors.New("drain already running")

const (
	DefaultBatchSize    = 10
	DefaultPollInterval = 30 * time.Second
)

type Queue interface {
	FetchBatch(ctx context.Context, limit int, exclude []string) ([]job.Job, error)
	CommitBatch(ctx context.Context, completed []string, failed []job.Failure) error
}

type Runner interface {
	RunTask(ctx context.Context, task pool.Task) (json.RawMessage, error)
}

// Recorder receives drain measurements. The metrics package implements it.
type Recorder interface {
	RecordBatch(ctx context.Context, size int, d time.Duration)
	RecordJob(ctx context.Context, jobType string, success bool, d time.Duration)
	RecordPersistenceError(ctx context.Context)
}

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	RetryBackoff backoff.Config
}

type Summary struct {
	Batches   int `json:"batches"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator drains the job queue in batches, one drain at a time.
type Orchestrator struct {
	queue    Queue
	runner   Runner
	sink     events.Sink
	recorder Recorder
	cfg      Config
	logger   *slog.Logger

	running  atomic.Bool
	pending  atomic.Bool
	failures atomic.Int32

	// mu orders wg.Add in Trigger against cancel in Stop.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(q Queue, runner Runner, sink events.Sink, cfg Config, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		queue:  q,
		runner: runner,
		sink:   sink,
		cfg:    cfg,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Trigger starts a background drain unless one is already running, in which
// case the running drain picks the new work up before it goes idle.
func (o *Orchestrator) Trigger() {
	o.pending.Store(true)

	o.mu.Lock()
	if o.ctx.Err() != nil || !o.running.CompareAndSwap(false, true) {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if _, err := o.drain(o.ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("drain aborted", "error", err)
		}
	}()
}

// Drain runs a drain synchronously and reports what it settled.
func (o *Orchestrator) Drain(ctx context.Context) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	return o.drain(ctx)
}

// Run triggers a drain every PollInterval until ctx is done, catching jobs
// whose trigger was lost or that were enqueued by another process.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Trigger()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.ctx.Done():
			return nil
		case <-ticker.C:
			o.Trigger()
		}
	}
}

// Stop cancels background drains and waits for them until ctx is done.
// Jobs interrupted mid-batch stay queued because their commit fails.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	o.cancel()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain must be entered with the running flag held; it always releases it.
// Each job is attempted at most once per drain: failed ids are excluded from
// later fetches, completed ones are gone from the queue.
func (o *Orchestrator) drain(ctx context.Context) (Summary, error) {
	var sum Summary
	attempted := []string{}
	for {
		if err := ctx.Err(); err != nil {
			o.running.Store(false)
			return sum, err
		}

		o.pending.Store(false)
		completed, failed, err := o.processBatch(ctx, &attempted)
		if err != nil {
			o.running.Store(false)
			o.scheduleRetry(ctx, err)
			return sum, err
		}

		if completed+failed == 0 {
			o.running.Store(false)
			// A trigger that raced with the empty fetch would otherwise be lost.
			if o.pending.Load() && o.running.CompareAndSwap(false, true) {
				continue
			}
			o.failures.Store(0)
			if sum.Batches > 0 {
				o.logger.Info("queue drained", "batches", sum.Batches, "completed", sum.Completed, "failed", sum.Failed)
			}
			return sum, nil
		}

		sum.Batches++
		sum.Completed += completed
		sum.Failed += failed
	}
}

type settlement struct {
	job  job.Job
	err  error
	took time.Duration
}

func (o *Orchestrator) processBatch(ctx context.Context, attempted *[]string) (int, int, error) {
	jobs, err := o.queue.FetchBatch(ctx, o.cfg.BatchSize, *attempted)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch batch: %w", err)
	}
	if len(jobs) == 0 {
		return 0, 0, nil
	}
	start := time.Now()
	o.logger.Debug("dispatching batch", "size", len(jobs))

	results := make([]settlement, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.sink.Publish(j.ID, events.Started(j.ID))

			taskCtx := logger.WithJobID(ctx, j.ID)
			began := time.Now()
			_, err := o.runner.RunTask(taskCtx, pool.Task{JobID: j.ID, Type: j.JobType, Payload: j.Payload})
			results[i] = settlement{job: j, err: err, took: time.Since(began)}
		}()
	}
	wg.Wait()

	var completed []string
	var failed []job.Failure
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, job.Failure{ID: r.job.ID, Cause: r.err.Error()})
			continue
		}
		completed = append(completed, r.job.ID)
	}

	if err := o.queue.CommitBatch(ctx, completed, failed); err != nil {
		return 0, 0, fmt.Errorf("commit batch: %w", err)
	}
	for _, f := range failed {
		*attempted = append(*attempted, f.ID)
	}

	for _, r := range results {
		if r.err != nil {
			o.logger.WarnContext(logger.WithJobID(ctx, r.job.ID), "job failed",
				"job_type", r.job.JobType, "attempt", r.job.Attempts+1, "error", r.err)
			o.sink.Publish(r.job.ID, events.Aborted(r.job.ID, r.err.Error()))
		} else {
			o.sink.Publish(r.job.ID, events.Finished(r.job.ID))
		}
		if o.recorder != nil {
			o.recorder.RecordJob(ctx, r.job.JobType, r.err == nil, r.took)
		}
	}
	if o.recorder != nil {
		o.recorder.RecordBatch(ctx, len(jobs), time.Since(start))
	}

	return len(completed), len(failed), nil
}

func (o *Orchestrator) scheduleRetry(ctx context.Context, cause error) {
	if o.recorder != nil {
		o.recorder.RecordPersistenceError(ctx)
	}
	if o.ctx.Err() != nil || errors.Is(cause, context.Canceled) {
		return
	}

	attempt := int(o.failures.Add(1))
	delay := o.cfg.RetryBackoff.Delay(attempt)
	o.logger.Error("persistence error, retrying drain", "error", cause, "attempt", attempt, "retry_in", delay)

	time.AfterFunc(delay, o.Trigger)
}
