package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"selflearning/apps/worker/internal/events"
)

type Repository interface {
	Enqueue(ctx context.Context, jobType string, payload json.RawMessage) (*Job, error)
	List(ctx context.Context, f Filter) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, f Filter) (int, error)
	PurgeDead(ctx context.Context) (int64, error)
	Reset(ctx context.Context, id string) error
}

// Trigger wakes a drain. Implementations return immediately.
type Trigger interface {
	Trigger()
}

// TypeRegistry reports whether a job type has a handler.
type TypeRegistry interface {
	Has(jobType string) bool
}

type forgetter interface {
	Forget(jobID string)
}

type Counts struct {
	Queued int `json:"queued"`
	Failed int `json:"failed"`
	Dead   int `json:"dead"`
}

type Service struct {
	repo     Repository
	sink     events.Sink
	types    TypeRegistry
	triggers []Trigger
	logger   *slog.Logger
}

func NewService(repo Repository, sink events.Sink, types TypeRegistry, logger *slog.Logger, triggers ...Trigger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		sink:     sink,
		types:    types,
		triggers: triggers,
		logger:   logger.With("component", "job_service"),
	}
}

// Enqueue persists a job, announces it and wakes the orchestrator. The job
// runs asynchronously; callers follow it through the event stream.
func (s *Service) Enqueue(ctx context.Context, jobType string, payload json.RawMessage) (*Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: job type is required", ErrInvalidJob)
	}
	if s.types != nil && !s.types.Has(jobType) {
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, jobType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidJob)
	}

	j, err := s.repo.Enqueue(ctx, jobType, payload)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "job enqueued", "job_id", j.ID, "job_type", jobType)
	s.publish(j.ID, events.Queued(j.ID))
	s.wake()
	return j, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// Retry resets the attempt budget of a failed or dead job and requeues it.
func (s *Service) Retry(ctx context.Context, id string) error {
	if err := s.repo.Reset(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job requeued", "job_id", id)
	s.publish(id, events.Queued(id))
	s.wake()
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if f, ok := s.sink.(forgetter); ok {
		f.Forget(id)
	}
	return nil
}

func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeDead(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "dead jobs purged", "count", n)
	return n, nil
}

func (s *Service) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Queued, err = s.repo.Count(ctx, Filter{Status: StatusQueued}); err != nil {
		return Counts{}, err
	}
	if c.Failed, err = s.repo.Count(ctx, Retryable()); err != nil {
		return Counts{}, err
	}
	if c.Dead, err = s.repo.Count(ctx, DeadOnly()); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func (s *Service) publish(id string, ev events.Event) {
	if s.sink != nil {
		s.sink.Publish(id, ev)
	}
}

func (s *Service) wake() {
	for _, t := range s.triggers {
		t.Trigger()
	}
}
