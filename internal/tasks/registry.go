package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"selflearning/apps/worker/internal/pool"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrDuplicateType  = errors.New("job type already registered")
)

// Handler runs one job type. Payload and result are opaque JSON.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, payload)
}

type entry struct {
	category pool.Category
	handler  Handler
}

// Registry maps job types to handlers and pool categories. It implements
// pool.Executor so pools can run any registered type.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func (r *Registry) Register(jobType string, category pool.Category, h Handler) error {
	if jobType == "" || h == nil {
		return fmt.Errorf("register %q: job type and handler are required", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[jobType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, jobType)
	}
	r.entries[jobType] = entry{category: category, handler: h}
	return nil
}

func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[jobType]
	return ok
}

// CategoryFor is a pool.Router. Unknown types go to the general pool, where
// Execute rejects them.
func (r *Registry) CategoryFor(jobType string) pool.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[jobType]; ok {
		return e.category
	}
	return pool.CategoryGeneral
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Execute(ctx context.Context, task pool.Task) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.entries[task.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, task.Type)
	}
	return e.handler.Handle(ctx, task.Payload)
}
