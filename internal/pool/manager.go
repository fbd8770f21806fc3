package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type Category string

const (
	CategoryEmbedding Category = "embedding"
	CategoryGeneral   Category = "general"
)

// Router maps a job type to the pool category that runs it.
type Router func(jobType string) Category

// Manager owns one lazily constructed pool per category.
type Manager struct {
	exec    Executor
	configs map[Category]Config
	route   Router
	opts    []Option

	mu    sync.Mutex
	pools map[Category]*Pool
}

func NewManager(exec Executor, configs map[Category]Config, route Router, opts ...Option) *Manager {
	if route == nil {
		route = func(string) Category { return CategoryGeneral }
	}
	cfgs := make(map[Category]Config, len(configs))
	for c, cfg := range configs {
		cfgs[c] = cfg
	}
	return &Manager{
		exec:    exec,
		configs: cfgs,
		route:   route,
		opts:    opts,
		pools:   make(map[Category]*Pool),
	}
}

// Pool returns the pool for c, constructing it on first use.
func (m *Manager) Pool(c Category) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[c]; ok {
		return p, nil
	}
	cfg, ok := m.configs[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	p := New(string(c), cfg, m.exec, m.opts...)
	m.pools[c] = p
	return p, nil
}

func (m *Manager) RunTask(ctx context.Context, task Task) (json.RawMessage, error) {
	p, err := m.Pool(m.route(task.Type))
	if err != nil {
		return nil, err
	}
	return p.RunTask(ctx, task)
}

// Terminate shuts every constructed pool down and drops the references.
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[Category]*Pool)
	m.mu.Unlock()

	var errs []error
	for c, p := range pools {
		if err := p.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate %s pool: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// Stats reports every configured category; unconstructed pools map to nil.
func (m *Manager) Stats() map[Category]*Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Category]*Stats, len(m.configs))
	for c := range m.configs {
		p, ok := m.pools[c]
		if !ok {
			out[c] = nil
			continue
		}
		st := p.Stats()
		out[c] = &st
	}
	return out
}
