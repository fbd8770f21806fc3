package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Task is the unit of work handed to a slot. Payload is copied on submit.
type Task struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (t Task) clone() Task {
	if t.Payload != nil {
		t.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	return t
}

type Executor interface {
	Execute(ctx context.Context, task Task) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, task Task) (json.RawMessage, error) {
	return f(ctx, task)
}

type Option func(*Pool)

func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

type slot struct {
	id         int
	busy       bool
	draining   bool
	lastActive time.Time
	inbox      chan *call
}

type call struct {
	ctx    context.Context
	task   Task
	result chan outcome
}

type outcome struct {
	value    json.RawMessage
	err      error
	crashed  bool
	timedOut bool
}

// Pool runs tasks on a bounded, elastic set of slot goroutines.
type Pool struct {
	name     string
	cfg      Config
	exec     Executor
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	slots   map[int]*slot
	waiting []*call
	nextID  int
	closed  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	slotsWG sync.WaitGroup
	unitsWG sync.WaitGroup
	sweepWG sync.WaitGroup
}

func New(name string, cfg Config, exec Executor, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:     name,
		cfg:      cfg.withDefaults(),
		exec:     exec,
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		slots:    make(map[int]*slot),
		baseCtx:  ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pool", "pool", name)

	p.mu.Lock()
	p.refillLocked()
	p.mu.Unlock()

	p.sweepWG.Add(1)
	go p.sweepLoop()

	return p
}

func (p *Pool) Name() string { return p.name }

// RunTask dispatches the task to an idle slot, a new slot if below MaxWorkers,
// or the FIFO wait queue, and blocks until it settles.
func (p *Pool) RunTask(ctx context.Context, task Task) (json.RawMessage, error) {
	c := &call{ctx: ctx, task: task.clone(), result: make(chan outcome, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	s := p.idleSlotLocked()
	if s == nil && len(p.slots) < p.cfg.MaxWorkers {
		s = p.spawnLocked()
	}
	if s != nil {
		p.assignLocked(s, c)
	} else {
		p.waiting = append(p.waiting, c)
	}
	p.mu.Unlock()

	select {
	case out := <-c.result:
		return out.value, out.err
	case <-ctx.Done():
		p.withdraw(c)
		return nil, ctx.Err()
	}
}

// Stats never waits on a running task.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Total:      len(p.slots),
		Queued:     len(p.waiting),
		MinWorkers: p.cfg.MinWorkers,
		MaxWorkers: p.cfg.MaxWorkers,
	}
	for _, s := range p.slots {
		switch {
		case s.draining:
			st.Draining++
		case s.busy:
			st.Busy++
		default:
			st.Idle++
		}
	}
	return st
}

// Terminate rejects queued calls, closes every slot and waits for running
// units until ctx is done, after which their contexts are cancelled.
// Subsequent calls return nil.
func (p *Pool) Terminate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiting := p.waiting
	p.waiting = nil
	for _, s := range p.slots {
		p.removeLocked(s, ReasonTerminated)
	}
	p.mu.Unlock()

	for _, c := range waiting {
		c.result <- outcome{err: ErrPoolClosed}
	}

	close(p.stop)
	p.sweepWG.Wait()

	done := make(chan struct{})
	go func() {
		p.slotsWG.Wait()
		p.unitsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("pool terminated", "rejected", len(waiting))
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("pool terminate grace period expired, cancelling running tasks")
		return ctx.Err()
	}
}

// serve runs calls for one slot. A timed-out unit keeps its slot, draining
// and not dispatchable, until it returns; only then is the slot replaced.
func (p *Pool) serve(s *slot) {
	defer p.slotsWG.Done()
	for c := range s.inbox {
		out, unitDone := p.execute(s, c)
		if out.timedOut {
			p.markDraining(s)
		}
		c.result <- out
		if out.timedOut {
			<-unitDone
			p.logger.Info("timed out task returned, replacing slot", "slot", s.id, "job_id", c.task.JobID)
		}
		p.release(s, out.crashed)
	}
}

func (p *Pool) execute(s *slot, c *call) (outcome, <-chan struct{}) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(p.baseCtx, cancel)
	defer stop()

	done := make(chan outcome, 1)
	unitDone := make(chan struct{})
	p.unitsWG.Add(1)
	go func() {
		defer p.unitsWG.Done()
		defer close(unitDone)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task crashed worker", "slot", s.id, "job_id", c.task.JobID, "panic", r)
				done <- outcome{err: fmt.Errorf("%w: %v", ErrWorkerCrashed, r), crashed: true}
			}
		}()
		v, err := p.exec.Execute(ctx, c.task)
		done <- outcome{value: v, err: err}
	}()

	var timeout <-chan time.Time
	if p.cfg.TaskTimeout > 0 {
		t := time.NewTimer(p.cfg.TaskTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case out := <-done:
		return out, unitDone
	case <-timeout:
		p.logger.Warn("task timed out, draining slot", "slot", s.id, "job_id", c.task.JobID, "timeout", p.cfg.TaskTimeout)
		return outcome{err: fmt.Errorf("%w after %s", ErrTaskTimeout, p.cfg.TaskTimeout), crashed: true, timedOut: true}, unitDone
	}
}

func (p *Pool) markDraining(s *slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.draining = true
}

func (p *Pool) release(s *slot, crashed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.slots[s.id]; !ok {
		return
	}
	if crashed {
		p.removeLocked(s, ReasonCrashed)
		p.refillLocked()
	} else {
		s.busy = false
		s.lastActive = p.now()
	}
	p.dispatchWaitingLocked()
}

func (p *Pool) withdraw(c *call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiting {
		if w == c {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return
		}
	}
}

func (p *Pool) dispatchWaitingLocked() {
	for len(p.waiting) > 0 {
		s := p.idleSlotLocked()
		if s == nil && len(p.slots) < p.cfg.MaxWorkers {
			s = p.spawnLocked()
		}
		if s == nil {
			return
		}
		c := p.waiting[0]
		p.waiting = p.waiting[1:]
		p.assignLocked(s, c)
	}
}

// idleSlotLocked prefers the most recently used slot so that surplus slots
// age out through the idle sweep.
func (p *Pool) idleSlotLocked() *slot {
	var best *slot
	for _, s := range p.slots {
		if s.busy {
			continue
		}
		if best == nil || s.lastActive.After(best.lastActive) {
			best = s
		}
	}
	return best
}

func (p *Pool) assignLocked(s *slot, c *call) {
	s.busy = true
	s.lastActive = p.now()
	s.inbox <- c
}

func (p *Pool) spawnLocked() *slot {
	s := &slot{
		id:         p.nextID,
		lastActive: p.now(),
		inbox:      make(chan *call, 1),
	}
	p.nextID++
	p.slots[s.id] = s

	p.slotsWG.Add(1)
	go p.serve(s)

	p.observer.SlotCreated(p.name, s.id)
	return s
}

func (p *Pool) refillLocked() {
	if p.closed {
		return
	}
	for len(p.slots) < p.cfg.MinWorkers {
		p.spawnLocked()
	}
}

func (p *Pool) removeLocked(s *slot, reason string) {
	delete(p.slots, s.id)
	close(s.inbox)
	p.observer.SlotRemoved(p.name, s.id, reason)
}

func (p *Pool) sweepLoop() {
	defer p.sweepWG.Done()

	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

// sweepIdle removes slots idle longer than MaxIdleTime, oldest first, without
// dropping below MinWorkers or touching a busy slot.
func (p *Pool) sweepIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	now := p.now()
	idle := make([]*slot, 0, len(p.slots))
	for _, s := range p.slots {
		if !s.busy && now.Sub(s.lastActive) > p.cfg.MaxIdleTime {
			idle = append(idle, s)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastActive.Before(idle[j].lastActive) })

	removed := 0
	for _, s := range idle {
		if len(p.slots) <= p.cfg.MinWorkers {
			break
		}
		p.removeLocked(s, ReasonIdle)
		removed++
	}

	if removed > 0 {
		p.observer.IdleSwept(p.name, removed)
		p.logger.Debug("idle slots removed", "removed", removed, "remaining", len(p.slots))
	}
	return removed
}
