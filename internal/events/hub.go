package events

import (
	"sync"
	"time"
)

// DefaultRetention is how long a finished job's last event stays cached for
// late subscribers.
const DefaultRetention = 10 * time.Minute

// Listener is invoked synchronously from Publish. It must not block.
type Listener func(Event)

// Sink accepts job events. Hub and Relay implement it.
type Sink interface {
	Publish(jobID string, ev Event)
}

// Hub keeps the last event per job and fans new events out to subscribers.
// Finished jobs are evicted from the cache after the retention period.
type Hub struct {
	mu        sync.RWMutex
	last      map[string]Event
	versions  map[string]uint64
	listeners map[string]map[uint64]Listener
	nextID    uint64
	retention time.Duration
}

type HubOption func(*Hub)

// WithRetention sets how long finished jobs stay cached. Zero or less keeps
// them until Forget.
func WithRetention(d time.Duration) HubOption {
	return func(h *Hub) { h.retention = d }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		last:      make(map[string]Event),
		versions:  make(map[string]uint64),
		listeners: make(map[string]map[uint64]Listener),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish records ev as the job's last value and calls the current listeners
// outside the lock.
func (h *Hub) Publish(jobID string, ev Event) {
	ev.JobID = jobID

	h.mu.Lock()
	h.last[jobID] = ev
	h.versions[jobID]++
	if ev.Type == TypeFinished && h.retention > 0 {
		h.expire(jobID, h.versions[jobID])
	}
	ls := make([]Listener, 0, len(h.listeners[jobID]))
	for _, l := range h.listeners[jobID] {
		ls = append(ls, l)
	}
	h.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// expire evicts jobID after the retention period unless a newer event has
// been published for it by then. Caller holds mu.
func (h *Hub) expire(jobID string, version uint64) {
	time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.versions[jobID] == version {
			delete(h.last, jobID)
			delete(h.versions, jobID)
		}
	})
}

// Subscribe registers l for future events of jobID. The returned function
// removes it and is safe to call more than once.
func (h *Hub) Subscribe(jobID string, l Listener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.listeners[jobID] == nil {
		h.listeners[jobID] = make(map[uint64]Listener)
	}
	h.listeners[jobID][id] = l
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[jobID], id)
			if len(h.listeners[jobID]) == 0 {
				delete(h.listeners, jobID)
			}
		})
	}
}

func (h *Hub) GetLast(jobID string) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.last[jobID]
	return ev, ok
}

// Forget drops the cached last value of a job.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	delete(h.last, jobID)
	delete(h.versions, jobID)
	h.mu.Unlock()
}

func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[jobID])
}
