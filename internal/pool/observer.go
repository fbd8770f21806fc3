package pool

// Slot removal reasons reported to an Observer.
const (
	ReasonIdle       = "idle"
	ReasonCrashed    = "crashed"
	ReasonTerminated = "terminated"
)

// Observer receives slot lifecycle notifications. Calls happen while the pool
// lock is held, so implementations must not call back into the pool.
type Observer interface {
	SlotCreated(pool string, slotID int)
	SlotRemoved(pool string, slotID int, reason string)
	IdleSwept(pool string, removed int)
}

type nopObserver struct{}

func (nopObserver) SlotCreated(string, int)         {}
func (nopObserver) SlotRemoved(string, int, string) {}
func (nopObserver) IdleSwept(string, int)           {}
