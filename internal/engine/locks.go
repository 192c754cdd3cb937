package engine

import (
	"sync"
	"time"
)

// lockWait is how long an operation waits for an instance's slot before
// giving up with ErrConflict. Locks are held only for the read-modify-write,
// never across a user interaction, so waits are short in practice.
const lockWait = 2 * time.Second

// lockTable serializes operations per instance id. Each id owns a
// single-slot channel; holding the token is holding the lock.
type lockTable struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[int64]chan struct{})}
}

func (l *lockTable) slot(id int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// acquire takes the instance's slot, waiting up to lockWait. On success the
// returned release function MUST be called on every exit path.
func (l *lockTable) acquire(id int64) (release func(), err error) {
	ch := l.slot(id)

	timer := time.NewTimer(lockWait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrConflict
	}
}
