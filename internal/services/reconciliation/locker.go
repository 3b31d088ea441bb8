package reconciliation

import (
	"sync"

	"github.com/google/uuid"
)

// txLocker serializes writers per transaction within this process. A
// failed TryAcquire means another request is mid-flight on the same
// transaction; the database's partial unique index backs the same
// invariant across processes.
type txLocker struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func newTxLocker() *txLocker {
	return &txLocker{inFlight: make(map[uuid.UUID]bool)}
}

func (l *txLocker) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[id] {
		return false
	}
	l.inFlight[id] = true
	return true
}

func (l *txLocker) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, id)
}
