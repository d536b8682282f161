package training

import "sync"

// Locker guards the record store. The strategy is picked once at store
// construction: a real mutex when training is recording, a no-op otherwise
// so the disabled path costs nothing. Holders never block on I/O.
type Locker interface {
	Lock()
	Unlock()
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock()   { l.mu.Lock() }
func (l *mutexLocker) Unlock() { l.mu.Unlock() }

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// NewLocker returns the locking strategy for a store that is (or is not)
// actively recording.
func NewLocker(recording bool) Locker {
	if recording {
		return &mutexLocker{}
	}
	return noopLocker{}
}
