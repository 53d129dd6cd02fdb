package registry

import "sync"

// fifoLock is a mutex that hands ownership to waiters in arrival order.
// sync.Mutex gives no ordering guarantee, so queued waiters are woken
// directly by Unlock instead of racing for the lock.
type fifoLock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}

	// refs counts holders and waiters; guarded by Registry.locksMu
	refs int
}

func (l *fifoLock) Lock() {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	// Ownership is transferred by Unlock; locked stays true
	<-ch
}

func (l *fifoLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		panic("registry: unlock of unlocked device lock")
	}
	if len(l.waiters) == 0 {
		l.locked = false
		return
	}
	next := l.waiters[0]
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
	close(next)
}
