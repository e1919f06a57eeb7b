package arbitrage

import "sync"

// LockSet marks pairs with an execution in flight. A pair holding a lock is
// skipped by evaluation until the lock is released.
type LockSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockSet returns an empty LockSet.
func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for id. The returned release func is idempotent
// and must be deferred by the holder so a panic cannot leak the lock.
func (s *LockSet) TryAcquire(id string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.held[id]; busy {
		return nil, false
	}
	s.held[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, id)
			s.mu.Unlock()
		})
	}, true
}

// Held reports whether id is locked.
func (s *LockSet) Held(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[id]
	return ok
}

// Len returns the number of held locks.
func (s *LockSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}
