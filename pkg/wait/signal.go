package wait

import "sync"

// Signal is a broadcast notification. Each call to Notify wakes every
// goroutine currently selecting on a channel from Changed.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Changed returns a channel closed at the next Notify.
// A nil Signal never fires.
func (s *Signal) Changed() <-chan struct{} {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Notify wakes all current waiters.
func (s *Signal) Notify() {
	if s == nil {
		return
	}
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}
