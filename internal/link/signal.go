package link

import "sync"

// Signal holds the latest value of some state and fans it out to
// subscribers. Each subscriber channel has a single slot that always holds
// the most recent undelivered value, so slow readers skip intermediate
// values but never block the producer.
type Signal[T comparable] struct {
	mu    sync.Mutex
	value T
	subs  map[chan T]struct{}
}

// NewSignal creates a Signal with an initial value.
func NewSignal[T comparable](initial T) *Signal[T] {
	return &Signal[T]{value: initial, subs: make(map[chan T]struct{})}
}

// Load returns the current value.
func (s *Signal[T]) Load() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and notifies subscribers. It returns false, without
// notifying, when v equals the current value.
func (s *Signal[T]) Set(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.value {
		return false
	}
	s.value = v
	for ch := range s.subs {
		deliver(ch, v)
	}
	return true
}

// Subscribe returns a channel primed with the current value and a function
// that unsubscribes and closes the channel.
func (s *Signal[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.value
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// deliver replaces any pending value in ch with v (caller must hold mu).
func deliver[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
