// Package observable provides a single-writer, multi-reader value holder.
// Subscribers always see the latest value; intermediate values may be
// skipped when a reader falls behind.
package observable

import "sync"

// Value holds a T and notifies subscribers whenever it changes.
type Value[T any] struct {
	mu     sync.RWMutex
	cur    T
	subs   map[chan T]struct{}
	closed bool
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set replaces the current value and publishes it. Callers must not mutate
// x afterwards if T is a reference type.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = x
	for ch := range v.subs {
		offer(ch, x)
	}
}

// Subscribe returns a channel that immediately yields the current value and
// then every later one, plus a func that cancels the subscription. The
// channel is closed on cancel or when the Value is closed.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- v.cur
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[ch]; ok {
				delete(v.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}

// Close ends every subscription. Later Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for ch := range v.subs {
		delete(v.subs, ch)
		close(ch)
	}
}

// offer replaces whatever is buffered in ch with x. Only the writer sends,
// under v.mu, so the send after draining never blocks.
func offer[T any](ch chan T, x T) {
	select {
	case <-ch:
	default:
	}
	ch <- x
}
