package session

import "sync"

// watchable is a minimal observable container: watchers receive the current
// value immediately, then every subsequent update. Delivery is latest-wins;
// a watcher that lags sees the newest value, not every intermediate one.
type watchable[T any] struct {
	mu       sync.Mutex
	current  T
	watchers map[int]chan T
	nextID   int
}

func newWatchable[T any](initial T) *watchable[T] {
	return &watchable[T]{
		current:  initial,
		watchers: make(map[int]chan T),
	}
}

// get returns the current value.
func (w *watchable[T]) get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// set replaces the current value and notifies every watcher.
func (w *watchable[T]) set(value T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current = value
	for _, ch := range w.watchers {
		push(ch, value)
	}
}

// watch registers a watcher. The returned channel carries the current value
// right away. Cancel must be called to release the watcher.
func (w *watchable[T]) watch() (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	ch := make(chan T, 1)
	ch <- w.current
	w.watchers[id] = ch

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.watchers[id]; ok {
			delete(w.watchers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// push replaces any undelivered value with the newest one.
func push[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
