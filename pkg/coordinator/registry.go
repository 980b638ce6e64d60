package coordinator

import (
	"log/slog"
	"sync"
)

// registry is a disposer-returning callback list. Registration order is
// preserved for invocation; a panicking callback is isolated so siblings
// still fire.
type registry[T any] struct {
	mu   sync.Mutex
	next int
	cbs  []entry[T]
}

type entry[T any] struct {
	id int
	fn func(T)
}

func (r *registry[T]) add(fn func(T)) (cancel func()) {
	r.mu.Lock()
	id := r.next
	r.next++
	r.cbs = append(r.cbs, entry[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			for i, e := range r.cbs {
				if e.id == id {
					r.cbs = append(r.cbs[:i], r.cbs[i+1:]...)
					break
				}
			}
			r.mu.Unlock()
		})
	}
}

func (r *registry[T]) invoke(logger *slog.Logger, name string, v T) {
	r.mu.Lock()
	cbs := make([]entry[T], len(r.cbs))
	copy(cbs, r.cbs)
	r.mu.Unlock()

	for _, e := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("callback panicked", "registry", name, "panic", rec)
				}
			}()
			e.fn(v)
		}()
	}
}
