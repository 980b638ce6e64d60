package hooks

import (
	"context"
	"log/slog"
	"sync"
)

// Hook consumes pipeline events.
type Hook interface {
	// OnEvent is called for each matching event. Errors are logged by the
	// dispatcher and never affect sibling hooks.
	OnEvent(ctx context.Context, event Event) error

	// EventTypes returns the event types this hook handles.
	// Nil or empty means all events.
	EventTypes() []EventType
}

// Closer is implemented by hooks holding resources (servers, exporters).
type Closer interface {
	Close() error
}

// Dispatcher routes events to registered hooks. It is safe for concurrent
// use, and a failing or panicking hook never prevents delivery to the rest.
type Dispatcher struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: orDefault(logger)}
}

// Register adds a hook. Hooks receive events in registration order.
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch delivers event to every hook whose filter matches. Delivery is
// synchronous; hook errors and panics are isolated and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	d.mu.RLock()
	hooks := make([]Hook, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		if !hookWants(h, event.EventType()) {
			continue
		}
		d.deliver(ctx, h, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, h Hook, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("hook panicked", "event", event.EventType(), "panic", r)
		}
	}()
	if err := h.OnEvent(ctx, event); err != nil {
		d.logger.Warn("hook failed", "event", event.EventType(), "err", err)
	}
}

// Close closes every hook that holds resources. The first error is returned
// after all hooks have been closed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for _, h := range d.hooks {
		if c, ok := h.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func hookWants(h Hook, t EventType) bool {
	types := h.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}
