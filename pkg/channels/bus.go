package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Bus frame types.
const (
	// FrameScanComplete carries a terminal verdict and is ingested.
	FrameScanComplete = "scan_complete"
	// FrameBatchNotification is informational only, never ingested.
	FrameBatchNotification = "batch_notification"
)

// Frame is one broadcast message: a type tag plus an arbitrary payload.
type Frame struct {
	Type string
	Data any
}

// Bus is the in-process broadcast channel shared by dashboard contexts.
// Publishing never blocks: a subscriber that cannot keep up loses frames,
// which is logged, matching broadcast semantics where delivery is
// best-effort.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Frame
	nextID int
	logger *slog.Logger
}

// NewBus creates a broadcast bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[int]chan Frame), logger: logger}
}

// Publish broadcasts frame to every subscriber without blocking.
func (b *Bus) Publish(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			b.logger.Warn("bus subscriber lagging, frame dropped", "subscriber", id, "type", frame.Type)
		}
	}
}

// Subscribe returns a frame channel and a disposer.
func (b *Bus) Subscribe() (<-chan Frame, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Frame, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// BusAdapter consumes scan-complete frames from a Bus into the Sink.
type BusAdapter struct {
	bus    *Bus
	sink   Sink
	logger *slog.Logger
}

// NewBusAdapter creates the bus adapter.
func NewBusAdapter(bus *Bus, sink Sink, logger *slog.Logger) *BusAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusAdapter{bus: bus, sink: sink, logger: logger}
}

// Name implements Adapter.
func (a *BusAdapter) Name() string { return NameBus }

// Alive implements Adapter. The in-process bus cannot disconnect.
func (a *BusAdapter) Alive() bool { return true }

// Run implements Adapter: it drains frames until ctx is done.
func (a *BusAdapter) Run(ctx context.Context) error {
	frames, cancel := a.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			a.handle(frame)
		}
	}
}

func (a *BusAdapter) handle(frame Frame) {
	switch frame.Type {
	case FrameScanComplete:
		raw, ok := frame.Data.(verdict.RawEvent)
		if !ok {
			if p, isPtr := frame.Data.(*verdict.RawEvent); isPtr && p != nil {
				raw, ok = *p, true
			}
		}
		if !ok {
			a.logger.Warn("bus scan_complete frame with unexpected payload type")
			return
		}
		a.sink.IngestRaw(raw, NameBus)
	case FrameBatchNotification:
		a.logger.Debug("bus batch notification", "data", frame.Data)
	default:
		a.logger.Debug("bus frame ignored", "type", frame.Type)
	}
}
