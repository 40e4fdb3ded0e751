package gate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

const DefaultEventBuffer = 1024

type queuedEvent struct {
	ctx   context.Context
	event *domain.AccessEvent
}

// AsyncRecorder hands events to next on a background goroutine so a slow
// sink never delays the response. When the buffer is full the event is
// dropped and passed to onDrop.
type AsyncRecorder struct {
	next   Recorder
	onDrop func(*domain.AccessEvent)
	logger *slog.Logger

	events chan queuedEvent
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewAsyncRecorder(next Recorder, size int, onDrop func(*domain.AccessEvent), logger *slog.Logger) *AsyncRecorder {
	if size <= 0 {
		size = DefaultEventBuffer
	}
	if onDrop == nil {
		onDrop = func(*domain.AccessEvent) {}
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &AsyncRecorder{
		next:   next,
		onDrop: onDrop,
		logger: logger,
		events: make(chan queuedEvent, size),
		closed: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncRecorder) Record(ctx context.Context, event *domain.AccessEvent) {
	select {
	case <-a.closed:
		a.onDrop(event)
		return
	default:
	}

	select {
	case a.events <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		a.logger.Warn("access event buffer full, dropping event", "event", event.ID, "reason", event.Reason)
		a.onDrop(event)
	}
}

func (a *AsyncRecorder) run() {
	defer a.wg.Done()

	for {
		select {
		case q := <-a.events:
			a.next.Record(q.ctx, q.event)
		case <-a.closed:
			for {
				select {
				case q := <-a.events:
					a.next.Record(q.ctx, q.event)
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting events and waits until the buffered ones are
// delivered or ctx is done.
func (a *AsyncRecorder) Close(ctx context.Context) error {
	a.once.Do(func() { close(a.closed) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
