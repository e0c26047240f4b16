package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// Defaults for dispatcher construction when the caller passes zero values.
const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 1024
	DefaultHandlerTimeout = 30 * time.Second
)

// Dispatcher delivers committed writes to registered handlers on a bounded
// queue drained by a fixed worker pool. Handler failures are isolated: a
// panicking or erroring handler never prevents the others from running, and
// never fails the write that triggered it.
type Dispatcher struct {
	registry *Registry
	store    store.Store
	logger   *slog.Logger
	timeout  time.Duration

	queue  chan model.Write
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewDispatcher creates a dispatcher over the given registry and store.
// Zero values for workers, queueSize, and timeout select the defaults.
func NewDispatcher(reg *Registry, s store.Store, logger *slog.Logger, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	d := &Dispatcher{
		registry: reg,
		store:    s,
		logger:   logger,
		timeout:  timeout,
		queue:    make(chan model.Write, queueSize),
	}

	reg.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	return d
}

// Dispatch enqueues a committed write for handler delivery. It blocks while
// the queue is full, which applies backpressure to the writer rather than
// dropping triggers.
func (d *Dispatcher) Dispatch(ctx context.Context, w model.Write) error {
	select {
	case d.queue <- w:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch %s/%s: %w", w.Ref.Type, w.Ref.Key, ctx.Err())
	}
}

// Stop shuts the dispatcher down. Queued writes that have not been picked up
// by a worker are dropped; handlers already running get to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-d.queue:
			d.deliver(ctx, w)
		}
	}
}

// deliver runs every handler matching the write. Each handler gets its own
// timeout and panic recovery.
func (d *Dispatcher) deliver(ctx context.Context, w model.Write) {
	handlers := d.registry.HandlersFor(w)
	if len(handlers) == 0 {
		return
	}

	ev := WriteEvent{
		Write: w,
		Scope: &store.Scope{
			Store:     d.store,
			Silo:      w.Ref.Silo,
			Structure: w.Ref.Structure,
			Instance:  w.Ref.Instance,
		},
	}

	for _, h := range handlers {
		d.runHandler(ctx, h, ev)
	}
}

func (d *Dispatcher) runHandler(ctx context.Context, h Handler, ev WriteEvent) {
	handlerCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("trigger: handler panicked",
				"handler", h.Name(),
				"structure", ev.Write.Ref.Structure,
				"key", ev.Write.Ref.Key,
				"panic", r)
		}
	}()

	if err := h.Handle(handlerCtx, ev); err != nil {
		d.logger.Error("trigger: handler failed",
			"handler", h.Name(),
			"structure", ev.Write.Ref.Structure,
			"key", ev.Write.Ref.Key,
			"err", err)
		return
	}

	d.logger.Debug("trigger: handler done",
		"handler", h.Name(),
		"structure", ev.Write.Ref.Structure,
		"key", ev.Write.Ref.Key)
}
