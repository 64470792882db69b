package telegram

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tablebot/booking"
)

// Handler consumes dialogue events.
type Handler interface {
	Handle(ctx context.Context, ev booking.Event) error
}

// Dispatcher runs events one at a time per user, in arrival order, while
// different users proceed in parallel. A failing or panicking handler only
// loses the event it was given.
type Dispatcher struct {
	ctx     context.Context
	adapter *Adapter
	handler Handler
	log     *zap.Logger

	mu     sync.Mutex
	queues map[int64][]booking.Event
	wg     sync.WaitGroup
}

// NewDispatcher handles events under ctx, which should live as long as the bot.
func NewDispatcher(ctx context.Context, adapter *Adapter, handler Handler, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		adapter: adapter,
		handler: handler,
		log:     log,
		queues:  make(map[int64][]booking.Event),
	}
}

// Accept classifies an update and queues the resulting event.
func (d *Dispatcher) Accept(u Update) {
	ev, ok := d.adapter.Event(u)
	if !ok {
		d.log.Debug("ignoring update", zap.Int("update_id", u.UpdateID))
		return
	}
	d.Dispatch(ev)
}

// Dispatch queues ev behind any event of the same user still in progress.
func (d *Dispatcher) Dispatch(ev booking.Event) {
	d.mu.Lock()
	q, running := d.queues[ev.UserID]
	d.queues[ev.UserID] = append(q, ev)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !running {
		go d.drain(ev.UserID)
	}
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		ev := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.handle(ev)
	}
}

func (d *Dispatcher) handle(ev booking.Event) {
	log := d.log.With(
		zap.Int64("user_id", ev.UserID),
		zap.Stringer("event", ev.Kind),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event",
				zap.String("input", ev.Input()),
				zap.Error(fmt.Errorf("%v", r)),
				zap.Stack("stack"),
			)
		}
	}()
	if err := d.handler.Handle(d.ctx, ev); err != nil {
		log.Error("failed to handle event", zap.String("input", ev.Input()), zap.Error(err))
	}
}
