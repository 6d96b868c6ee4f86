package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	pollInterval = time.Second
	sendTimeout  = 10 * time.Second
)

// Dispatcher hands events to a sink on a background worker.
// Notify never blocks: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	queue Queue
	sink  Notifier

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts a worker draining queue into sink.
func NewDispatcher(queue Queue, sink Notifier) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:  queue,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues ev and returns immediately. It always returns nil.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if d.ctx.Err() != nil {
		d.dropped.Add(1)
		log.Printf("[Dispatcher] Closed, dropping %s notification", ev.Kind)
		return nil
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err := d.queue.Push(pushCtx, ev); err != nil {
		d.dropped.Add(1)
		log.Printf("[Dispatcher] Dropping %s notification: %v", ev.Kind, err)
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		ev, ok, err := d.queue.Pop(d.ctx, pollInterval)
		if d.ctx.Err() != nil {
			if ok {
				d.deliver(ev)
			}
			d.drain()
			return
		}
		if err != nil {
			log.Printf("[Dispatcher] Queue read failed: %v", err)
			time.Sleep(pollInterval)
			continue
		}
		if ok {
			d.deliver(ev)
		}
	}
}

// drain delivers whatever is still queued.
func (d *Dispatcher) drain() {
	for {
		ev, ok, err := d.queue.Pop(context.Background(), 0)
		if err != nil {
			log.Printf("[Dispatcher] Drain read failed: %v", err)
			return
		}
		if !ok {
			return
		}
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.sink.Notify(ctx, ev); err != nil {
		d.failed.Add(1)
		log.Printf("[Dispatcher] Failed to send %s notification: %v", ev.Kind, err)
		return
	}
	d.delivered.Add(1)
}

// Stats reports delivery counters.
func (d *Dispatcher) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"delivered": d.delivered.Load(),
		"failed":    d.failed.Load(),
		"dropped":   d.dropped.Load(),
	}
	if n, err := d.queue.Len(ctx); err == nil {
		stats["queued"] = n
	}
	return stats
}

// Close stops accepting events, drains the queue and waits for the worker
// until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(d.cancel)

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return errors.New("notification drain timed out")
	}
}

var _ Notifier = (*Dispatcher)(nil)
