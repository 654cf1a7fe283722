package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jubot-ia/orderbot/internal/identity"
	"github.com/jubot-ia/orderbot/internal/transport"
)

// MessageHandler processes one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg transport.Inbound) error
}

// Dispatcher keeps one FIFO queue per customer. Messages from the same
// customer are handled one at a time in arrival order; different customers
// are handled in parallel.
type Dispatcher struct {
	ctx     context.Context
	handler MessageHandler

	mu     sync.Mutex
	queues map[string][]transport.Inbound
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. ctx bounds every handler call.
func NewDispatcher(ctx context.Context, handler MessageHandler) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		handler: handler,
		queues:  make(map[string][]transport.Inbound),
	}
}

// Submit queues msg behind earlier messages from the same customer.
// It returns false once the dispatcher is closed.
func (d *Dispatcher) Submit(msg transport.Inbound) bool {
	key := identity.Normalize(msg.From).CanonicalID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	queue, draining := d.queues[key]
	d.queues[key] = append(queue, msg)
	if !draining {
		d.wg.Add(1)
		go d.drain(key)
	}
	return true
}

// Enqueue adapts Submit to transport.InboundFunc.
func (d *Dispatcher) Enqueue(_ context.Context, msg transport.Inbound) {
	if !d.Submit(msg) {
		slog.Warn("Dispatcher closed, dropping inbound message")
	}
}

// Pending returns the number of queued messages not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

// Close stops accepting messages and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// drain handles queued messages for key until its queue is empty. The map
// entry stays present while draining so Submit does not start a second drainer.
func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		msg := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.handleOne(key, msg)
	}
}

func (d *Dispatcher) handleOne(key string, msg transport.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Message handler panicked", "customer_id", key, "panic", r)
		}
	}()
	if err := d.handler.Handle(d.ctx, msg); err != nil {
		slog.Debug("Message handling ended with error", "customer_id", key, "error", err)
	}
}
