package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher is the single entry point for emitting events. Every event is
// appended to the store synchronously; forwarding to the sink happens on a
// background worker so broker latency never sits on the request path.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	inbox  chan Event
	done   chan struct{}
	closed bool
}

type PublisherOption func(*Publisher)

// WithSink attaches an external forwarding sink.
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) { p.sink = sink }
}

const inboxSize = 256

func NewPublisher(store Store, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: logger,
		inbox:  make(chan Event, inboxSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.forward()
	return p
}

// Emit records an event. The store append is authoritative; a full inbox
// drops the sink copy rather than blocking the caller.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.sink == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("audit publisher closed, dropping sink copy", "action", event.Action)
		return nil
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping sink copy", "action", event.Action)
	}
	return nil
}

// List returns the trail for a masked subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Close drains the inbox into the sink and releases it. Emit calls that race
// or follow Close keep their store append and drop the sink copy. Close is
// idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
	if p.sink != nil {
		p.sink.Close()
	}
}

func (p *Publisher) forward() {
	defer close(p.done)
	for event := range p.inbox {
		if p.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Error("audit sink publish failed", "action", event.Action, "error", err)
		}
		cancel()
	}
}
