package eventbus

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

type pending struct {
	channel string
	event   Event
}

// Publisher decouples event emission from redis round-trips. TryPublish
// never blocks: the admission hot path and the enforcement loop hand events
// to a bounded buffer drained by Run, and events are dropped when the buffer
// is full. A nil bus turns the publisher into a discard sink.
type Publisher struct {
	bus     *Bus
	logger  *zap.Logger
	queue   chan pending
	dropped atomic.Int64
}

func NewPublisher(bus *Bus, logger *zap.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		logger: logger,
		queue:  make(chan pending, 256),
	}
}

// TryPublish enqueues an event without blocking, dropping it when the buffer
// is full or no bus is configured.
func (p *Publisher) TryPublish(channel, eventType string, payload interface{}) {
	if p.bus == nil {
		return
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case p.queue <- pending{channel: channel, event: event}:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run drains the buffer until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	if p.bus == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			if err := p.bus.Publish(ctx, item.channel, item.event); err != nil {
				p.logger.Warn("failed to publish event",
					zap.String("channel", item.channel),
					zap.String("type", item.event.Type),
					zap.Error(err))
			}
		}
	}
}
