package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is what services see; satisfied by Producer and by NopPublisher in tests.
type Publisher interface {
	Publish(topic, key string, ev Envelope)
}

// Producer is a buffered, fire-and-forget kafka publisher. Event loss must
// never block or fail a customer-facing operation, so writes happen on a
// background goroutine and errors are only logged.
type Producer struct {
	w       *kafka.Writer
	log     *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, log *zap.Logger, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the publish loop until ctx is cancelled, then flushes the inbox.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				// Drain without closing the channel: a late Publish must
				// not panic, it just gets dropped with the buffer.
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Warn("event publish failed",
			zap.String("topic", m.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err))
	}
}

// Publish enqueues an event; drops it when the buffer is full.
func (p *Producer) Publish(topic, key string, ev Envelope) {
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("event marshal failed", zap.String("type", ev.EventType), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: b,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType)},
		},
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.Warn("event buffer full, dropping", zap.String("type", ev.EventType))
	}
}

// WaitClosed blocks until the publish loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, Envelope) {}
