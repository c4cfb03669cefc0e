// README: Kafka publisher for ride events, keyed by ride id.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer   messageWriter
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w)
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, attempts: 3, backoff: 200 * time.Millisecond, timeout: 2 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("events.KafkaPublisher.Publish: marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.RideID),
			Value:   b,
			Time:    ev.OccurredAt,
			Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
		})
	}
	return p.writeWithRetry(ctx, msgs)
}

// writeWithRetry retries with doubling backoff until attempts run out or ctx
// is done.
func (p *KafkaPublisher) writeWithRetry(ctx context.Context, msgs []kafka.Message) error {
	delay := p.backoff
	var err error
	for i := 0; i < p.attempts; i++ {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		err = p.writer.WriteMessages(wctx, msgs...)
		cancel()
		if err == nil {
			return nil
		}
		if i == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("events.KafkaPublisher.Publish: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("events.KafkaPublisher.Publish: after %d attempts: %w", p.attempts, err)
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
