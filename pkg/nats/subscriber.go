package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"studykit-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes one event; an error asks for redelivery.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber reads run lifecycle events from JetStream.
type Subscriber struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	stop []jetstream.ConsumeContext
}

func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js}, nil
}

// Subscribe delivers events matching subject to handler. An empty
// durableName creates an ephemeral consumer that starts at new messages.
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) error {
	cfg := jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durableName == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := Decode(msg.Data())
		if err != nil {
			// Redelivering an undecodable message cannot help.
			msg.Term()
			return
		}
		if err := handler(ctx, event); err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.stop = append(s.stop, cc)
	return nil
}

// Decode parses one message published by Publisher.
func Decode(data []byte) (events.RunEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.RunEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return events.RunEventFrom(env.Type, env.Data, env.OccurredAt), nil
}

func (s *Subscriber) Close() {
	for _, cc := range s.stop {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
