package pipeline

import (
	"encoding/json"
	"fmt"

	"studykit-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const DefaultTopic = "studykit.artifacts"

// Bus carries settled gateway calls to the reducer.
type Bus interface {
	Publish(ev events.ArtifactEvent) error
}

type WatermillBus struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillBus(publisher message.Publisher, topic string) *WatermillBus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillBus{publisher: publisher, topic: topic}
}

func (b *WatermillBus) Topic() string { return b.topic }

func (b *WatermillBus) Publish(ev events.ArtifactEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal artifact event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", ev.SessionID)
	msg.Metadata.Set("kind", ev.Kind)
	return b.publisher.Publish(b.topic, msg)
}
