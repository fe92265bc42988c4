package service

import (
	"context"

	"studykit-be/internal/pkg/logger"
	"studykit-be/pkg/ai/pipeline"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService feeds derivation completions from the event bus into the
// reducer. It must be consuming before the first run starts: the in-process
// channel drops messages published while nobody is subscribed.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	reducer    *pipeline.Reducer
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	reducer *pipeline.Reducer,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		reducer:    reducer,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if err := cs.reducer.Consume(ctx, cs.subscriber, cs.topicName); err != nil {
		cs.logger.Error("CONSUMER", "Failed to subscribe", map[string]interface{}{
			"topic": cs.topicName,
			"error": err.Error(),
		})
		return err
	}
	cs.logger.Info("CONSUMER", "Consuming artifact events", map[string]interface{}{"topic": cs.topicName})
	return nil
}
