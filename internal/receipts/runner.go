package receipts

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/splittab/splittab-backend/pkg/logger"
)

// Consumer pulls scan jobs off the subscription and feeds them to the
// processor. Errors nack the message so delivery retries; malformed jobs are
// swallowed inside the processor and acked.
type Consumer struct {
	processor    *Processor
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewConsumer(processor *Processor, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if processor == nil {
		return nil, errors.New("scan processor is required")
	}
	if subscription == nil {
		return nil, errors.New("scan subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{processor: processor, subscription: subscription, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := c.processor.Process(ctx, msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
