package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

// Consumer reads bid.updated events under a durable consumer, so a
// restarted process resumes from its checkpoint. Delivery is at least
// once; handlers must tolerate redelivery.
type Consumer struct {
	cons jetstream.Consumer
	cc   jetstream.ConsumeContext
	log  zerolog.Logger
}

// NewConsumer binds a durable consumer to the bid-update stream, creating
// the stream if this process starts before any publisher.
func NewConsumer(ctx context.Context, nc *nats.Conn, durable string, log zerolog.Logger) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := EnsureStream(ctx, js); err != nil {
		return nil, err
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subjectPrefix + "*",
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	return &Consumer{
		cons: cons,
		log:  log.With().Str("component", "bus").Str("consumer", durable).Logger(),
	}, nil
}

// Start begins delivering events to the handler. Events are acknowledged
// after the handler returns; a crash before the ack means redelivery.
func (c *Consumer) Start(handler func(*models.BidEvent)) error {
	cc, err := c.cons.Consume(func(msg jetstream.Msg) {
		var event models.BidEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping unparseable bid event")
			// Ack anyway: redelivering a corrupt payload cannot help.
			if err := msg.Ack(); err != nil {
				c.log.Warn().Err(err).Msg("failed to ack corrupt message")
			}
			return
		}

		if event.AuctionID == "" {
			c.log.Warn().Str("subject", msg.Subject()).Msg("dropping bid event without auction id")
			if err := msg.Ack(); err != nil {
				c.log.Warn().Err(err).Msg("failed to ack invalid message")
			}
			return
		}

		handler(&event)

		if err := msg.Ack(); err != nil {
			c.log.Warn().Err(err).Str("auction_id", event.AuctionID).Msg("failed to ack bid event")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.cc = cc
	c.log.Info().Msg("consuming bid updates")
	return nil
}

// Stop halts delivery. Unacknowledged events are redelivered later.
func (c *Consumer) Stop() {
	if c.cc != nil {
		c.cc.Stop()
	}
}
