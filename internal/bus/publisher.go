package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

const (
	// StreamName holds every bid.updated event.
	StreamName = "BID_UPDATES"

	subjectPrefix = "bid.updated."
)

// EnsureStream creates or updates the bid-update stream. Events are kept
// on disk for a day; subjects carry the auction id as the final token so a
// deployment gets per-auction ordering from per-subject ordering.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Bid update events for fan-out and replay",
		Subjects:    []string{subjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update stream %s: %w", StreamName, err)
	}
	return nil
}

// Publisher publishes bid.updated events to JetStream.
type Publisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NewPublisher creates a JetStream context over the connection and makes
// sure the stream exists.
func NewPublisher(ctx context.Context, nc *nats.Conn, log zerolog.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := EnsureStream(ctx, js); err != nil {
		return nil, err
	}

	return &Publisher{
		js:  js,
		log: log.With().Str("component", "bus").Logger(),
	}, nil
}

// PublishBidUpdated publishes an event to bid.updated.{auctionId}. The
// publish waits for the broker acknowledgment within the context deadline.
func (p *Publisher) PublishBidUpdated(ctx context.Context, event *models.BidEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bid event: %w", err)
	}

	subject := subjectPrefix + event.AuctionID
	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Float64("amount", event.Amount).
		Msg("published bid update")
	return nil
}
