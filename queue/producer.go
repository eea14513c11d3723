package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
)

// Producer enqueues jobs onto the durable streams. It also implements
// inbox.Deliverer so handlers can fan entities back out through the
// delivery queue.
type Producer struct {
	client Broker
	logger *slog.Logger
}

// NewProducer returns a producer bound to the given broker client.
func NewProducer(client Broker, logger *slog.Logger) (*Producer, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "queue", "NewProducer", "broker client required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{client: client, logger: logger.With("component", "queue")}, nil
}

// EnqueueInbox publishes an inbound request job.
func (p *Producer) EnqueueInbox(ctx context.Context, job InboxJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WrapInvalid(err, "queue", "EnqueueInbox", "job marshal failed")
	}
	if err := p.client.Publish(ctx, SubjectInbox, data); err != nil {
		return errors.WrapTransient(err, "queue", "EnqueueInbox", "publish failed")
	}
	return nil
}

// EnqueueDelivery publishes an outbound delivery job.
func (p *Producer) EnqueueDelivery(ctx context.Context, job DeliveryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WrapInvalid(err, "queue", "EnqueueDelivery", "job marshal failed")
	}
	if err := p.client.Publish(ctx, SubjectDelivery, data); err != nil {
		return errors.WrapTransient(err, "queue", "EnqueueDelivery", "publish failed")
	}
	return nil
}

// Deliver implements inbox.Deliverer.
func (p *Producer) Deliver(ctx context.Context, ent entity.Entity, recipientID, senderID string) error {
	job, err := NewDeliveryJob(ent, recipientID, senderID)
	if err != nil {
		return err
	}
	return p.EnqueueDelivery(ctx, job)
}

// SetupStreams creates the work and dead-letter streams. Idempotent;
// safe to run on every startup.
func SetupStreams(ctx context.Context, client Broker, cfg *config.Config) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      StreamInbox,
			Subjects:  []string{SubjectInbox},
			Retention: jetstream.WorkQueuePolicy,
			Storage:   jetstream.FileStorage,
		},
		{
			Name:      StreamDelivery,
			Subjects:  []string{SubjectDelivery},
			Retention: jetstream.WorkQueuePolicy,
			Storage:   jetstream.FileStorage,
		},
		{
			Name:     StreamDead,
			Subjects: []string{SubjectDeadFilter},
			Storage:  jetstream.FileStorage,
			MaxAge:   cfg.DeadLetterAge(),
		},
	}
	for _, sc := range streams {
		if _, err := client.EnsureStream(ctx, sc); err != nil {
			return errors.WrapTransient(err, "queue", "SetupStreams",
				fmt.Sprintf("stream %s setup failed", sc.Name))
		}
	}
	return nil
}

// backoffFor builds the redelivery backoff schedule for a consumer. The
// schedule never exceeds maxDeliver-1 entries, which is what JetStream
// requires.
func backoffFor(maxDeliver int) []time.Duration {
	full := []time.Duration{
		1 * time.Second,
		5 * time.Second,
		30 * time.Second,
		2 * time.Minute,
		10 * time.Minute,
	}
	if maxDeliver <= 1 {
		return nil
	}
	if n := maxDeliver - 1; n < len(full) {
		return full[:n]
	}
	return full
}
