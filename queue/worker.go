package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/inbox"
	"github.com/versia-works/federation/metric"
	"github.com/versia-works/federation/natsclient"
	"github.com/versia-works/federation/pkg/retry"
)

// InboxProcessor is the processing half the inbox worker drives.
type InboxProcessor interface {
	Process(ctx context.Context, job inbox.Job) inbox.Response
}

// DeliverFunc sends one delivery job to its recipient. A nil return or a
// retry.NonRetryable error finishes the job; anything else is retried.
type DeliverFunc func(ctx context.Context, job DeliveryJob) error

// Broker is the slice of the broker client the queue layer needs.
// *natsclient.Client satisfies it.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Consume(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig, handler func(jetstream.Msg)) error
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Worker drains the durable streams and applies the acknowledgement
// contract.
type Worker struct {
	client  Broker
	cfg     config.QueueConfig
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewWorker returns a worker bound to the broker client.
func NewWorker(client Broker, cfg config.QueueConfig, logger *slog.Logger, metrics *metric.Metrics) (*Worker, error) {
	if client == nil {
		return nil, natsclient.ErrNotConnected
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Worker{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		metrics: metrics,
	}, nil
}

// StartInbox begins draining the inbox stream through the processor.
func (w *Worker) StartInbox(ctx context.Context, processor InboxProcessor) error {
	cfg := w.consumerConfig("inbox-workers", SubjectInbox)
	return w.client.Consume(ctx, StreamInbox, cfg, func(msg jetstream.Msg) {
		w.trackConcurrency(func() {
			w.handleInbox(ctx, processor, msg)
		})
	})
}

// StartDelivery begins draining the delivery stream through send.
func (w *Worker) StartDelivery(ctx context.Context, send DeliverFunc) error {
	cfg := w.consumerConfig("delivery-workers", SubjectDelivery)
	return w.client.Consume(ctx, StreamDelivery, cfg, func(msg jetstream.Msg) {
		w.trackConcurrency(func() {
			w.handleDelivery(ctx, send, msg)
		})
	})
}

func (w *Worker) consumerConfig(durable, subject string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    w.cfg.MaxDeliver,
		BackOff:       backoffFor(w.cfg.MaxDeliver),
		MaxAckPending: w.cfg.Concurrency,
	}
}

func (w *Worker) trackConcurrency(fn func()) {
	if w.metrics != nil {
		w.metrics.QueueConcurrent.Inc()
		defer w.metrics.QueueConcurrent.Dec()
	}
	fn()
}

func (w *Worker) handleInbox(ctx context.Context, processor InboxProcessor, msg jetstream.Msg) {
	var job InboxJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		// A malformed envelope can never succeed; drop it for good.
		w.logger.Error("undecodable inbox job", "error", err)
		w.terminate(msg, "inbox")
		return
	}

	outcome := outcomeFor(processor.Process(ctx, job.ProcessorJob()))
	w.settle(msg, "inbox", job.ID, outcome)
}

func (w *Worker) handleDelivery(ctx context.Context, send DeliverFunc, msg jetstream.Msg) {
	var job DeliveryJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		w.logger.Error("undecodable delivery job", "error", err)
		w.terminate(msg, "delivery")
		return
	}

	err := send(ctx, job)
	var outcome Outcome
	switch {
	case err == nil:
		outcome = Done(inbox.Response{Status: 200})
	case retry.IsNonRetryable(err):
		// The recipient's verdict is final; retrying would only repeat
		// the rejection.
		w.logger.Warn("delivery rejected by recipient",
			"job_id", job.ID, "recipient", job.RecipientID, "error", err)
		outcome = Done(inbox.Response{Status: 200})
	default:
		outcome = Retry(err)
	}
	w.settle(msg, "delivery", job.ID, outcome)
}

// settle applies the acknowledgement contract for one attempt: Done jobs
// are acked, Retry jobs are nak'd until the attempt limit, then moved to
// the dead-letter stream.
func (w *Worker) settle(msg jetstream.Msg, queueName, jobID string, outcome Outcome) {
	if !outcome.ShouldRetry() {
		if err := msg.Ack(); err != nil {
			w.logger.Error("ack failed", "queue", queueName, "job_id", jobID, "error", err)
		}
		return
	}

	attempts := w.attemptsOf(msg)
	if attempts >= w.cfg.MaxDeliver {
		w.logger.Error("job exhausted attempts",
			"queue", queueName, "job_id", jobID, "attempts", attempts, "error", outcome.Err())
		w.deadLetter(msg, queueName, attempts, outcome.Err())
		w.terminate(msg, queueName)
		return
	}

	w.logger.Warn("job failed, will retry",
		"queue", queueName, "job_id", jobID, "attempt", attempts, "error", outcome.Err())
	if w.metrics != nil {
		w.metrics.JobsRetried.WithLabelValues(queueName).Inc()
	}
	if err := msg.Nak(); err != nil {
		w.logger.Error("nak failed", "queue", queueName, "job_id", jobID, "error", err)
	}
}

func (w *Worker) attemptsOf(msg jetstream.Msg) int {
	meta, err := msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (w *Worker) deadLetter(msg jetstream.Msg, queueName string, attempts int, cause error) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	dl := DeadLetter{
		Queue:    queueName,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
		Job:      msg.Data(),
	}
	data, err := json.Marshal(dl)
	if err != nil {
		w.logger.Error("dead letter marshal failed", "queue", queueName, "error", err)
		return
	}
	if err := w.client.Publish(context.Background(), SubjectDeadPrefix+queueName, data); err != nil {
		w.logger.Error("dead letter publish failed", "queue", queueName, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.JobsDeadLetter.WithLabelValues(queueName).Inc()
	}
}

func (w *Worker) terminate(msg jetstream.Msg, queueName string) {
	if err := msg.Term(); err != nil {
		w.logger.Error("term failed", "queue", queueName, "error", err)
	}
}
