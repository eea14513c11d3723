// Package queue defines the durable JetStream queues that decouple the
// HTTP gateway from inbox processing and outbound delivery, and the
// workers that drain them. The acknowledgement contract is explicit:
// every job ends in exactly one Outcome, and only Retry outcomes are
// ever redelivered.
package queue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/inbox"
)

// Stream and subject names.
const (
	StreamInbox  = "FED_INBOX"
	SubjectInbox = "fed.inbox"

	StreamDelivery  = "FED_DELIVERY"
	SubjectDelivery = "fed.delivery"

	StreamDead         = "FED_DEAD"
	SubjectDeadPrefix  = "fed.dead."
	SubjectDeadFilter  = "fed.dead.>"
	deadLetterInbox    = SubjectDeadPrefix + "inbox"
	deadLetterDelivery = SubjectDeadPrefix + "delivery"
)

// InboxJob is the wire envelope for one inbound federation request,
// captured verbatim by the gateway.
type InboxJob struct {
	ID         string              `json:"id"`
	ReceivedAt time.Time           `json:"received_at"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	SourceIP   string              `json:"source_ip"`
	Headers    map[string][]string `json:"headers"`
	Body       json.RawMessage     `json:"body"`
}

// NewInboxJob captures an inbound request into a job envelope.
func NewInboxJob(method, path, sourceIP string, headers http.Header, body []byte) InboxJob {
	return InboxJob{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Method:     method,
		Path:       path,
		SourceIP:   sourceIP,
		Headers:    headers,
		Body:       body,
	}
}

// ProcessorJob converts the envelope into the inbox processor's input.
func (j InboxJob) ProcessorJob() inbox.Job {
	return inbox.Job{
		Body:     j.Body,
		Headers:  http.Header(j.Headers),
		Method:   j.Method,
		Path:     j.Path,
		SourceIP: j.SourceIP,
	}
}

// DeliveryJob is the wire envelope for one outbound delivery: one entity
// to one recipient.
type DeliveryJob struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Entity      json.RawMessage `json:"entity"`
	RecipientID string          `json:"recipient_id"`
	SenderID    string          `json:"sender_id"`
}

// NewDeliveryJob builds a delivery envelope from a typed entity.
func NewDeliveryJob(ent entity.Entity, recipientID, senderID string) (DeliveryJob, error) {
	raw, err := json.Marshal(ent)
	if err != nil {
		return DeliveryJob{}, errors.WrapInvalid(err, "queue", "NewDeliveryJob", "entity marshal failed")
	}
	return DeliveryJob{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Entity:      raw,
		RecipientID: recipientID,
		SenderID:    senderID,
	}, nil
}

// DeadLetter wraps a terminally failed job for the dead-letter stream.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
	Job      json.RawMessage `json:"job"`
}

// Outcome is the terminal state of one job attempt. Done means the job
// is finished (including delivered rejections, which are verdicts, not
// failures); Retry means the broker should redeliver it.
type Outcome struct {
	retry bool
	resp  inbox.Response
	err   error
}

// Done marks the job complete with the given response.
func Done(resp inbox.Response) Outcome {
	return Outcome{resp: resp}
}

// Retry marks the attempt failed with a retryable error.
func Retry(err error) Outcome {
	return Outcome{retry: true, err: err}
}

// ShouldRetry reports whether the job must be redelivered.
func (o Outcome) ShouldRetry() bool { return o.retry }

// Err returns the failure behind a Retry outcome, nil for Done.
func (o Outcome) Err() error { return o.err }

// Response returns the response behind a Done outcome.
func (o Outcome) Response() inbox.Response { return o.resp }

// outcomeFor translates an inbox response into the queue contract:
// anything below 500 is a delivered verdict and must not be retried.
func outcomeFor(resp inbox.Response) Outcome {
	if resp.Status >= 500 {
		return Retry(errors.NewAPIError(resp.Status, "processing_failed"))
	}
	return Done(resp)
}
