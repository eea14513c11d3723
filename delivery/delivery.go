// Package delivery sends signed entities to remote inboxes. One Send
// call handles one entity for one recipient, including per-request
// retries; fan-out across many recipients happens in the queue layer or
// through Fanout.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/metric"
	"github.com/versia-works/federation/pkg/retry"
	"github.com/versia-works/federation/queue"
	"github.com/versia-works/federation/signature"
)

// Recipient is the delivery target resolved from a job's recipient id.
type Recipient struct {
	ID    string
	URI   string
	Inbox string
}

// Directory resolves delivery endpoints and signing identities. Lookup
// methods return (nil, nil) for unknown ids.
type Directory interface {
	Recipient(ctx context.Context, id string) (*Recipient, error)

	// SignerFor returns the signer for the sending local user, or the
	// instance signer when senderID is empty.
	SignerFor(ctx context.Context, senderID string) (*signature.Signer, error)
}

// Processor delivers queued jobs to remote inboxes.
type Processor struct {
	directory  Directory
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewProcessor builds a delivery processor. cfg may be nil for defaults.
func NewProcessor(directory Directory, cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*Processor, error) {
	if directory == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "delivery", "NewProcessor", "directory required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		directory:  directory,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryCfg:   retry.Delivery(),
		logger:     logger.With("component", "delivery"),
		metrics:    metrics,
	}, nil
}

// Send delivers one job. A nil return means delivered; a
// retry.NonRetryable error means the recipient rejected the entity and
// redelivery is pointless; any other error is worth another attempt.
func (p *Processor) Send(ctx context.Context, job queue.DeliveryJob) error {
	start := time.Now()
	err := p.send(ctx, job)
	if p.metrics != nil {
		p.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			p.metrics.DeliverySent.WithLabelValues("delivered").Inc()
		case retry.IsNonRetryable(err):
			p.metrics.DeliverySent.WithLabelValues("rejected").Inc()
		default:
			p.metrics.DeliverySent.WithLabelValues("failed").Inc()
		}
	}
	return err
}

func (p *Processor) send(ctx context.Context, job queue.DeliveryJob) error {
	recipient, err := p.directory.Recipient(ctx, job.RecipientID)
	if err != nil {
		return errors.WrapTransient(err, "delivery", "Send", "recipient lookup failed")
	}
	if recipient == nil || recipient.Inbox == "" {
		return retry.NonRetryable(fmt.Errorf("recipient %s has no inbox", job.RecipientID))
	}
	signer, err := p.directory.SignerFor(ctx, job.SenderID)
	if err != nil {
		return errors.WrapTransient(err, "delivery", "Send", "signer lookup failed")
	}
	if signer == nil {
		return retry.NonRetryable(fmt.Errorf("no signing identity for sender %s", job.SenderID))
	}

	err = retry.Do(ctx, p.retryCfg, func() error {
		return p.post(ctx, signer, recipient.Inbox, job.Entity)
	})
	if err != nil {
		return err
	}
	p.logger.Debug("entity delivered", "job_id", job.ID, "inbox", recipient.Inbox)
	return nil
}

func (p *Processor) post(ctx context.Context, signer *signature.Signer, inboxURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURL, bytes.NewReader(body))
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	signed := signer.Sign(signature.Request{
		Method: http.MethodPost,
		Path:   req.URL.Path,
		Body:   body,
	})
	for k, vs := range signed {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		// Back off and try again later.
		return fmt.Errorf("recipient throttled delivery: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.NonRetryable(fmt.Errorf("recipient rejected entity: HTTP %d", resp.StatusCode))
	default:
		return fmt.Errorf("recipient error: HTTP %d", resp.StatusCode)
	}
}
