package delivery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/pkg/worker"
	"github.com/versia-works/federation/queue"
)

// Fanout delivers one entity to a finite recipient set with bounded
// concurrency. Individual failures are logged and counted; the call only
// errors when nothing could be attempted. Used for pushes that bypass
// the durable queue, like backfill tooling.
func (p *Processor) Fanout(ctx context.Context, ent entity.Entity, senderID string, recipientIDs []string, concurrency int) (failed int, err error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var failures atomic.Int64
	pool, err := worker.NewPool(concurrency, len(recipientIDs), func(ctx context.Context, job queue.DeliveryJob) error {
		if err := p.Send(ctx, job); err != nil {
			failures.Add(1)
			p.logger.Warn("fanout delivery failed",
				"recipient", job.RecipientID, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, errors.WrapFatal(err, "delivery", "Fanout", "pool create failed")
	}

	if err := pool.Start(ctx); err != nil {
		return 0, errors.WrapFatal(err, "delivery", "Fanout", "pool start failed")
	}
	for _, id := range recipientIDs {
		job, err := queue.NewDeliveryJob(ent, id, senderID)
		if err != nil {
			return 0, err
		}
		if err := pool.Submit(job); err != nil {
			return 0, errors.WrapTransient(err, "delivery", "Fanout", "submit failed")
		}
	}
	if err := pool.Stop(5 * time.Minute); err != nil {
		return int(failures.Load()), errors.WrapTransient(err, "delivery", "Fanout", "pool drain failed")
	}
	return int(failures.Load()), nil
}
