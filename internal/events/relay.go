package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/models"
)

// Outbox is the store side of the relay
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]models.Event, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

const defaultBatchSize = 100

// Relay moves committed outbox records to a Publisher
type Relay struct {
	outbox Outbox
	pub    Publisher
	batch  int
	clock  clock.Clock
	log    *zap.Logger
}

// RelayOption configures a Relay
type RelayOption func(*Relay)

// WithBatchSize caps how many events one Flush publishes
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithClock sets the time source used for publish stamps
func WithClock(c clock.Clock) RelayOption {
	return func(r *Relay) { r.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) RelayOption {
	return func(r *Relay) { r.log = l }
}

// NewRelay creates a relay
func NewRelay(outbox Outbox, pub Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox: outbox,
		pub:    pub,
		batch:  defaultBatchSize,
		clock:  clock.NewSystem(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Flush publishes one batch and marks it delivered. The store is not held
// while the publisher runs. A publish failure leaves the batch unpublished for
// the next flush; a failure to mark it means it is published again, so
// delivery is at least once.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch, err := r.outbox.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to flush outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := r.pub.Publish(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to flush outbox: %w", err)
	}

	ids := make([]int64, 0, len(batch))
	for _, e := range batch {
		ids = append(ids, e.ID)
	}
	if err := r.outbox.MarkPublished(context.WithoutCancel(ctx), ids, r.clock.Now()); err != nil {
		return 0, fmt.Errorf("failed to mark %d events published: %w", len(ids), err)
	}
	return len(batch), nil
}

// Run flushes every interval until ctx is done. A full batch is followed by
// another flush straight away.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				r.log.Warn("outbox flush failed", zap.Error(err))
				break
			}
			if n > 0 {
				r.log.Debug("outbox flushed", zap.Int("events", n))
			}
			if n < r.batch || ctx.Err() != nil {
				break
			}
		}
	}
}
