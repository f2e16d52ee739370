package exchange

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/models"
)

// BidMatcher is the part of Matcher the scheduler drives
type BidMatcher interface {
	Match(ctx context.Context, bidID int64) (*models.Trade, error)
}

// Scheduler runs match requests on a fixed pool of workers
type Scheduler struct {
	matcher BidMatcher
	queue   chan int64
	workers int
	log     *zap.Logger
}

// NewScheduler creates a scheduler with a queue of the given capacity
func NewScheduler(matcher BidMatcher, workers, capacity int, log *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		matcher: matcher,
		queue:   make(chan int64, capacity),
		workers: workers,
		log:     log,
	}
}

// Schedule queues a match for bidID without blocking. When the queue is
// full the request is dropped; the periodic sweep picks the bid up.
func (s *Scheduler) Schedule(bidID int64) {
	select {
	case s.queue <- bidID:
	default:
		s.log.Warn("match queue full, deferring to sweep", zap.Int64("bid_id", bidID))
	}
}

// Run processes queued requests until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case bidID := <-s.queue:
			s.process(ctx, bidID)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, bidID int64) {
	_, err := s.matcher.Match(ctx, bidID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrLockAcquisition):
		s.log.Warn("match deferred, option busy", zap.Int64("bid_id", bidID), zap.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		s.log.Error("match failed", zap.Int64("bid_id", bidID), zap.Error(err))
	}
}
