package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xtrntr/resale/internal/models"
)

type recordingMatcher struct {
	mu   sync.Mutex
	seen []int64
	done chan struct{}
	want int
}

func (r *recordingMatcher) Match(_ context.Context, bidID int64) (*models.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, bidID)
	if len(r.seen) == r.want {
		close(r.done)
	}
	return nil, nil
}

func TestScheduler_RunsQueuedMatches(t *testing.T) {
	rec := &recordingMatcher{done: make(chan struct{}), want: 3}
	s := NewScheduler(rec, 2, 8, nil)

	s.Schedule(1)
	s.Schedule(2)
	s.Schedule(3)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled matches did not run")
	}
	cancel()
	<-stopped

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2, 3}, rec.seen)
}

func TestScheduler_DropsWhenFull(t *testing.T) {
	rec := &recordingMatcher{done: make(chan struct{}), want: -1}
	s := NewScheduler(rec, 1, 2, nil)

	s.Schedule(1)
	s.Schedule(2)
	s.Schedule(3) // dropped, queue holds two

	assert.Len(t, s.queue, 2)
}
