// Package lock provides named, time-bounded mutual exclusion shared by every
// node that touches the same books.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/models"
)

// ErrNotAcquired is returned by TryAcquire when the wait budget runs out
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires and releases named leases.
//
// A lease expires after its hold duration even if never released, so a
// crashed holder cannot block a name forever. Release only succeeds with the
// token returned by the matching TryAcquire.
type Locker interface {
	TryAcquire(ctx context.Context, name string, wait, hold time.Duration) (string, error)
	Release(ctx context.Context, name, token string) error
	IsHeld(ctx context.Context, name, token string) (bool, error)
}

// Options are the wait and hold budgets of one critical section
type Options struct {
	Wait time.Duration
	Hold time.Duration
}

// Budgets used by the bid and trade workflows
var (
	RegisterOptions    = Options{Wait: 3 * time.Second, Hold: 5 * time.Second}
	UpdateOptions      = Options{Wait: 3 * time.Second, Hold: 5 * time.Second}
	CancelOptions      = Options{Wait: 15 * time.Second, Hold: 30 * time.Second}
	MatchOptions       = Options{Wait: 5 * time.Second, Hold: 10 * time.Second}
	SweepOptions       = Options{Wait: 10 * time.Second, Hold: 20 * time.Second}
	TradeCancelOptions = Options{Wait: 5 * time.Second, Hold: 5 * time.Second}
)

// OptionKey guards the books of one product option
func OptionKey(optionID int64) string { return fmt.Sprintf("lock:option:%d", optionID) }

// BidKey guards modification of one bid
func BidKey(bidID int64) string { return fmt.Sprintf("lock:bid:%d", bidID) }

// TradeKey guards modification of one trade
func TradeKey(tradeID int64) string { return fmt.Sprintf("lock:trade:%d", tradeID) }

// Manager runs critical sections under a Locker
type Manager struct {
	locker Locker
	log    *zap.Logger
}

// NewManager wraps locker
func NewManager(locker Locker, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{locker: locker, log: log}
}

// WithLock runs fn while holding name. The lease is released on every exit
// path, including a panic in fn. Failure to acquire within opts.Wait returns
// an error wrapping models.ErrLockAcquisition and fn is not run. A section
// that outlives its lease is logged as an overrun.
func (m *Manager) WithLock(ctx context.Context, name string, opts Options, fn func(ctx context.Context) error) error {
	token, err := m.locker.TryAcquire(ctx, name, opts.Wait, opts.Hold)
	if err != nil {
		if errors.Is(err, ErrNotAcquired) {
			m.log.Warn("lock busy", zap.String("lock", name), zap.Duration("wait", opts.Wait))
			return fmt.Errorf("%w: %s", models.ErrLockAcquisition, name)
		}
		return fmt.Errorf("%w: %s: %v", models.ErrLockAcquisition, name, err)
	}

	start := time.Now()
	defer func() {
		bg := context.WithoutCancel(ctx)
		held, herr := m.locker.IsHeld(bg, name, token)
		switch {
		case herr != nil:
			m.log.Warn("failed to check lock lease", zap.String("lock", name), zap.Error(herr))
		case !held:
			m.log.Warn("lock hold exceeded",
				zap.String("lock", name),
				zap.Duration("hold", opts.Hold),
				zap.Duration("elapsed", time.Since(start)))
		}
		if rerr := m.locker.Release(bg, name, token); rerr != nil {
			m.log.Error("failed to release lock", zap.String("lock", name), zap.Error(rerr))
		}
	}()

	return fn(ctx)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt+1) * 10 * time.Millisecond
	if d > 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// poll retries try until it succeeds, the wait budget is spent or ctx ends
func poll(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for attempt := 0; ; attempt++ {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrNotAcquired
		}
		d := backoff(attempt)
		if d > remaining {
			d = remaining
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
