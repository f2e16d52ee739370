package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/exchange"
	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/memstore"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
)

// recordingScheduler collects scheduled bids so tests can run matches synchronously
type recordingScheduler struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingScheduler) Schedule(bidID int64) {
	r.mu.Lock()
	r.ids = append(r.ids, bidID)
	r.mu.Unlock()
}

func (r *recordingScheduler) take() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.ids
	r.ids = nil
	return ids
}

// flakyStore fails outbox writes on demand
type flakyStore struct {
	*memstore.Store
	failEnqueue bool
}

var errOutboxDown = errors.New("outbox unavailable")

func (f *flakyStore) EnqueueEvent(ctx context.Context, e models.Event) error {
	if f.failEnqueue {
		return errOutboxDown
	}
	return f.Store.EnqueueEvent(ctx, e)
}

type env struct {
	store     *flakyStore
	index     *orderbook.MemoryIndex
	locker    *lock.MemoryLocker
	clock     *clock.Manual
	scheduler *recordingScheduler
	matcher   *exchange.Matcher
	bids      *BidService
	trades    *TradeService

	alice, bob, carol, admin models.User
	option, other           models.ProductOption
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	mem := memstore.New()

	user := func(name string, role models.Role) models.User {
		u, err := mem.CreateUser(ctx, name, role)
		require.NoError(t, err)
		return u
	}
	cat, err := mem.CreateCategory(ctx, "Sneakers")
	require.NoError(t, err)
	prod, err := mem.CreateProduct(ctx, cat, "Air Max 1")
	require.NoError(t, err)
	opt := func(size string) models.ProductOption {
		id, err := mem.CreateProductOption(ctx, prod, size)
		require.NoError(t, err)
		o, err := mem.GetProductOption(ctx, id)
		require.NoError(t, err)
		return o
	}

	e := &env{
		store:     &flakyStore{Store: mem},
		index:     orderbook.NewMemoryIndex(),
		locker:    lock.NewMemoryLocker(),
		clock:     clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		scheduler: &recordingScheduler{},
		alice:     user("alice", models.RoleUser),
		bob:       user("bob", models.RoleUser),
		carol:     user("carol", models.RoleUser),
		admin:     user("root", models.RoleAdmin),
		option:    opt("270"),
		other:     opt("280"),
	}
	fast := lock.Options{Wait: 50 * time.Millisecond, Hold: time.Minute}
	policy := LockPolicy{Register: fast, Update: fast, Cancel: fast, TradeCancel: fast}
	locks := lock.NewManager(e.locker, nil)

	e.matcher = exchange.NewMatcher(e.store, e.index, locks, exchange.WithClock(e.clock))
	e.bids = NewBidService(e.store, e.index, locks, e.scheduler, WithClock(e.clock), WithLockPolicy(policy))
	e.trades = NewTradeService(e.store, e.index, locks, e.scheduler, WithClock(e.clock), WithLockPolicy(policy))
	return e
}

// drain runs every scheduled match and returns the trades created
func (e *env) drain(t *testing.T) []models.Trade {
	t.Helper()
	var trades []models.Trade
	for ids := e.scheduler.take(); len(ids) > 0; ids = e.scheduler.take() {
		for _, id := range ids {
			trade, err := e.matcher.Match(context.Background(), id)
			require.NoError(t, err)
			if trade != nil {
				trades = append(trades, *trade)
			}
		}
	}
	return trades
}

func (e *env) register(t *testing.T, u models.User, side models.Side, price int64) models.Bid {
	t.Helper()
	b, err := e.bids.Register(context.Background(), u.ID, BidInput{ProductOptionID: e.option.ID, Price: price, Side: side})
	require.NoError(t, err)
	return b
}

func (e *env) book(t *testing.T, optionID int64, side models.Side) []orderbook.Entry {
	t.Helper()
	entries, err := e.index.Entries(context.Background(), optionID, side)
	require.NoError(t, err)
	return entries
}

func (e *env) events(t *testing.T) []models.Event {
	t.Helper()
	events, err := e.store.Events(context.Background())
	require.NoError(t, err)
	return events
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name  string
		input BidInput
		want  error
	}{
		{name: "ZeroPrice", input: BidInput{ProductOptionID: e.option.ID, Price: 0, Side: models.SideBuy}, want: models.ErrInvalidPrice},
		{name: "NegativePrice", input: BidInput{ProductOptionID: e.option.ID, Price: -5, Side: models.SideBuy}, want: models.ErrInvalidPrice},
		{name: "PriceTooLarge", input: BidInput{ProductOptionID: e.option.ID, Price: models.MaxPrice + 1, Side: models.SideBuy}, want: models.ErrInvalidPrice},
		{name: "UnknownSide", input: BidInput{ProductOptionID: e.option.ID, Price: 100, Side: "HOLD"}, want: models.ErrInvalidSide},
		{name: "MissingOption", input: BidInput{Price: 100, Side: models.SideSell}, want: models.ErrInvalidProductOption},
	}

	// a held option lock proves validation runs before locking
	_, err := e.locker.TryAcquire(context.Background(), lock.OptionKey(e.option.ID), 0, time.Minute)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.bids.Register(context.Background(), e.alice.ID, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env) (int64, BidInput)
		want  error
	}{
		{
			name: "UnknownUser",
			setup: func(e *env) (int64, BidInput) {
				return 999, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy}
			},
			want: models.ErrUserNotFound,
		},
		{
			name: "UnknownOption",
			setup: func(e *env) (int64, BidInput) {
				return e.alice.ID, BidInput{ProductOptionID: 999, Price: 100, Side: models.SideBuy}
			},
			want: models.ErrProductOptionNotFound,
		},
		{
			name: "SuspendedUser",
			setup: func(e *env) (int64, BidInput) {
				_ = e.store.SuspendUser(context.Background(), e.alice.ID, e.clock.Now().Add(time.Hour))
				return e.alice.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy}
			},
			want: models.ErrBiddingSuspended,
		},
		{
			name: "OptionBusy",
			setup: func(e *env) (int64, BidInput) {
				_, _ = e.locker.TryAcquire(context.Background(), lock.OptionKey(e.option.ID), 0, time.Minute)
				return e.alice.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy}
			},
			want: models.ErrLockAcquisition,
		},
		{
			name: "OutboxFailureRollsBackIndex",
			setup: func(e *env) (int64, BidInput) {
				e.store.failEnqueue = true
				return e.alice.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy}
			},
			want: errOutboxDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			userID, in := tt.setup(e)

			_, err := e.bids.Register(context.Background(), userID, in)
			assert.ErrorIs(t, err, tt.want)

			page, err := e.store.ListBids(context.Background(), models.BidFilter{})
			require.NoError(t, err)
			assert.Zero(t, page.Total, "nothing persisted")
			assert.Empty(t, e.book(t, e.option.ID, models.SideBuy), "nothing indexed")
			assert.Empty(t, e.scheduler.take(), "nothing scheduled")
		})
	}
}

func TestRegister_Success(t *testing.T) {
	e := newEnv(t)
	bid := e.register(t, e.alice, models.SideBuy, 100)

	assert.Equal(t, models.BidPending, bid.Status)
	assert.Equal(t, e.clock.Now().Add(models.DefaultBidTTL), bid.ExpiresAt)
	assert.Equal(t, []orderbook.Entry{orderbook.EntryOf(bid)}, e.book(t, e.option.ID, models.SideBuy))
	assert.Equal(t, []int64{bid.ID}, e.scheduler.take())

	events := e.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventBidRegistered, events[0].Type)
	assert.Equal(t, bid.ID, events[0].AggregateID)
}

func TestRegister_MatchesAfterCommit(t *testing.T) {
	e := newEnv(t)
	sell := e.register(t, e.bob, models.SideSell, 100)
	assert.Empty(t, e.drain(t), "nothing to match yet")

	buy := e.register(t, e.alice, models.SideBuy, 120)
	trades := e.drain(t)
	require.Len(t, trades, 1)
	assert.Equal(t, buy.ID, trades[0].PurchaseBidID)
	assert.Equal(t, sell.ID, trades[0].SaleBidID)
	assert.Equal(t, int64(100), trades[0].Price)
}

func TestUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.register(t, e.alice, models.SideBuy, 100)
	second := e.register(t, e.bob, models.SideBuy, 100)
	e.scheduler.take()

	_, err := e.bids.Update(ctx, e.bob.ID, first.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy})
	assert.ErrorIs(t, err, models.ErrNotYourBid)

	_, err = e.bids.Update(ctx, e.alice.ID, first.ID, BidInput{ProductOptionID: 999, Price: 100, Side: models.SideBuy})
	assert.ErrorIs(t, err, models.ErrProductOptionNotFound)
	assert.Equal(t, []int64{first.ID, second.ID}, entryIDs(e.book(t, e.option.ID, models.SideBuy)), "failed update leaves the book unchanged")

	// same price, fresh sequence: the bid loses its time priority
	updated, err := e.bids.Update(ctx, e.alice.ID, first.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy})
	require.NoError(t, err)
	assert.Greater(t, updated.Seq, second.Seq)
	assert.Equal(t, []int64{second.ID, first.ID}, entryIDs(e.book(t, e.option.ID, models.SideBuy)))
	assert.Equal(t, []int64{first.ID}, e.scheduler.take())

	moved, err := e.bids.Update(ctx, e.alice.ID, first.ID, BidInput{ProductOptionID: e.other.ID, Price: 90, Side: models.SideSell})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID}, entryIDs(e.book(t, e.option.ID, models.SideBuy)))
	assert.Equal(t, []orderbook.Entry{orderbook.EntryOf(moved)}, e.book(t, e.other.ID, models.SideSell))

	events := e.events(t)
	assert.Equal(t, models.EventBidUpdated, events[len(events)-1].Type)
}

func TestUpdate_MatchedBidRejected(t *testing.T) {
	e := newEnv(t)
	e.register(t, e.bob, models.SideSell, 100)
	buy := e.register(t, e.alice, models.SideBuy, 100)
	require.Len(t, e.drain(t), 1)

	_, err := e.bids.Update(context.Background(), e.alice.ID, buy.ID, BidInput{ProductOptionID: e.option.ID, Price: 50, Side: models.SideBuy})
	assert.ErrorIs(t, err, models.ErrBidNotPending)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bid := e.register(t, e.alice, models.SideSell, 100)

	_, err := e.bids.Cancel(ctx, e.bob.ID, bid.ID)
	assert.ErrorIs(t, err, models.ErrNotYourBid)

	_, err = e.bids.Cancel(ctx, e.alice.ID, 999)
	assert.ErrorIs(t, err, models.ErrBidNotFound)

	cancelled, err := e.bids.Cancel(ctx, e.alice.ID, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidCanceled, cancelled.Status)
	assert.Empty(t, e.book(t, e.option.ID, models.SideSell))

	_, err = e.bids.Cancel(ctx, e.alice.ID, bid.ID)
	assert.ErrorIs(t, err, models.ErrBidAlreadyCanceled)

	events := e.events(t)
	assert.Equal(t, models.EventBidCancelled, events[len(events)-1].Type)
}

func TestCancel_BidLockBusy(t *testing.T) {
	e := newEnv(t)
	bid := e.register(t, e.alice, models.SideSell, 100)
	_, err := e.locker.TryAcquire(context.Background(), lock.BidKey(bid.ID), 0, time.Minute)
	require.NoError(t, err)

	_, err = e.bids.Cancel(context.Background(), e.alice.ID, bid.ID)
	assert.ErrorIs(t, err, models.ErrLockAcquisition)
	assert.Len(t, e.book(t, e.option.ID, models.SideSell), 1)
}

func TestAdminCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bid := e.register(t, e.alice, models.SideBuy, 100)

	tests := []struct {
		name    string
		actor   int64
		reason  models.CancelReason
		comment string
		want    error
	}{
		{name: "UnknownReason", actor: e.admin.ID, reason: "BORED", want: models.ErrInvalidReason},
		{name: "CommentTooLong", actor: e.admin.ID, reason: models.ReasonFraud, comment: strings.Repeat("x", 256), want: models.ErrCommentTooLong},
		{name: "NotAdmin", actor: e.bob.ID, reason: models.ReasonFraud, want: models.ErrAdminOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.bids.AdminCancel(ctx, tt.actor, bid.ID, tt.reason, tt.comment)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	comment := strings.Repeat("é", 255)
	record, err := e.bids.AdminCancel(ctx, e.admin.ID, bid.ID, models.ReasonPolicyViolation, comment)
	require.NoError(t, err)
	assert.Equal(t, models.AdminCancellation{
		BidID:      bid.ID,
		Status:     models.BidAdminCanceled,
		AdminID:    e.admin.ID,
		AdminName:  "root",
		Reason:     models.ReasonPolicyViolation,
		Comment:    comment,
		CanceledAt: e.clock.Now(),
	}, record)
	assert.Empty(t, e.book(t, e.option.ID, models.SideBuy))

	stored, err := e.store.GetBid(ctx, bid.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CanceledBy)
	assert.Equal(t, e.admin.ID, *stored.CanceledBy)

	events := e.events(t)
	var payload models.BidChanged
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &payload))
	assert.Equal(t, models.ReasonPolicyViolation, payload.Reason)

	_, err = e.bids.AdminCancel(ctx, e.admin.ID, bid.ID, models.ReasonFraud, "")
	assert.ErrorIs(t, err, models.ErrBidAlreadyCanceled)
}

func TestGetVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bid := e.register(t, e.alice, models.SideBuy, 100)

	_, err := e.bids.Get(ctx, e.alice.ID, bid.ID)
	assert.NoError(t, err)
	_, err = e.bids.Get(ctx, e.admin.ID, bid.ID)
	assert.NoError(t, err)
	_, err = e.bids.Get(ctx, e.bob.ID, bid.ID)
	assert.ErrorIs(t, err, models.ErrNotYourBid)
}

func matched(t *testing.T, e *env) models.Trade {
	t.Helper()
	e.register(t, e.bob, models.SideSell, 100)
	e.register(t, e.alice, models.SideBuy, 100)
	trades := e.drain(t)
	require.Len(t, trades, 1)
	return trades[0]
}

func TestTradeCancel_RevertsMatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	trade := matched(t, e)

	buy, err := e.store.GetBid(ctx, trade.PurchaseBidID)
	require.NoError(t, err)
	sell, err := e.store.GetBid(ctx, trade.SaleBidID)
	require.NoError(t, err)

	cancelled, err := e.trades.Cancel(ctx, e.alice.ID, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradePaymentCanceled, cancelled.Status)

	for _, b := range []models.Bid{buy, sell} {
		got, err := e.store.GetBid(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BidPending, got.Status)
		assert.Equal(t, b.Seq, got.Seq, "original time priority kept")
	}
	assert.Equal(t, []int64{buy.ID}, entryIDs(e.book(t, e.option.ID, models.SideBuy)))
	assert.Equal(t, []int64{sell.ID}, entryIDs(e.book(t, e.option.ID, models.SideSell)))

	alice, err := e.store.GetUser(ctx, e.alice.ID)
	require.NoError(t, err)
	require.NotNil(t, alice.BiddingSuspendedUntil)
	assert.Equal(t, e.clock.Now().Add(DefaultPenalty), *alice.BiddingSuspendedUntil)
	bob, err := e.store.GetUser(ctx, e.bob.ID)
	require.NoError(t, err)
	assert.Nil(t, bob.BiddingSuspendedUntil, "counterparty not penalised")

	events := e.events(t)
	last := events[len(events)-1]
	assert.Equal(t, models.EventTradeCancelled, last.Type)
	var payload models.TradeCancelled
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, models.TradeCancelled{TradeID: trade.ID, CancellingUserID: e.alice.ID, CounterpartyUserID: e.bob.ID}, payload)

	assert.ElementsMatch(t, []int64{buy.ID, sell.ID}, e.scheduler.ids)
	assert.Empty(t, e.drain(t), "the cancelled pair is never re-matched")

	// bob's ask can still trade with someone else
	carol := e.register(t, e.carol, models.SideBuy, 100)
	trades := e.drain(t)
	require.Len(t, trades, 1)
	assert.Equal(t, carol.ID, trades[0].PurchaseBidID)
	assert.Equal(t, sell.ID, trades[0].SaleBidID)

	_, err = e.bids.Register(ctx, e.alice.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy})
	assert.ErrorIs(t, err, models.ErrBiddingSuspended)

	e.clock.Advance(DefaultPenalty)
	_, err = e.bids.Register(ctx, e.alice.ID, BidInput{ProductOptionID: e.option.ID, Price: 100, Side: models.SideBuy})
	assert.NoError(t, err, "suspension lapses")
}

func TestTradeCancel_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	trade := matched(t, e)

	_, err := e.trades.Cancel(ctx, e.carol.ID, trade.ID)
	assert.ErrorIs(t, err, models.ErrNotYourTrade)

	_, err = e.trades.Cancel(ctx, e.alice.ID, 999)
	assert.ErrorIs(t, err, models.ErrTradeNotFound)

	completed, err := e.trades.CompletePayment(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradePaymentCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	_, err = e.trades.Cancel(ctx, e.bob.ID, trade.ID)
	assert.ErrorIs(t, err, models.ErrTradeNotCancellable)

	_, err = e.trades.CompletePayment(ctx, trade.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestTradeCancel_OptionLockBusy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	trade := matched(t, e)

	token, err := e.locker.TryAcquire(ctx, lock.OptionKey(e.option.ID), 0, time.Minute)
	require.NoError(t, err)

	_, err = e.trades.Cancel(ctx, e.alice.ID, trade.ID)
	assert.ErrorIs(t, err, models.ErrLockAcquisition)
	got, err := e.store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeWaitingPayment, got.Status)

	require.NoError(t, e.locker.Release(ctx, lock.OptionKey(e.option.ID), token))
	_, err = e.trades.Cancel(ctx, e.alice.ID, trade.ID)
	assert.NoError(t, err)
}

// cleanupIndex runs hook once, the first time an entry is removed
type cleanupIndex struct {
	*orderbook.MemoryIndex
	once sync.Once
	hook func()
}

func (c *cleanupIndex) Remove(ctx context.Context, optionID int64, side models.Side, bidID int64) error {
	c.once.Do(c.hook)
	return c.MemoryIndex.Remove(ctx, optionID, side, bidID)
}

func TestTradeCancel_DuringMatchCleanup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	locks := lock.NewManager(e.locker, nil)
	patient := lock.Options{Wait: 5 * time.Second, Hold: time.Minute}
	trades := NewTradeService(e.store, e.index, locks, e.scheduler,
		WithClock(e.clock), WithLockPolicy(LockPolicy{TradeCancel: patient}))

	sell := e.register(t, e.bob, models.SideSell, 100)
	buy := e.register(t, e.alice, models.SideBuy, 120)
	e.scheduler.take()

	// alice cancels as soon as the trade is visible, while the matcher is
	// dropping the matched entries
	cancelled := make(chan error, 1)
	index := &cleanupIndex{MemoryIndex: e.index}
	index.hook = func() {
		go func() {
			page, err := trades.List(ctx, models.TradeFilter{})
			if err == nil && len(page.Items) != 1 {
				err = errors.New("trade not visible")
			}
			if err == nil {
				_, err = trades.Cancel(ctx, e.alice.ID, page.Items[0].ID)
			}
			cancelled <- err
		}()
		select {
		case err := <-cancelled:
			cancelled <- err
		case <-time.After(200 * time.Millisecond):
		}
	}

	matcher := exchange.NewMatcher(e.store, index, locks, exchange.WithClock(e.clock))
	trade, err := matcher.Match(ctx, buy.ID)
	require.NoError(t, err)
	require.NotNil(t, trade)

	select {
	case err := <-cancelled:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("trade cancel never finished")
	}

	for _, id := range []int64{buy.ID, sell.ID} {
		got, err := e.store.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BidPending, got.Status)
	}
	assert.Equal(t, []int64{buy.ID}, entryIDs(e.book(t, e.option.ID, models.SideBuy)))
	assert.Equal(t, []int64{sell.ID}, entryIDs(e.book(t, e.option.ID, models.SideSell)))
	assert.Empty(t, e.drain(t), "the cancelled pair is never re-matched")

	// alice's reverted bid is still reachable by new sellers
	ask := e.register(t, e.carol, models.SideSell, 110)
	matches := e.drain(t)
	require.Len(t, matches, 1)
	assert.Equal(t, buy.ID, matches[0].PurchaseBidID)
	assert.Equal(t, ask.ID, matches[0].SaleBidID)
	assert.Equal(t, int64(120), matches[0].Price)
}

func TestTradeGetAndList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	trade := matched(t, e)

	for _, u := range []models.User{e.alice, e.bob, e.admin} {
		_, err := e.trades.Get(ctx, u.ID, trade.ID)
		assert.NoError(t, err, u.Name)
	}
	_, err := e.trades.Get(ctx, e.carol.ID, trade.ID)
	assert.ErrorIs(t, err, models.ErrNotYourTrade)

	status := models.TradeWaitingPayment
	page, err := e.trades.List(ctx, models.TradeFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	bad := models.TradeStatus("LOST")
	_, err = e.trades.List(ctx, models.TradeFilter{Status: &bad})
	assert.ErrorIs(t, err, models.ErrInvalidFilter)
}

func entryIDs(entries []orderbook.Entry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, en := range entries {
		ids = append(ids, en.BidID)
	}
	return ids
}
