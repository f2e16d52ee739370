package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/resale/internal/api"
	"github.com/xtrntr/resale/internal/auth"
	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/config"
	"github.com/xtrntr/resale/internal/db"
	"github.com/xtrntr/resale/internal/events"
	"github.com/xtrntr/resale/internal/exchange"
	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/logging"
	"github.com/xtrntr/resale/internal/memstore"
	"github.com/xtrntr/resale/internal/orderbook"
	"github.com/xtrntr/resale/internal/seed"
	"github.com/xtrntr/resale/internal/service"
	"github.com/xtrntr/resale/migrations"
)

// store is everything the server needs from a bid store backend
type store interface {
	service.Store
	exchange.Store
	events.Outbox
	exchange.PendingLister
	seed.Store
}

// Main entry point: wires the store, index, locks and workers, then serves HTTP
func main() {
	cfg, err := config.Load(".", "/etc/resale")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clk := clock.NewSystem()
	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL, clk)

	st, closeStore, err := openStore(ctx, cfg, logger, tokens)
	if err != nil {
		return err
	}
	defer closeStore()

	index, locker, closeRedis, err := openCoordination(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()
	locks := lock.NewManager(locker, logger.Named("lock"))

	restored, err := exchange.RebuildIndex(ctx, st, index, clk.Now())
	if err != nil {
		return err
	}
	logger.Info("index rebuilt", zap.Int("pending_bids", restored))

	matcher := exchange.NewMatcher(st, index, locks,
		exchange.WithClock(clk),
		exchange.WithLogger(logger.Named("matcher")),
		exchange.WithLockOptions(budget(cfg.Locks.Match), budget(cfg.Locks.Sweep)),
		exchange.WithMaxAttempts(cfg.Matching.MaxAttempts),
	)
	scheduler := exchange.NewScheduler(matcher, cfg.Matching.Workers, cfg.Matching.QueueSize, logger.Named("scheduler"))

	opts := []service.Option{
		service.WithClock(clk),
		service.WithLogger(logger.Named("service")),
		service.WithBidTTL(cfg.Matching.BidTTL),
		service.WithPenalty(cfg.Matching.Penalty),
		service.WithLockPolicy(service.LockPolicy{
			Register:    budget(cfg.Locks.Register),
			Update:      budget(cfg.Locks.Update),
			Cancel:      budget(cfg.Locks.Cancel),
			TradeCancel: budget(cfg.Locks.TradeCancel),
		}),
	}
	bids := service.NewBidService(st, index, locks, scheduler, opts...)
	trades := service.NewTradeService(st, index, locks, scheduler, opts...)

	publisher := openPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close publisher", zap.Error(err))
		}
	}()
	relay := events.NewRelay(st, publisher,
		events.WithBatchSize(cfg.Kafka.BatchSize),
		events.WithClock(clk),
		events.WithLogger(logger.Named("relay")),
	)

	handler := api.NewHandler(bids, trades, tokens, logger.Named("http"))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handler, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return matcher.RunSweeper(gctx, cfg.Matching.SweepInterval) })
	g.Go(func() error { return relay.Run(gctx, cfg.Kafka.RelayInterval) })
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, tokens *auth.TokenService) (store, func(), error) {
	var (
		st      store
		closeFn = func() {}
	)
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		st = memstore.New()
	default:
		database, err := db.NewDB(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Apply(ctx, database.Pool); err != nil {
			database.Close()
			return nil, nil, err
		}
		st, closeFn = database, database.Close
	}

	if cfg.Store.Seed {
		res, err := seed.Run(ctx, st)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		for _, u := range res.Users {
			token, err := tokens.Issue(u)
			if err != nil {
				closeFn()
				return nil, nil, err
			}
			logger.Info("seeded user", zap.String("name", u.Name), zap.String("role", string(u.Role)), zap.String("token", token))
		}
	}
	return st, closeFn, nil
}

// openCoordination picks the shared index and locks: Redis when configured,
// otherwise in-process structures that only serve a single node
func openCoordination(ctx context.Context, cfg *config.Config, logger *zap.Logger) (orderbook.Index, lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis not configured, index and locks are process local")
		return orderbook.NewMemoryIndex(), lock.NewMemoryLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return orderbook.NewRedisIndex(client), lock.NewRedisLocker(client), closeFn, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NewLogPublisher(logger.Named("events"))
	}
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

func budget(b config.LockBudget) lock.Options {
	return lock.Options{Wait: b.Wait, Hold: b.Hold}
}
