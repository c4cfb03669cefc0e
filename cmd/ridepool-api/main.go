// README: Entry point; loads config, wires storage, lock, events and matching, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ridepool/internal/config"
	httptransport "ridepool/internal/http"
	"ridepool/internal/http/handlers"
	"ridepool/internal/infra"
	"ridepool/internal/lock"
	"ridepool/internal/logging"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/pricing"
	"ridepool/internal/modules/ride"
	"ridepool/internal/storage"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("ridepool-api stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	healthChecks := []handlers.HealthCheck{{Name: "storage", Check: store.Ping}}
	locker, closeLocker, err := openLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()
	if rl, ok := locker.(*lock.RedisLocker); ok {
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "redis", Check: rl.Ping})
	}

	publisher := infra.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("close event publisher")
		}
	}()

	pricingSvc := pricing.NewService(pricing.Rate{BaseFare: cfg.Pricing.BaseFare, RatePerKm: cfg.Pricing.RatePerKm})
	rideSvc := ride.NewService(store, publisher, log)

	matcher := matching.NewMatcher(store, pricingSvc, publisher, matching.Config{
		Resolution:      cfg.Matching.H3Resolution,
		DetourTolerance: cfg.Matching.DetourTolerance,
	}, log)
	scheduler := matching.NewScheduler(matcher, locker, matching.SchedulerConfig{
		Interval:    cfg.Matching.Interval(),
		LockName:    cfg.Matching.LockName,
		LockTTL:     cfg.Matching.LockTTL(),
		StopTimeout: cfg.Matching.StopTimeout,
	}, log)

	api := httptransport.NewServer(httptransport.ServerDeps{
		Rides:   rideSvc,
		Trigger: scheduler,
		HealthChecks:       healthChecks,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Log:                log,
	})
	defer api.Close()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := scheduler.Start(); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			_ = scheduler.Stop(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Matching.StopTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("matching scheduler stop")
	}
	log.Info().Msg("ridepool-api stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (storage.Store, func(), error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, state is lost on exit")
		return storage.NewMemory(), func() {}, nil
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.Migrate {
		if err := infra.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return storage.NewPostgres(pool), pool.Close, nil
}

// openLocker skips Redis for in-memory storage; that mode is single-process
// so a local lease is enough.
func openLocker(ctx context.Context, cfg config.Config, log zerolog.Logger) (lock.Locker, func(), error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using process-local matching lock, redis not contacted")
		return lock.NewLocalLocker(), func() {}, nil
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(redisClient), func() { _ = redisClient.Close() }, nil
}
