package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dating-trust-engine/internal/adapters/repo"
	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/cache"
	"dating-trust-engine/internal/infra/config"
	"dating-trust-engine/internal/infra/db"
	applog "dating-trust-engine/internal/infra/log"
	"dating-trust-engine/internal/infra/metrics"
	recalcusecase "dating-trust-engine/internal/usecase/recalc"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("recalc: нет подключения к БД")
	}
	defer pool.Close()

	if _, err := config.BuildScoringConfig(cfg.Scoring, cfg.TZ); err != nil {
		logger.Fatal().Err(err).Msg("recalc: невалидная конфигурация скоринга")
	}
	provider := config.NewCachedProvider(func() (domain.ScoringConfig, error) {
		return config.BuildScoringConfig(cfg.Scoring, cfg.TZ)
	}, cfg.Scoring.SnapshotTTL)

	repoAdapter := repo.NewPostgres(pool)

	var lock domain.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		lock = cache.NewRedis(redisClient)
	}

	service := recalcusecase.NewService(repoAdapter, repoAdapter, repoAdapter, provider, lock,
		logger.With().Str("component", "recalc").Logger())

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Dur("interval", cfg.Recalc.Interval).Int("batch", cfg.Recalc.BatchSize).Msg("recalc: старт")
	runBatches(ctx, logger, service, cfg.Recalc.BatchSize)

	ticker := time.NewTicker(cfg.Recalc.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("recalc: остановка")
			return
		case <-ticker.C:
			runBatches(ctx, logger, service, cfg.Recalc.BatchSize)
		}
	}
}

// runBatches выгребает очередь пересчёта до опустошения. Пакет, в
// котором ни один пользователь реально не пересчитан, завершает цикл:
// оставшиеся либо уже посчитаны, либо под чужим замком.
func runBatches(ctx context.Context, logger zerolog.Logger, service *recalcusecase.Service, batchSize int) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := service.RunBatch(ctx, batchSize)
		if err != nil {
			logger.Error().Err(err).Msg("recalc: пакетный пересчёт")
			return
		}
		if processed == 0 {
			return
		}
		logger.Info().Int("processed", processed).Msg("recalc: пакет пересчитан")
	}
}
