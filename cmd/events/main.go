package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"dating-trust-engine/internal/adapters/repo"
	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/config"
	"dating-trust-engine/internal/infra/db"
	applog "dating-trust-engine/internal/infra/log"
	"dating-trust-engine/internal/infra/metrics"
	"dating-trust-engine/internal/infra/queue"
	eventsusecase "dating-trust-engine/internal/usecase/events"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("events: нет подключения к БД")
	}
	defer pool.Close()

	if _, err := config.BuildScoringConfig(cfg.Scoring, cfg.TZ); err != nil {
		logger.Fatal().Err(err).Msg("events: невалидная конфигурация скоринга")
	}
	provider := config.NewCachedProvider(func() (domain.ScoringConfig, error) {
		return config.BuildScoringConfig(cfg.Scoring, cfg.TZ)
	}, cfg.Scoring.SnapshotTTL)

	repoAdapter := repo.NewPostgres(pool)
	service := eventsusecase.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, provider,
		logger.With().Str("component", "events").Logger())

	var eventQueue domain.EventQueue
	if cfg.AMQPURL != "" {
		rabbitQueue, err := queue.NewRabbitEventQueue(cfg.AMQPURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("events: нет подключения к RabbitMQ")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Str("queue", cfg.Queues.Events).Msg("events: старт")
	for {
		event, err := eventQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("events: чтение очереди")
			continue
		}
		if err := service.Apply(ctx, event); err != nil {
			logger.Error().Err(err).Int64("user_id", event.UserID).Str("type", string(event.Type)).Msg("events: обработка события")
		}
	}
	logger.Info().Msg("events: остановка")
}
