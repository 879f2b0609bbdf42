package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"dating-trust-engine/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	// TZ — опорный часовой пояс движка: все календарные ключи дня
	// считаются в нём, независимо от пояса пользователя.
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Queues struct {
		Events string `envconfig:"EVENTS_QUEUE_KEY" default:"behavior_events"`
	} `envconfig:""`

	Recalc struct {
		Interval  time.Duration `envconfig:"RECALC_INTERVAL" default:"10m"`
		BatchSize int           `envconfig:"RECALC_BATCH_SIZE" default:"500"`
	} `envconfig:""`

	Scoring ScoringEnv `envconfig:""`
}

// ScoringEnv — параметры скоринга из окружения. Значения по умолчанию
// образуют каноническую конфигурацию движка.
type ScoringEnv struct {
	Version string `envconfig:"SCORING_VERSION" default:"v1"`

	WeightProfileCompletion   float64 `envconfig:"WEIGHT_PROFILE_COMPLETION" default:"0.15"`
	WeightIdentityVerified    float64 `envconfig:"WEIGHT_IDENTITY_VERIFIED" default:"0.15"`
	WeightAccountAge          float64 `envconfig:"WEIGHT_ACCOUNT_AGE" default:"0.10"`
	WeightResponseRate        float64 `envconfig:"WEIGHT_RESPONSE_RATE" default:"0.15"`
	WeightConversationQuality float64 `envconfig:"WEIGHT_CONVERSATION_QUALITY" default:"0.10"`
	WeightBlockRatio          float64 `envconfig:"WEIGHT_BLOCK_RATIO" default:"0.10"`
	WeightReportRatio         float64 `envconfig:"WEIGHT_REPORT_RATIO" default:"0.15"`
	WeightGhostRate           float64 `envconfig:"WEIGHT_GHOST_RATE" default:"0.05"`
	WeightBurstScore          float64 `envconfig:"WEIGHT_BURST_SCORE" default:"0.05"`

	DailyDecayRate float64 `envconfig:"DAILY_DECAY_RATE" default:"0.05"`
	RecoveryRate   float64 `envconfig:"RECOVERY_RATE" default:"0.03"`
	MaxDecay       float64 `envconfig:"MAX_DECAY" default:"0.30"`
	TrendEpsilon   float64 `envconfig:"TREND_EPSILON" default:"0.01"`

	BurstWindow      time.Duration `envconfig:"BURST_WINDOW" default:"1m"`
	BurstMaxMessages int           `envconfig:"BURST_MAX_MESSAGES" default:"5"`
	BurstPenalty     time.Duration `envconfig:"BURST_PENALTY_DURATION" default:"1h"`

	MaxDaysForBonus int `envconfig:"MAX_DAYS_FOR_AGE_BONUS" default:"90"`

	// SnapshotTTL — срок жизни снимка у кэширующего провайдера.
	SnapshotTTL time.Duration `envconfig:"SCORING_SNAPSHOT_TTL" default:"5m"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// BuildScoringConfig собирает и проверяет снимок конфигурации скоринга.
// Невалидная конфигурация — ошибка деплоя: вызывающий обязан упасть на
// старте, а не обслуживать запросы с битыми весами.
func BuildScoringConfig(env ScoringEnv, tz string) (domain.ScoringConfig, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return domain.ScoringConfig{}, err
	}
	cfg := domain.ScoringConfig{
		Version: env.Version,
		Weights: domain.Weights{
			ProfileCompletion:   env.WeightProfileCompletion,
			IdentityVerified:    env.WeightIdentityVerified,
			AccountAge:          env.WeightAccountAge,
			ResponseRate:        env.WeightResponseRate,
			ConversationQuality: env.WeightConversationQuality,
			BlockRatio:          env.WeightBlockRatio,
			ReportRatio:         env.WeightReportRatio,
			GhostRate:           env.WeightGhostRate,
			BurstScore:          env.WeightBurstScore,
		},
		Decay: domain.DecayConfig{
			DailyDecayRate: env.DailyDecayRate,
			RecoveryRate:   env.RecoveryRate,
			MaxDecay:       env.MaxDecay,
			TrendEpsilon:   env.TrendEpsilon,
		},
		Burst: domain.BurstConfig{
			Window:          env.BurstWindow,
			MaxMessages:     env.BurstMaxMessages,
			PenaltyDuration: env.BurstPenalty,
		},
		Tiers:           domain.DefaultTierTable(),
		MaxDaysForBonus: env.MaxDaysForBonus,
		Location:        loc,
	}
	if err := cfg.Validate(); err != nil {
		return domain.ScoringConfig{}, err
	}
	return cfg, nil
}
