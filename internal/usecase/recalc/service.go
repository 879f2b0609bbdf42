package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
	"dating-trust-engine/internal/usecase/score"
)

// recalcLockTTL — время жизни межпроцессного замка пересчёта. Больше
// суток не нужно: на следующий день ключ другой.
const recalcLockTTL = 26 * time.Hour

// Service выполняет ежедневный пересчёт репутации: сигналы → балл →
// decay → уровень. Пересчёт идемпотентен за календарный день.
type Service struct {
	reputation  domain.ReputationRepo
	metricsRepo domain.MetricsRepo
	audit       domain.AuditRepo
	config      domain.ConfigProvider
	cache       domain.Cache
	log         zerolog.Logger
	now         func() time.Time
}

// NewService создаёт сервис пересчёта. cache может быть nil: тогда
// межпроцессный замок не используется, остаётся условная запись в БД.
func NewService(reputation domain.ReputationRepo, metricsRepo domain.MetricsRepo, audit domain.AuditRepo, config domain.ConfigProvider, cache domain.Cache, logger zerolog.Logger) *Service {
	return &Service{
		reputation:  reputation,
		metricsRepo: metricsRepo,
		audit:       audit,
		config:      config,
		cache:       cache,
		log:         logger,
		now:         time.Now,
	}
}

// RunDaily пересчитывает репутацию пользователя за текущий день.
// Повторный вызов в тот же день ничего не делает: decay не применяется
// дважды. Возвращает, был ли пересчёт запущен: false без ошибки — день
// уже пересчитан или замок держит другой процесс. Ошибка записи не
// ретраится внутри — планировщик повторит вызов, частично применённый
// пересчёт безопасно возобновляется.
func (s *Service) RunDaily(ctx context.Context, userID int64) (bool, error) {
	cfg, err := s.config.Scoring(ctx)
	if err != nil {
		return false, fmt.Errorf("конфигурация скоринга: %w", err)
	}
	now := s.now()
	today := domain.DayKey(now, cfg.Location)

	rep, err := s.reputation.GetOrCreateReputation(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("получение репутации: %w", err)
	}
	if rep.LastCalculatedDay == today {
		return false, nil
	}

	run := func() error { return s.recalculate(ctx, rep, cfg, now, today) }
	if s.cache == nil {
		if err := run(); err != nil {
			return false, err
		}
		return true, nil
	}
	return s.cache.Once(fmt.Sprintf("recalc:%d:%s", userID, today), recalcLockTTL, run)
}

// RunBatch пересчитывает очередную порцию пользователей, не
// пересчитанных за сегодня. Возвращает число реально пересчитанных:
// пользователь, пропущенный из-за чужого замка, не считается — иначе
// дренирующий цикл планировщика крутился бы вхолостую, пока замок жив.
func (s *Service) RunBatch(ctx context.Context, batchSize int) (int, error) {
	cfg, err := s.config.Scoring(ctx)
	if err != nil {
		return 0, fmt.Errorf("конфигурация скоринга: %w", err)
	}
	today := domain.DayKey(s.now(), cfg.Location)
	ids, err := s.reputation.ListDueForRecalc(ctx, today, batchSize)
	if err != nil {
		return 0, fmt.Errorf("выборка пользователей: %w", err)
	}
	processed := 0
	for _, id := range ids {
		ran, err := s.RunDaily(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", id).Msg("recalc: пересчёт не удался")
			continue
		}
		if ran {
			processed++
		}
	}
	return processed, nil
}

func (s *Service) recalculate(ctx context.Context, rep domain.ReputationData, cfg domain.ScoringConfig, now time.Time, today string) error {
	start := time.Now()

	inputs := score.SignalInputs{AccountCreatedAt: rep.CreatedAt}
	m, err := s.metricsRepo.GetMetrics(ctx, rep.UserID)
	switch {
	case err == nil:
		inputs.Metrics = m
		inputs.HasMetrics = true
	case errors.Is(err, domain.ErrMetricsNotFound):
		// Нового пользователя считаем от значений по умолчанию.
	default:
		metrics.ObserveRecalc(start, err)
		return fmt.Errorf("метрики пользователя: %w", err)
	}

	signals := score.BuildSignals(inputs, now, cfg.Burst)
	raw := score.Compute(signals, cfg.Weights, cfg.MaxDaysForBonus)

	// Decay/recovery даёт ограниченную поправку к свежему баллу по
	// тренду негативной нагрузки относительно прошлого снимка.
	adjusted := score.ApplyDecay(rep.Score, rep.Signals.NegativeLoad(), signals.NegativeLoad(), cfg.Decay)
	final := raw + (adjusted - rep.Score)
	if final < 0 {
		final = 0
	}
	if final > score.MaxScore {
		final = score.MaxScore
	}

	newTier := cfg.Tiers.TierForScore(final)
	tierChanged := newTier != rep.Tier

	updated := rep
	updated.Score = final
	updated.Signals = signals
	updated.LastCalculatedAt = now
	updated.LastCalculatedDay = today
	updated.Tier = newTier
	updated.DailyHigherTierConversationLimit = cfg.Tiers.DailyLimitFor(newTier)
	if tierChanged {
		updated.TierChangedAt = now
	}

	saved, err := s.reputation.SaveRecalc(ctx, updated)
	if err != nil {
		metrics.ObserveRecalc(start, err)
		return fmt.Errorf("запись пересчёта: %w", err)
	}
	if !saved {
		// Другой процесс уже зафиксировал этот день.
		s.log.Debug().Int64("user_id", rep.UserID).Str("day", today).Msg("recalc: день уже пересчитан")
		return nil
	}

	metrics.ObserveRecalc(start, nil)
	userID := rep.UserID
	_ = s.audit.RecordAudit(ctx, domain.AuditEntry{
		ID:     uuid.NewString(),
		Event:  domain.AuditEventRecalculated,
		UserID: &userID,
		Metadata: map[string]any{
			"day":     today,
			"signals": signals,
			"tier":    newTier,
		},
		OccurredAt: now,
	})
	if tierChanged {
		direction := "up"
		if domain.CompareTiers(newTier, rep.Tier) < 0 {
			direction = "down"
		}
		metrics.IncTierChange(direction)
		s.log.Info().
			Int64("user_id", rep.UserID).
			Str("from", string(rep.Tier)).
			Str("to", string(newTier)).
			Msg("recalc: уровень изменился")
		_ = s.audit.RecordAudit(ctx, domain.AuditEntry{
			ID:     uuid.NewString(),
			Event:  domain.AuditEventTierChanged,
			UserID: &userID,
			Metadata: map[string]any{
				"from": rep.Tier,
				"to":   newTier,
			},
			OccurredAt: now,
		})
	}
	return nil
}
