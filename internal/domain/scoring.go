package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WeightSumEpsilon — допуск на сумму весов.
const WeightSumEpsilon = 1e-6

// Weights — веса сигналов при расчёте балла. Сумма должна быть 1.0.
type Weights struct {
	ProfileCompletion   float64
	IdentityVerified    float64
	AccountAge          float64
	ResponseRate        float64
	ConversationQuality float64
	BlockRatio          float64
	ReportRatio         float64
	GhostRate           float64
	BurstScore          float64
}

// Sum возвращает сумму весов.
func (w Weights) Sum() float64 {
	return w.ProfileCompletion + w.IdentityVerified + w.AccountAge +
		w.ResponseRate + w.ConversationQuality +
		w.BlockRatio + w.ReportRatio + w.GhostRate + w.BurstScore
}

// Validate проверяет веса: неотрицательность и сумму 1.0 ± epsilon.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"profile_completion":   w.ProfileCompletion,
		"identity_verified":    w.IdentityVerified,
		"account_age":          w.AccountAge,
		"response_rate":        w.ResponseRate,
		"conversation_quality": w.ConversationQuality,
		"block_ratio":          w.BlockRatio,
		"report_ratio":         w.ReportRatio,
		"ghost_rate":           w.GhostRate,
		"burst_score":          w.BurstScore,
	} {
		if v < 0 {
			return fmt.Errorf("вес %s отрицательный: %v", name, v)
		}
	}
	if diff := math.Abs(w.Sum() - 1.0); diff > WeightSumEpsilon {
		return fmt.Errorf("сумма весов %.6f, ожидается 1.0", w.Sum())
	}
	return nil
}

// DefaultWeights возвращает канонические веса.
func DefaultWeights() Weights {
	return Weights{
		ProfileCompletion:   0.15,
		IdentityVerified:    0.15,
		AccountAge:          0.10,
		ResponseRate:        0.15,
		ConversationQuality: 0.10,
		BlockRatio:          0.10,
		ReportRatio:         0.15,
		GhostRate:           0.05,
		BurstScore:          0.05,
	}
}

// DecayConfig — параметры ежедневного decay/recovery.
type DecayConfig struct {
	// DailyDecayRate — доля предыдущего балла, снимаемая при ухудшении.
	DailyDecayRate float64
	// RecoveryRate — доля предыдущего балла, добавляемая при улучшении.
	RecoveryRate float64
	// MaxDecay — нижняя граница: за один цикл балл не опускается ниже
	// (1-MaxDecay)*previousScore.
	MaxDecay float64
	// TrendEpsilon — порог, ниже которого изменение негативной нагрузки
	// считается шумом.
	TrendEpsilon float64
}

// Validate проверяет параметры decay.
func (d DecayConfig) Validate() error {
	if d.DailyDecayRate < 0 || d.DailyDecayRate >= 1 {
		return fmt.Errorf("daily decay rate вне [0,1): %v", d.DailyDecayRate)
	}
	if d.RecoveryRate < 0 || d.RecoveryRate >= 1 {
		return fmt.Errorf("recovery rate вне [0,1): %v", d.RecoveryRate)
	}
	if d.MaxDecay <= 0 || d.MaxDecay > 1 {
		return fmt.Errorf("max decay вне (0,1]: %v", d.MaxDecay)
	}
	if d.DailyDecayRate > d.MaxDecay {
		return fmt.Errorf("daily decay rate %v больше max decay %v", d.DailyDecayRate, d.MaxDecay)
	}
	if d.TrendEpsilon < 0 {
		return fmt.Errorf("trend epsilon отрицательный: %v", d.TrendEpsilon)
	}
	return nil
}

// BurstConfig — параметры детектора всплесков.
type BurstConfig struct {
	Window          time.Duration
	MaxMessages     int
	PenaltyDuration time.Duration
}

// Validate проверяет параметры детектора.
func (b BurstConfig) Validate() error {
	if b.Window <= 0 {
		return fmt.Errorf("окно всплеска должно быть положительным: %v", b.Window)
	}
	if b.MaxMessages <= 0 {
		return fmt.Errorf("max messages должен быть положительным: %d", b.MaxMessages)
	}
	if b.PenaltyDuration <= 0 {
		return fmt.Errorf("penalty duration должен быть положительным: %v", b.PenaltyDuration)
	}
	return nil
}

// ScoringConfig — версионируемый снимок конфигурации движка. Передаётся
// явно через провайдер, а не через скрытый процессный синглтон.
type ScoringConfig struct {
	Version         string
	Weights         Weights
	Decay           DecayConfig
	Burst           BurstConfig
	Tiers           TierTable
	MaxDaysForBonus int
	// Location — опорный часовой пояс для календарных ключей дня.
	Location *time.Location
	// ExpiresAt — момент, после которого снимок нужно перечитать.
	ExpiresAt time.Time
}

// Validate проверяет инварианты конфигурации. Нарушение — фатальная
// ошибка деплоя, а не условие времени запроса.
func (c ScoringConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Decay.Validate(); err != nil {
		return err
	}
	if err := c.Burst.Validate(); err != nil {
		return err
	}
	if c.MaxDaysForBonus <= 0 {
		return fmt.Errorf("max days for bonus должен быть положительным: %d", c.MaxDaysForBonus)
	}
	if c.Location == nil {
		return errors.New("опорный часовой пояс не задан")
	}
	return c.validateTiers()
}

func (c ScoringConfig) validateTiers() error {
	if len(c.Tiers) != len(tierOrder) {
		return fmt.Errorf("таблица уровней содержит %d строк, ожидается %d", len(c.Tiers), len(tierOrder))
	}
	seen := make(map[Tier]bool, len(c.Tiers))
	for i, plan := range c.Tiers {
		if _, ok := tierOrder[plan.Tier]; !ok {
			return fmt.Errorf("неизвестный уровень %q", plan.Tier)
		}
		if seen[plan.Tier] {
			return fmt.Errorf("уровень %q повторяется", plan.Tier)
		}
		seen[plan.Tier] = true
		if i == 0 {
			continue
		}
		if c.Tiers[i].MinScore <= c.Tiers[i-1].MinScore {
			return fmt.Errorf("пороги должны строго возрастать: %d после %d", c.Tiers[i].MinScore, c.Tiers[i-1].MinScore)
		}
		if tierRank(c.Tiers[i].Tier) <= tierRank(c.Tiers[i-1].Tier) {
			return fmt.Errorf("порядок уровней в таблице не совпадает с порядком сравнения: %q после %q", c.Tiers[i].Tier, c.Tiers[i-1].Tier)
		}
	}
	return nil
}

// Expired сообщает, истёк ли снимок.
func (c ScoringConfig) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
