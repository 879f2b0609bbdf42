package domain

import (
	"testing"
	"time"
)

func validConfig() ScoringConfig {
	return ScoringConfig{
		Version:         "test",
		Weights:         DefaultWeights(),
		Decay:           DecayConfig{DailyDecayRate: 0.05, RecoveryRate: 0.03, MaxDecay: 0.30, TrendEpsilon: 0.01},
		Burst:           BurstConfig{Window: time.Minute, MaxMessages: 5, PenaltyDuration: time.Hour},
		Tiers:           DefaultTierTable(),
		MaxDaysForBonus: 90,
		Location:        time.UTC,
	}
}

func TestScoringConfigValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("валидная конфигурация отклонена: %v", err)
	}
}

func TestScoringConfigRejectsBadWeightSum(t *testing.T) {
	cfg := validConfig()
	cfg.Weights.BurstScore += 0.1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("сумма весов != 1.0 должна отклоняться")
	}
}

func TestScoringConfigRejectsNegativeWeight(t *testing.T) {
	cfg := validConfig()
	cfg.Weights.GhostRate = -0.05
	cfg.Weights.BurstScore = 0.15
	if err := cfg.Validate(); err == nil {
		t.Fatalf("отрицательный вес должен отклоняться")
	}
}

func TestScoringConfigRejectsNonIncreasingThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Tiers[2].MinScore = cfg.Tiers[1].MinScore
	if err := cfg.Validate(); err == nil {
		t.Fatalf("неубывающие пороги должны отклоняться")
	}
}

func TestScoringConfigRejectsInconsistentTierOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Tiers[3].Tier, cfg.Tiers[4].Tier = cfg.Tiers[4].Tier, cfg.Tiers[3].Tier
	if err := cfg.Validate(); err == nil {
		t.Fatalf("порядок таблицы должен совпадать с порядком сравнения уровней")
	}
}

func TestScoringConfigExpired(t *testing.T) {
	cfg := validConfig()
	if cfg.Expired(time.Now()) {
		t.Fatalf("снимок без срока не истекает")
	}
	cfg.ExpiresAt = time.Now().Add(-time.Minute)
	if !cfg.Expired(time.Now()) {
		t.Fatalf("снимок с прошедшим сроком должен истечь")
	}
}
