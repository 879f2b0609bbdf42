package score

import (
	"testing"

	"dating-trust-engine/internal/domain"
)

func decayConfig() domain.DecayConfig {
	return domain.DecayConfig{DailyDecayRate: 0.05, RecoveryRate: 0.03, MaxDecay: 0.30, TrendEpsilon: 0.01}
}

func TestApplyDecayWorsened(t *testing.T) {
	got := ApplyDecay(600, 0.1, 0.3, decayConfig())
	if got != 570 {
		t.Fatalf("ухудшение должно снять 5%%: got %d, want 570", got)
	}
}

func TestApplyDecayFloor(t *testing.T) {
	cfg := decayConfig()
	cfg.DailyDecayRate = 0.3
	cfg.MaxDecay = 0.3
	got := ApplyDecay(600, 0.1, 0.9, cfg)
	if got != 420 {
		t.Fatalf("decay ограничен полом (1-maxDecay)*prev: got %d, want 420", got)
	}
	cfg.DailyDecayRate = 0.25
	if got := ApplyDecay(600, 0.1, 0.9, cfg); got != 450 {
		t.Fatalf("обычный decay без срабатывания пола: got %d, want 450", got)
	}
}

func TestApplyDecayImproved(t *testing.T) {
	if got := ApplyDecay(600, 0.5, 0.2, decayConfig()); got != 618 {
		t.Fatalf("улучшение должно добавить 3%%: got %d, want 618", got)
	}
	if got := ApplyDecay(995, 0.5, 0.2, decayConfig()); got != MaxScore {
		t.Fatalf("recovery ограничен 1000: got %d", got)
	}
}

func TestApplyDecayNoiseWithinEpsilon(t *testing.T) {
	if got := ApplyDecay(600, 0.200, 0.205, decayConfig()); got != 600 {
		t.Fatalf("изменение в пределах epsilon не трогает балл: got %d", got)
	}
}

func TestApplyDecayZeroScore(t *testing.T) {
	if got := ApplyDecay(0, 0, 1, decayConfig()); got != 0 {
		t.Fatalf("нулевой балл остаётся нулевым: got %d", got)
	}
}
