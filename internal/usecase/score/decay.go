package score

import (
	"math"

	"dating-trust-engine/internal/domain"
)

// ApplyDecay корректирует предыдущий балл по тренду негативной нагрузки
// день к дню. Ухудшение снимает DailyDecayRate*previous, но не ниже
// (1-MaxDecay)*previous за один цикл; улучшение добавляет
// RecoveryRate*previous с потолком 1000. Изменение в пределах
// TrendEpsilon считается шумом и балл не трогает.
//
// Идемпотентность за календарный день обеспечивается вызывающей
// стороной: пересчёт пропускается, если за текущий день уже выполнен.
func ApplyDecay(prevScore int, prevLoad, curLoad float64, cfg domain.DecayConfig) int {
	switch {
	case curLoad > prevLoad+cfg.TrendEpsilon:
		adjusted := prevScore - int(math.Round(cfg.DailyDecayRate*float64(prevScore)))
		floor := int(math.Round((1 - cfg.MaxDecay) * float64(prevScore)))
		if adjusted < floor {
			adjusted = floor
		}
		if adjusted < 0 {
			adjusted = 0
		}
		return adjusted
	case curLoad < prevLoad-cfg.TrendEpsilon:
		adjusted := prevScore + int(math.Round(cfg.RecoveryRate*float64(prevScore)))
		if adjusted > MaxScore {
			adjusted = MaxScore
		}
		return adjusted
	default:
		return prevScore
	}
}
