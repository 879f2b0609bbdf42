package score

import (
	"math"

	"dating-trust-engine/internal/domain"
)

// MaxScore — верхняя граница внутреннего балла репутации.
const MaxScore = 1000

// Compute превращает сигналы во внутренний балл [0,1000].
// Позитивные сигналы вносят weight*value*1000, негативные —
// weight*(1-value)*1000 (меньше — лучше). Функция чистая и
// детерминированная: одинаковый вход даёт одинаковый балл.
func Compute(s domain.ReputationSignals, w domain.Weights, maxDaysForBonus int) int {
	verified := 0.0
	if s.IdentityVerified {
		verified = 1
	}
	age := 0.0
	if maxDaysForBonus > 0 {
		age = math.Min(1, float64(s.AccountAgeDays)/float64(maxDaysForBonus))
	}

	total := w.ProfileCompletion*clamp(s.ProfileCompletion/100, 0, 1) +
		w.IdentityVerified*verified +
		w.AccountAge*age +
		w.ResponseRate*clamp(s.ResponseRate, 0, 1) +
		w.ConversationQuality*clamp(s.ConversationQuality, 0, 1) +
		w.BlockRatio*(1-clamp(s.BlockRatio, 0, 1)) +
		w.ReportRatio*(1-clamp(s.ReportRatio, 0, 1)) +
		w.GhostRate*(1-clamp(s.GhostRate, 0, 1)) +
		w.BurstScore*(1-clamp(s.BurstScore, 0, 1))

	result := int(math.Round(total * MaxScore))
	if result < 0 {
		return 0
	}
	if result > MaxScore {
		return MaxScore
	}
	return result
}
