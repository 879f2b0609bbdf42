package score

import (
	"time"

	"dating-trust-engine/internal/domain"
)

// Нейтральные базовые значения для пользователей без истории: новый
// аккаунт не должен стартовать с нулевой репутацией по позитивным
// сигналам (fail-open, а не fail-closed).
const (
	neutralResponseRate        = 0.5
	neutralConversationQuality = 0.5
)

// Качество диалогов: доля отвеченных диалогов весит больше, чем длина
// сообщений.
const (
	qualityReplyWeight  = 0.7
	qualityLengthWeight = 0.3
	qualityLengthNorm   = 100.0
)

// SignalInputs — сырьё для построения сигналов одного пользователя.
type SignalInputs struct {
	Metrics domain.MessageMetrics
	// HasMetrics=false означает, что накопителя ещё нет: берутся
	// значения по умолчанию, ошибки нет.
	HasMetrics       bool
	AccountCreatedAt time.Time
}

// BuildSignals приводит сырые счётчики к нормализованным сигналам.
// Все коэффициенты зажаты в [0,1]; деление на ноль даёт 0 для
// негативных сигналов и нейтральную базу для позитивных.
func BuildSignals(in SignalInputs, now time.Time, burst domain.BurstConfig) domain.ReputationSignals {
	signals := domain.ReputationSignals{
		ResponseRate:        neutralResponseRate,
		ConversationQuality: neutralConversationQuality,
		AccountAgeDays:      accountAgeDays(in.AccountCreatedAt, now),
	}
	if !in.HasMetrics {
		return signals
	}

	m := in.Metrics
	signals.ProfileCompletion = clamp(m.ProfileCompletion, 0, 100)
	signals.IdentityVerified = m.IdentityVerified

	if m.Received > 0 {
		signals.ResponseRate = ratio(m.Replied, m.Received)
	}
	if m.ConversationsStarted > 0 {
		replyShare := ratio(m.ConversationsWithReplies, m.ConversationsStarted)
		lengthFactor := 0.0
		if m.MessageCount > 0 {
			avgLen := float64(m.TotalMessageLength) / float64(m.MessageCount)
			lengthFactor = clamp(avgLen/qualityLengthNorm, 0, 1)
		}
		signals.ConversationQuality = clamp(qualityReplyWeight*replyShare+qualityLengthWeight*lengthFactor, 0, 1)
	}

	signals.BlockRatio = ratio(m.BlocksReceived, m.ConversationsStarted)
	signals.ReportRatio = ratio(m.ReportsReceived, m.ConversationsStarted)
	signals.GhostRate = ratio(m.PendingResponses, m.Received)
	signals.BurstScore = burstScore(m.LastBurstAt, now, burst.PenaltyDuration)
	return signals
}

// burstScore возвращает 1, пока действует штраф за всплеск. Штраф
// обновляется, а не накапливается: новый всплеск лишь сдвигает момент
// окончания.
func burstScore(lastBurstAt *time.Time, now time.Time, penalty time.Duration) float64 {
	if lastBurstAt == nil {
		return 0
	}
	if now.Sub(*lastBurstAt) <= penalty {
		return 1
	}
	return 0
}

func accountAgeDays(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt).Hours() / 24)
}

// ratio делит счётчики с защитой от нуля и зажимает результат в [0,1].
func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return clamp(float64(num)/float64(den), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
