package domain

import (
	"context"
	"errors"
	"time"
)

// ErrReputationNotFound возвращается, если записи репутации нет.
var ErrReputationNotFound = errors.New("запись репутации не найдена")

// ErrMetricsNotFound возвращается, если накопителя метрик ещё нет.
// Для нового пользователя это не ошибка: сигналы считаются от нулевых
// значений по умолчанию.
var ErrMetricsNotFound = errors.New("метрики пользователя не найдены")

// ErrReportNotFound возвращается, если жалоба не найдена.
var ErrReportNotFound = errors.New("жалоба не найдена")

// ReputationRepo управляет записями репутации.
type ReputationRepo interface {
	GetReputation(ctx context.Context, userID int64) (ReputationData, error)
	// GetOrCreateReputation возвращает запись, создавая её с уровнем new
	// и нулевым баллом при первом обращении.
	GetOrCreateReputation(ctx context.Context, userID int64, now time.Time) (ReputationData, error)
	// ReserveHigherTierConversation атомарно выполняет сброс дневного
	// счётчика при смене дня и условный инкремент. Возвращает решение и
	// значение счётчика после операции. При отказе счётчик не меняется.
	ReserveHigherTierConversation(ctx context.Context, userID int64, limit int, today string) (allowed bool, usedToday int, err error)
	// SaveRecalc условно записывает результат пересчёта за день
	// rep.LastCalculatedDay. Возвращает false без ошибки, если пересчёт
	// за этот день уже зафиксирован другим процессом.
	SaveRecalc(ctx context.Context, rep ReputationData) (bool, error)
	// ListDueForRecalc возвращает пользователей, не пересчитанных за today.
	ListDueForRecalc(ctx context.Context, today string, limit int) ([]int64, error)
}

// MetricsRepo управляет накопителями поведенческих счётчиков. Все
// мутации атомарны на уровне строки пользователя.
type MetricsRepo interface {
	GetMetrics(ctx context.Context, userID int64) (MessageMetrics, error)
	// RecordMessageSent фиксирует отправку: счётчики, перенос дня для
	// sentToday, добавление отметки времени с обрезкой до keepWithin.
	// Если у отправителя были неотвеченные входящие, отправка считается
	// ответом (wasReply=true).
	RecordMessageSent(ctx context.Context, senderID int64, sentAt time.Time, length int, day string, keepWithin time.Duration) (metrics MessageMetrics, wasReply bool, err error)
	RecordMessageReceived(ctx context.Context, recipientID int64, at time.Time) error
	RecordConversationStarted(ctx context.Context, userID int64) error
	// RecordConversationGotReply отмечает, что один из начатых
	// пользователем диалогов получил ответ.
	RecordConversationGotReply(ctx context.Context, userID int64) error
	RecordBlockReceived(ctx context.Context, userID int64) error
	RecordReportReceived(ctx context.Context, userID int64) error
	SetIdentityVerified(ctx context.Context, userID int64, approved bool) error
	SetProfileCompletion(ctx context.Context, userID int64, completion float64) error
	// MarkBurst фиксирует момент всплеска; штраф действует ещё
	// PenaltyDuration после него.
	MarkBurst(ctx context.Context, userID int64, at time.Time) error
}

// ReportRepo управляет жалобами.
type ReportRepo interface {
	CreateReport(ctx context.Context, report UserReport) (UserReport, error)
	UpdateReportStatus(ctx context.Context, id string, status ReportStatus, reviewedAt time.Time) error
	ListReportsForUser(ctx context.Context, reportedID int64, limit, offset int) ([]UserReport, error)
}

// AuditRepo сохраняет записи аудита движка.
type AuditRepo interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
}

// ConfigProvider отдаёт действующий снимок конфигурации скоринга.
type ConfigProvider interface {
	Scoring(ctx context.Context) (ScoringConfig, error)
}

// Cache используется для одноразовых межпроцессных замков.
type Cache interface {
	// Once выполняет fn, если ключ ещё не занят. Возвращает, была ли
	// функция запущена: пропуск из-за чужого замка — не ошибка, но
	// вызывающий не должен считать работу выполненной.
	Once(key string, ttl time.Duration, fn func() error) (bool, error)
}
