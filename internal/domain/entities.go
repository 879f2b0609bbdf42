package domain

import "time"

// DayKeyLayout — формат календарного ключа дня (в опорном часовом поясе).
const DayKeyLayout = "2006-01-02"

// DayKey возвращает календарный ключ дня для момента времени.
// Все сервисы используют один опорный часовой пояс, чтобы распределённые
// вызовы не расходились в понимании «сегодня».
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayKeyLayout)
}

// ReputationSignals — нормализованные поведенческие сигналы пользователя.
// Все коэффициенты зажаты в [0,1] независимо от исходных счётчиков:
// деление на ноль даёт 0, а не NaN.
type ReputationSignals struct {
	ProfileCompletion   float64 `json:"profile_completion"` // [0,100]
	IdentityVerified    bool    `json:"identity_verified"`
	AccountAgeDays      int     `json:"account_age_days"`
	ResponseRate        float64 `json:"response_rate"`
	ConversationQuality float64 `json:"conversation_quality"`
	BlockRatio          float64 `json:"block_ratio"`
	ReportRatio         float64 `json:"report_ratio"`
	GhostRate           float64 `json:"ghost_rate"`
	BurstScore          float64 `json:"burst_score"`
}

// NegativeLoad возвращает суммарную негативную нагрузку сигналов.
// Используется для сравнения трендов день к дню.
func (s ReputationSignals) NegativeLoad() float64 {
	return s.BlockRatio + s.ReportRatio + s.GhostRate + s.BurstScore
}

// ReputationData — долговечная запись репутации, одна на пользователя.
// Мутируется только движком; score никогда не показывается пользователям.
type ReputationData struct {
	UserID           int64
	Tier             Tier
	Score            int
	LastCalculatedAt time.Time
	// LastCalculatedDay — ключ дня последнего пересчёта; защита от
	// двойного применения decay за один день.
	LastCalculatedDay string
	TierChangedAt     time.Time
	CreatedAt         time.Time

	DailyHigherTierConversationLimit int
	HigherTierConversationsToday     int
	LastConversationDate             string

	Signals ReputationSignals
}

// NewReputation создаёт запись с начальным уровнем.
func NewReputation(userID int64, now time.Time) ReputationData {
	return ReputationData{
		UserID:        userID,
		Tier:          TierNew,
		Score:         0,
		TierChangedAt: now,
		CreatedAt:     now,
	}
}

// StartDay сбрасывает дневной счётчик при смене календарного дня.
// Возвращает true, если сброс произошёл. Вызывается внутри транзакции
// хранилища до любой проверки лимита.
func (r *ReputationData) StartDay(today string) bool {
	if r.LastConversationDate == today {
		return false
	}
	r.HigherTierConversationsToday = 0
	r.LastConversationDate = today
	return true
}

// TryReserveHigherTier пытается зарезервировать диалог с пользователем
// более высокого уровня. Лимит -1 означает отсутствие ограничений:
// разрешаем без инкремента. При отказе счётчик не меняется.
func (r *ReputationData) TryReserveHigherTier() bool {
	if r.DailyHigherTierConversationLimit == UnlimitedDailyConversations {
		return true
	}
	if r.HigherTierConversationsToday >= r.DailyHigherTierConversationLimit {
		return false
	}
	r.HigherTierConversationsToday++
	return true
}

// MessageMetrics — накопитель сырых поведенческих счётчиков.
// Мутируется обработчиками событий, калькулятор сигналов читает его
// как есть.
type MessageMetrics struct {
	UserID                   int64
	Received                 int
	Replied                  int
	ConversationsStarted     int
	ConversationsWithReplies int
	TotalMessageLength       int64
	MessageCount             int
	SentToday                int
	LastSentDate             string
	// RecentSendTimestamps — ограниченный список последних отправок,
	// новые в конце. Обрезается до окна детектора на каждой отправке.
	RecentSendTimestamps []time.Time
	PendingResponses     int
	LastReceivedAt       *time.Time
	// LastBurstAt — момент последнего зафиксированного всплеска;
	// штраф действует ещё PenaltyDuration после него.
	LastBurstAt *time.Time

	BlocksReceived  int
	ReportsReceived int

	ProfileCompletion float64
	IdentityVerified  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReportReason — закрытый перечень причин жалобы.
type ReportReason string

const (
	ReportReasonFakeProfile   ReportReason = "fake_profile"
	ReportReasonHarassment    ReportReason = "harassment"
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonInappropriate ReportReason = "inappropriate_content"
	ReportReasonScam          ReportReason = "scam"
	ReportReasonOther         ReportReason = "other"
)

// ValidReportReason проверяет, входит ли причина в перечень.
func ValidReportReason(r ReportReason) bool {
	switch r {
	case ReportReasonFakeProfile, ReportReasonHarassment, ReportReasonSpam,
		ReportReasonInappropriate, ReportReasonScam, ReportReasonOther:
		return true
	}
	return false
}

// ReportStatus — статус обработки жалобы.
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusReviewed    ReportStatus = "reviewed"
	ReportStatusDismissed   ReportStatus = "dismissed"
	ReportStatusActionTaken ReportStatus = "action_taken"
)

// UserReport — неизменяемая запись жалобы на пользователя.
type UserReport struct {
	ID             string
	ReporterID     int64
	ReportedID     int64
	ReporterTier   Tier
	Reason         ReportReason
	Comment        string
	ConversationID string
	Status         ReportStatus
	CreatedAt      time.Time
	ReviewedAt     *time.Time
}

// DenialReason — причина отказа шлюза диалогов.
type DenialReason string

// DenialDailyHigherTierLimit — дневной лимит диалогов с более высоким
// уровнем исчерпан.
const DenialDailyHigherTierLimit DenialReason = "daily_higher_tier_limit_reached"

// GateDecision — результат проверки на старт нового диалога.
type GateDecision struct {
	Allowed       bool         `json:"allowed"`
	Reason        DenialReason `json:"reason,omitempty"`
	SenderTier    Tier         `json:"sender_tier"`
	RecipientTier Tier         `json:"recipient_tier"`
	UsedToday     int          `json:"used_today"`
	Limit         int          `json:"limit"`
}

// ReputationView — данные репутации, отдаваемые наружу. Сырой score
// намеренно отсутствует.
type ReputationView struct {
	UserID                           int64     `json:"user_id"`
	Tier                             Tier      `json:"tier"`
	DailyHigherTierConversationLimit int       `json:"daily_higher_tier_conversation_limit"`
	HigherTierConversationsToday     int       `json:"higher_tier_conversations_today"`
	TierChangedAt                    time.Time `json:"tier_changed_at"`
}

// View строит наружное представление записи репутации.
func (r ReputationData) View() ReputationView {
	return ReputationView{
		UserID:                           r.UserID,
		Tier:                             r.Tier,
		DailyHigherTierConversationLimit: r.DailyHigherTierConversationLimit,
		HigherTierConversationsToday:     r.HigherTierConversationsToday,
		TierChangedAt:                    r.TierChangedAt,
	}
}
