package domain

import (
	"context"
	"time"
)

// BehaviorEventType описывает вид входящего поведенческого события.
type BehaviorEventType string

const (
	// EventMessageSent — пользователь отправил сообщение в диалоге.
	EventMessageSent BehaviorEventType = "message_sent"
	// EventConversationStarted — создан новый диалог (после прохождения шлюза).
	EventConversationStarted BehaviorEventType = "conversation_started"
	// EventUserBlocked — пользователя заблокировали.
	EventUserBlocked BehaviorEventType = "user_blocked"
	// EventUserReported — на пользователя подали жалобу.
	EventUserReported BehaviorEventType = "user_reported"
	// EventIdentityVerified — внешняя проверка личности завершилась.
	EventIdentityVerified BehaviorEventType = "identity_verified"
	// EventProfileUpdated — пользователь обновил анкету.
	EventProfileUpdated BehaviorEventType = "profile_updated"
)

// BehaviorEvent — событие от внешних обработчиков, питающее сигналы.
// UserID — субъект события: отправитель для message_sent и
// conversation_started, заблокированный для user_blocked, объект жалобы
// для user_reported.
type BehaviorEvent struct {
	ID                string            `json:"event_id,omitempty"`
	Type              BehaviorEventType `json:"type"`
	UserID            int64             `json:"user_id"`
	PeerID            int64             `json:"peer_id,omitempty"`
	ConversationID    string            `json:"conversation_id,omitempty"`
	MessageLength     int               `json:"message_length,omitempty"`
	Reason            ReportReason      `json:"reason,omitempty"`
	Comment           string            `json:"comment,omitempty"`
	Approved          bool              `json:"approved,omitempty"`
	ProfileCompletion float64           `json:"profile_completion,omitempty"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// EventQueue описывает очередь поведенческих событий.
type EventQueue interface {
	Enqueue(ctx context.Context, event BehaviorEvent) error
	Pop(ctx context.Context) (BehaviorEvent, error)
}

// AuditEvent — вид записи аудита движка.
type AuditEvent string

const (
	AuditEventRecalculated AuditEvent = "reputation_recalculated"
	AuditEventTierChanged  AuditEvent = "tier_changed"
	AuditEventGateDenied   AuditEvent = "gate_denied"
	AuditEventBurstFlagged AuditEvent = "burst_flagged"
)

// AuditEntry — запись аудита: снимки сигналов, смены уровней, отказы шлюза.
type AuditEntry struct {
	ID         string
	Event      AuditEvent
	UserID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}
