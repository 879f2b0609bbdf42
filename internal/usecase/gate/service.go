package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
)

// Service — шлюз старта диалогов. Применяется только к созданию нового
// диалога: сообщения внутри существующего треда им не ограничиваются.
type Service struct {
	reputation domain.ReputationRepo
	audit      domain.AuditRepo
	config     domain.ConfigProvider
	now        func() time.Time
}

// NewService создаёт шлюз.
func NewService(reputation domain.ReputationRepo, audit domain.AuditRepo, config domain.ConfigProvider) *Service {
	return &Service{reputation: reputation, audit: audit, config: config, now: time.Now}
}

// CanStartConversation решает, можно ли отправителю начать новый диалог
// с получателем. Получатель того же или более низкого уровня разрешён
// всегда; строго более высокий уровень проходит через дневной счётчик.
// Ошибка хранилища транзиентна: вызывающий повторяет всю проверку
// целиком, повтор без начатого диалога счётчик не задваивает.
func (s *Service) CanStartConversation(ctx context.Context, senderID, recipientID int64) (domain.GateDecision, error) {
	cfg, err := s.config.Scoring(ctx)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("конфигурация скоринга: %w", err)
	}
	now := s.now()

	sender, err := s.reputation.GetOrCreateReputation(ctx, senderID, now)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("репутация отправителя: %w", err)
	}
	recipient, err := s.reputation.GetOrCreateReputation(ctx, recipientID, now)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("репутация получателя: %w", err)
	}

	limit := cfg.Tiers.DailyLimitFor(sender.Tier)
	decision := domain.GateDecision{
		SenderTier:    sender.Tier,
		RecipientTier: recipient.Tier,
		UsedToday:     sender.HigherTierConversationsToday,
		Limit:         limit,
	}

	if domain.CompareTiers(recipient.Tier, sender.Tier) <= 0 {
		decision.Allowed = true
		metrics.IncGateDecision("allow", "same_or_lower_tier")
		return decision, nil
	}

	if limit == domain.UnlimitedDailyConversations {
		decision.Allowed = true
		metrics.IncGateDecision("allow", "unlimited")
		return decision, nil
	}

	today := domain.DayKey(now, cfg.Location)
	allowed, usedToday, err := s.reputation.ReserveHigherTierConversation(ctx, senderID, limit, today)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("резервирование дневного лимита: %w", err)
	}
	decision.UsedToday = usedToday
	if !allowed {
		decision.Reason = domain.DenialDailyHigherTierLimit
		metrics.IncGateDecision("deny", string(domain.DenialDailyHigherTierLimit))
		userID := senderID
		_ = s.audit.RecordAudit(ctx, domain.AuditEntry{
			ID:     uuid.NewString(),
			Event:  domain.AuditEventGateDenied,
			UserID: &userID,
			Metadata: map[string]any{
				"recipient_id":   recipientID,
				"sender_tier":    sender.Tier,
				"recipient_tier": recipient.Tier,
				"used_today":     usedToday,
				"limit":          limit,
			},
			OccurredAt: now,
		})
		return decision, nil
	}

	decision.Allowed = true
	metrics.IncGateDecision("allow", "within_daily_limit")
	return decision, nil
}
