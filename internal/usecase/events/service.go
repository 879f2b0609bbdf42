package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
	"dating-trust-engine/internal/usecase/burst"
)

// Service применяет входящие поведенческие события к накопителям
// счётчиков. События разных пользователей независимы; события одного
// пользователя сериализуются на уровне строки хранилища.
type Service struct {
	metricsRepo domain.MetricsRepo
	reputation  domain.ReputationRepo
	reports     domain.ReportRepo
	audit       domain.AuditRepo
	config      domain.ConfigProvider
	log         zerolog.Logger
	now         func() time.Time
}

// NewService создаёт обработчик событий.
func NewService(metricsRepo domain.MetricsRepo, reputation domain.ReputationRepo, reports domain.ReportRepo, audit domain.AuditRepo, config domain.ConfigProvider, logger zerolog.Logger) *Service {
	return &Service{
		metricsRepo: metricsRepo,
		reputation:  reputation,
		reports:     reports,
		audit:       audit,
		config:      config,
		log:         logger,
		now:         time.Now,
	}
}

// Apply обрабатывает одно событие.
func (s *Service) Apply(ctx context.Context, ev domain.BehaviorEvent) error {
	at := ev.OccurredAt
	if at.IsZero() {
		at = s.now()
	}

	var err error
	switch ev.Type {
	case domain.EventMessageSent:
		err = s.applyMessageSent(ctx, ev, at)
	case domain.EventConversationStarted:
		err = s.metricsRepo.RecordConversationStarted(ctx, ev.UserID)
	case domain.EventUserBlocked:
		err = s.metricsRepo.RecordBlockReceived(ctx, ev.UserID)
	case domain.EventUserReported:
		err = s.applyUserReported(ctx, ev, at)
	case domain.EventIdentityVerified:
		err = s.metricsRepo.SetIdentityVerified(ctx, ev.UserID, ev.Approved)
	case domain.EventProfileUpdated:
		err = s.metricsRepo.SetProfileCompletion(ctx, ev.UserID, ev.ProfileCompletion)
	default:
		return fmt.Errorf("неизвестный тип события %q", ev.Type)
	}
	if err != nil {
		metrics.EventErrors.Inc()
		return fmt.Errorf("событие %s: %w", ev.Type, err)
	}
	metrics.IncEventProcessed(string(ev.Type))
	return nil
}

// applyMessageSent фиксирует отправку и синхронно прогоняет детектор
// всплесков по обновлённому списку отметок.
func (s *Service) applyMessageSent(ctx context.Context, ev domain.BehaviorEvent, at time.Time) error {
	cfg, err := s.config.Scoring(ctx)
	if err != nil {
		return fmt.Errorf("конфигурация скоринга: %w", err)
	}
	detector := burst.NewDetector(cfg.Burst)
	day := domain.DayKey(at, cfg.Location)

	m, wasReply, err := s.metricsRepo.RecordMessageSent(ctx, ev.UserID, at, ev.MessageLength, day, detector.KeepWithin())
	if err != nil {
		return fmt.Errorf("фиксация отправки: %w", err)
	}

	if res := detector.Check(m.RecentSendTimestamps, at); res.Bursting {
		if err := s.metricsRepo.MarkBurst(ctx, ev.UserID, at); err != nil {
			return fmt.Errorf("фиксация всплеска: %w", err)
		}
		metrics.IncBurstFlag()
		userID := ev.UserID
		_ = s.audit.RecordAudit(ctx, domain.AuditEntry{
			ID:     uuid.NewString(),
			Event:  domain.AuditEventBurstFlagged,
			UserID: &userID,
			Metadata: map[string]any{
				"in_window": res.InWindow,
			},
			OccurredAt: at,
		})
		s.log.Warn().Int64("user_id", ev.UserID).Int("in_window", res.InWindow).Msg("events: всплеск отправки сообщений")
	}

	if ev.PeerID != 0 {
		if err := s.metricsRepo.RecordMessageReceived(ctx, ev.PeerID, at); err != nil {
			return fmt.Errorf("фиксация получения: %w", err)
		}
		if wasReply {
			if err := s.metricsRepo.RecordConversationGotReply(ctx, ev.PeerID); err != nil {
				return fmt.Errorf("фиксация ответа в диалоге: %w", err)
			}
		}
	}
	return nil
}

// applyUserReported создаёт запись жалобы и увеличивает счётчик.
// ev.UserID — объект жалобы, ev.PeerID — жалобщик.
func (s *Service) applyUserReported(ctx context.Context, ev domain.BehaviorEvent, at time.Time) error {
	reason := ev.Reason
	if !domain.ValidReportReason(reason) {
		reason = domain.ReportReasonOther
	}

	reporterTier := domain.TierNew
	if ev.PeerID != 0 {
		if rep, err := s.reputation.GetReputation(ctx, ev.PeerID); err == nil {
			reporterTier = rep.Tier
		}
	}

	report := domain.UserReport{
		ID:             uuid.NewString(),
		ReporterID:     ev.PeerID,
		ReportedID:     ev.UserID,
		ReporterTier:   reporterTier,
		Reason:         reason,
		Comment:        ev.Comment,
		ConversationID: ev.ConversationID,
		Status:         domain.ReportStatusPending,
		CreatedAt:      at,
	}
	if _, err := s.reports.CreateReport(ctx, report); err != nil {
		return fmt.Errorf("создание жалобы: %w", err)
	}
	return s.metricsRepo.RecordReportReceived(ctx, ev.UserID)
}
