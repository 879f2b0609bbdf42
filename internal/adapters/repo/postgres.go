package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ReputationRepo = (*Postgres)(nil)
	_ domain.MetricsRepo    = (*Postgres)(nil)
	_ domain.ReportRepo     = (*Postgres)(nil)
	_ domain.AuditRepo      = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const reputationColumns = `user_id, tier, score, last_calculated_at, last_calculated_day, tier_changed_at, created_at, daily_higher_tier_limit, higher_tier_conversations_today, last_conversation_date, signals`

func scanReputation(row pgx.Row) (domain.ReputationData, error) {
	var (
		rep         domain.ReputationData
		calcAt      sql.NullTime
		calcDay     sql.NullString
		convDate    sql.NullString
		signalsJSON []byte
	)
	err := row.Scan(&rep.UserID, &rep.Tier, &rep.Score, &calcAt, &calcDay, &rep.TierChangedAt, &rep.CreatedAt,
		&rep.DailyHigherTierConversationLimit, &rep.HigherTierConversationsToday, &convDate, &signalsJSON)
	if err != nil {
		return domain.ReputationData{}, err
	}
	if calcAt.Valid {
		rep.LastCalculatedAt = calcAt.Time
	}
	if calcDay.Valid {
		rep.LastCalculatedDay = calcDay.String
	}
	if convDate.Valid {
		rep.LastConversationDate = convDate.String
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &rep.Signals); err != nil {
			return domain.ReputationData{}, fmt.Errorf("decode signals: %w", err)
		}
	}
	return rep, nil
}

// GetReputation возвращает запись репутации.
func (p *Postgres) GetReputation(ctx context.Context, userID int64) (domain.ReputationData, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rep, err := scanReputation(p.pool.QueryRow(ctx, `
SELECT `+reputationColumns+` FROM reputation WHERE user_id=$1
`, userID))
	metrics.ObserveStoreRequest("postgres", "reputation_get", "reputation", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReputationData{}, domain.ErrReputationNotFound
	}
	if err != nil {
		return domain.ReputationData{}, err
	}
	return rep, nil
}

// GetOrCreateReputation возвращает запись, создавая её при первом обращении.
func (p *Postgres) GetOrCreateReputation(ctx context.Context, userID int64, now time.Time) (domain.ReputationData, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	fresh := domain.NewReputation(userID, now)
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO reputation (user_id, tier, score, tier_changed_at, created_at, daily_higher_tier_limit, higher_tier_conversations_today)
VALUES ($1, $2, $3, $4, $5, $6, 0)
ON CONFLICT (user_id) DO NOTHING
`, fresh.UserID, fresh.Tier, fresh.Score, fresh.TierChangedAt, fresh.CreatedAt, fresh.DailyHigherTierConversationLimit)
	metrics.ObserveStoreRequest("postgres", "reputation_ensure", "reputation", start, err)
	if err != nil {
		return domain.ReputationData{}, err
	}
	return p.GetReputation(ctx, userID)
}

// ReserveHigherTierConversation атомарно сбрасывает дневной счётчик при
// смене дня и условно увеличивает его. При отказе счётчик не меняется.
func (p *Postgres) ReserveHigherTierConversation(ctx context.Context, userID int64, limit int, today string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveStoreRequest("postgres", "begin_tx", "reputation", start, err)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	var (
		usedToday int
		convDate  sql.NullString
	)
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT higher_tier_conversations_today, last_conversation_date
FROM reputation WHERE user_id=$1 FOR UPDATE
`, userID).Scan(&usedToday, &convDate)
	metrics.ObserveStoreRequest("postgres", "reputation_get_for_update", "reputation", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, domain.ErrReputationNotFound
	}
	if err != nil {
		return false, 0, err
	}

	if !convDate.Valid || convDate.String != today {
		usedToday = 0
	}

	allowed := limit == domain.UnlimitedDailyConversations || usedToday < limit
	newToday := usedToday
	if allowed && limit != domain.UnlimitedDailyConversations {
		newToday = usedToday + 1
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE reputation
SET higher_tier_conversations_today=$2, last_conversation_date=$3, daily_higher_tier_limit=$4
WHERE user_id=$1
`, userID, newToday, today, limit)
	metrics.ObserveStoreRequest("postgres", "reputation_reserve", "reputation", start, err)
	if err != nil {
		return false, 0, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveStoreRequest("postgres", "commit", "reputation", start, err)
	if err != nil {
		return false, 0, err
	}
	return allowed, newToday, nil
}

// SaveRecalc условно записывает результат пересчёта за день. Возвращает
// false, если пересчёт за этот день уже зафиксирован другим процессом.
func (p *Postgres) SaveRecalc(ctx context.Context, rep domain.ReputationData) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	signalsJSON, err := json.Marshal(rep.Signals)
	if err != nil {
		return false, fmt.Errorf("encode signals: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE reputation
SET tier=$2, score=$3, last_calculated_at=$4, last_calculated_day=$5, tier_changed_at=$6, daily_higher_tier_limit=$7, signals=$8
WHERE user_id=$1 AND (last_calculated_day IS NULL OR last_calculated_day <> $5)
`, rep.UserID, rep.Tier, rep.Score, rep.LastCalculatedAt, rep.LastCalculatedDay, rep.TierChangedAt,
		rep.DailyHigherTierConversationLimit, signalsJSON)
	metrics.ObserveStoreRequest("postgres", "reputation_save_recalc", "reputation", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListDueForRecalc возвращает пользователей, не пересчитанных за today.
func (p *Postgres) ListDueForRecalc(ctx context.Context, today string, limit int) ([]int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id FROM reputation
WHERE last_calculated_day IS NULL OR last_calculated_day <> $1
ORDER BY last_calculated_at NULLS FIRST
LIMIT $2
`, today, limit)
	metrics.ObserveStoreRequest("postgres", "reputation_list_due", "reputation", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const metricsColumns = `user_id, received, replied, conversations_started, conversations_with_replies, total_message_length, message_count, sent_today, last_sent_date, recent_send_timestamps, pending_responses, last_received_at, last_burst_at, blocks_received, reports_received, profile_completion, identity_verified, created_at, updated_at`

func scanMetrics(row pgx.Row) (domain.MessageMetrics, error) {
	var (
		m          domain.MessageMetrics
		sentDate   sql.NullString
		stampsJSON []byte
		receivedAt sql.NullTime
		burstAt    sql.NullTime
	)
	err := row.Scan(&m.UserID, &m.Received, &m.Replied, &m.ConversationsStarted, &m.ConversationsWithReplies,
		&m.TotalMessageLength, &m.MessageCount, &m.SentToday, &sentDate, &stampsJSON, &m.PendingResponses,
		&receivedAt, &burstAt, &m.BlocksReceived, &m.ReportsReceived, &m.ProfileCompletion, &m.IdentityVerified,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.MessageMetrics{}, err
	}
	if sentDate.Valid {
		m.LastSentDate = sentDate.String
	}
	if len(stampsJSON) > 0 {
		if err := json.Unmarshal(stampsJSON, &m.RecentSendTimestamps); err != nil {
			return domain.MessageMetrics{}, fmt.Errorf("decode timestamps: %w", err)
		}
	}
	if receivedAt.Valid {
		ts := receivedAt.Time
		m.LastReceivedAt = &ts
	}
	if burstAt.Valid {
		ts := burstAt.Time
		m.LastBurstAt = &ts
	}
	return m, nil
}

func (p *Postgres) ensureMetricsRow(ctx context.Context, tx pgx.Tx, userID int64) error {
	start := time.Now()
	_, err := tx.Exec(ctx, `
INSERT INTO message_metrics (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING
`, userID)
	metrics.ObserveStoreRequest("postgres", "metrics_ensure", "message_metrics", start, err)
	return err
}

// GetMetrics возвращает накопитель счётчиков пользователя.
func (p *Postgres) GetMetrics(ctx context.Context, userID int64) (domain.MessageMetrics, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	m, err := scanMetrics(p.pool.QueryRow(ctx, `
SELECT `+metricsColumns+` FROM message_metrics WHERE user_id=$1
`, userID))
	metrics.ObserveStoreRequest("postgres", "metrics_get", "message_metrics", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MessageMetrics{}, domain.ErrMetricsNotFound
	}
	if err != nil {
		return domain.MessageMetrics{}, err
	}
	return m, nil
}

// RecordMessageSent фиксирует отправку сообщения: счётчики, перенос дня,
// добавление отметки времени с обрезкой до keepWithin. Отправка при
// неотвеченных входящих засчитывается как ответ.
func (p *Postgres) RecordMessageSent(ctx context.Context, senderID int64, sentAt time.Time, length int, day string, keepWithin time.Duration) (domain.MessageMetrics, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveStoreRequest("postgres", "begin_tx", "message_metrics", start, err)
	if err != nil {
		return domain.MessageMetrics{}, false, err
	}
	defer tx.Rollback(ctx)

	if err := p.ensureMetricsRow(ctx, tx, senderID); err != nil {
		return domain.MessageMetrics{}, false, err
	}

	start = time.Now()
	m, err := scanMetrics(tx.QueryRow(ctx, `
SELECT `+metricsColumns+` FROM message_metrics WHERE user_id=$1 FOR UPDATE
`, senderID))
	metrics.ObserveStoreRequest("postgres", "metrics_get_for_update", "message_metrics", start, err)
	if err != nil {
		return domain.MessageMetrics{}, false, err
	}

	if m.LastSentDate != day {
		m.SentToday = 0
		m.LastSentDate = day
	}
	m.SentToday++
	m.MessageCount++
	m.TotalMessageLength += int64(length)

	cutoff := sentAt.Add(-keepWithin)
	kept := make([]time.Time, 0, len(m.RecentSendTimestamps)+1)
	for _, ts := range m.RecentSendTimestamps {
		if ts.Before(cutoff) {
			continue
		}
		kept = append(kept, ts)
	}
	m.RecentSendTimestamps = append(kept, sentAt)

	wasReply := m.PendingResponses > 0
	if wasReply {
		m.Replied++
		m.PendingResponses = 0
	}

	stampsJSON, err := json.Marshal(m.RecentSendTimestamps)
	if err != nil {
		return domain.MessageMetrics{}, false, fmt.Errorf("encode timestamps: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE message_metrics
SET sent_today=$2, last_sent_date=$3, message_count=$4, total_message_length=$5,
    recent_send_timestamps=$6, replied=$7, pending_responses=$8, updated_at=now()
WHERE user_id=$1
`, senderID, m.SentToday, m.LastSentDate, m.MessageCount, m.TotalMessageLength, stampsJSON, m.Replied, m.PendingResponses)
	metrics.ObserveStoreRequest("postgres", "metrics_record_sent", "message_metrics", start, err)
	if err != nil {
		return domain.MessageMetrics{}, false, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveStoreRequest("postgres", "commit", "message_metrics", start, err)
	if err != nil {
		return domain.MessageMetrics{}, false, err
	}
	return m, wasReply, nil
}

func (p *Postgres) bumpMetrics(ctx context.Context, userID int64, operation, set string, args ...any) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveStoreRequest("postgres", "begin_tx", "message_metrics", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := p.ensureMetricsRow(ctx, tx, userID); err != nil {
		return err
	}

	query := `UPDATE message_metrics SET ` + set + `, updated_at=now() WHERE user_id=$1`
	start = time.Now()
	_, err = tx.Exec(ctx, query, append([]any{userID}, args...)...)
	metrics.ObserveStoreRequest("postgres", operation, "message_metrics", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveStoreRequest("postgres", "commit", "message_metrics", start, err)
	return err
}

// RecordMessageReceived фиксирует входящее сообщение.
func (p *Postgres) RecordMessageReceived(ctx context.Context, recipientID int64, at time.Time) error {
	return p.bumpMetrics(ctx, recipientID, "metrics_record_received",
		`received=received+1, pending_responses=pending_responses+1, last_received_at=$2`, at)
}

// RecordConversationStarted фиксирует начатый пользователем диалог.
func (p *Postgres) RecordConversationStarted(ctx context.Context, userID int64) error {
	return p.bumpMetrics(ctx, userID, "metrics_record_conversation",
		`conversations_started=conversations_started+1`)
}

// RecordConversationGotReply отмечает ответ в начатом пользователем диалоге.
func (p *Postgres) RecordConversationGotReply(ctx context.Context, userID int64) error {
	return p.bumpMetrics(ctx, userID, "metrics_record_reply",
		`conversations_with_replies=conversations_with_replies+1`)
}

// RecordBlockReceived фиксирует блокировку пользователя.
func (p *Postgres) RecordBlockReceived(ctx context.Context, userID int64) error {
	return p.bumpMetrics(ctx, userID, "metrics_record_block", `blocks_received=blocks_received+1`)
}

// RecordReportReceived фиксирует жалобу на пользователя.
func (p *Postgres) RecordReportReceived(ctx context.Context, userID int64) error {
	return p.bumpMetrics(ctx, userID, "metrics_record_report", `reports_received=reports_received+1`)
}

// SetIdentityVerified сохраняет итог внешней проверки личности.
func (p *Postgres) SetIdentityVerified(ctx context.Context, userID int64, approved bool) error {
	return p.bumpMetrics(ctx, userID, "metrics_set_verified", `identity_verified=$2`, approved)
}

// SetProfileCompletion сохраняет заполненность анкеты.
func (p *Postgres) SetProfileCompletion(ctx context.Context, userID int64, completion float64) error {
	return p.bumpMetrics(ctx, userID, "metrics_set_profile", `profile_completion=$2`, completion)
}

// MarkBurst фиксирует момент всплеска отправки сообщений.
func (p *Postgres) MarkBurst(ctx context.Context, userID int64, at time.Time) error {
	return p.bumpMetrics(ctx, userID, "metrics_mark_burst", `last_burst_at=$2`, at)
}

// CreateReport сохраняет жалобу.
func (p *Postgres) CreateReport(ctx context.Context, report domain.UserReport) (domain.UserReport, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_reports (id, reporter_id, reported_id, reporter_tier, reason, comment, conversation_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, $9)
`, report.ID, report.ReporterID, report.ReportedID, report.ReporterTier, report.Reason, report.Comment,
		report.ConversationID, report.Status, report.CreatedAt)
	metrics.ObserveStoreRequest("postgres", "reports_insert", "user_reports", start, err)
	if err != nil {
		return domain.UserReport{}, err
	}
	return report, nil
}

// UpdateReportStatus меняет статус жалобы после разбора.
func (p *Postgres) UpdateReportStatus(ctx context.Context, id string, status domain.ReportStatus, reviewedAt time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE user_reports SET status=$2, reviewed_at=$3 WHERE id=$1
`, id, status, reviewedAt)
	metrics.ObserveStoreRequest("postgres", "reports_update_status", "user_reports", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// ListReportsForUser возвращает жалобы на пользователя, новые первыми.
func (p *Postgres) ListReportsForUser(ctx context.Context, reportedID int64, limit, offset int) ([]domain.UserReport, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, reporter_id, reported_id, reporter_tier, reason, COALESCE(comment,''), COALESCE(conversation_id,''), status, created_at, reviewed_at
FROM user_reports
WHERE reported_id=$1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, reportedID, limit, offset)
	metrics.ObserveStoreRequest("postgres", "reports_list", "user_reports", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.UserReport
	for rows.Next() {
		var (
			report     domain.UserReport
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(&report.ID, &report.ReporterID, &report.ReportedID, &report.ReporterTier,
			&report.Reason, &report.Comment, &report.ConversationID, &report.Status, &report.CreatedAt, &reviewedAt); err != nil {
			return nil, err
		}
		if reviewedAt.Valid {
			ts := reviewedAt.Time
			report.ReviewedAt = &ts
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// RecordAudit сохраняет запись аудита движка.
func (p *Postgres) RecordAudit(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Event == "" {
		return nil
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: *entry.UserID, Valid: true}
	}

	var payload []byte
	if entry.Metadata != nil {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO reputation_audit (id, event, user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, entry.ID, entry.Event, userID, payload, entry.OccurredAt)
	metrics.ObserveStoreRequest("postgres", "audit_insert", "reputation_audit", start, err)
	return err
}
