package recalc

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/usecase/score"
)

type stubReputationRepo struct {
	reps       map[int64]domain.ReputationData
	saveCalls  int
	saveDenied bool
}

func newStubReputationRepo() *stubReputationRepo {
	return &stubReputationRepo{reps: make(map[int64]domain.ReputationData)}
}

func (s *stubReputationRepo) GetReputation(_ context.Context, userID int64) (domain.ReputationData, error) {
	rep, ok := s.reps[userID]
	if !ok {
		return domain.ReputationData{}, domain.ErrReputationNotFound
	}
	return rep, nil
}

func (s *stubReputationRepo) GetOrCreateReputation(_ context.Context, userID int64, now time.Time) (domain.ReputationData, error) {
	if rep, ok := s.reps[userID]; ok {
		return rep, nil
	}
	rep := domain.NewReputation(userID, now)
	s.reps[userID] = rep
	return rep, nil
}

func (s *stubReputationRepo) ReserveHigherTierConversation(context.Context, int64, int, string) (bool, int, error) {
	return false, 0, nil
}

func (s *stubReputationRepo) SaveRecalc(_ context.Context, rep domain.ReputationData) (bool, error) {
	s.saveCalls++
	if s.saveDenied {
		return false, nil
	}
	s.reps[rep.UserID] = rep
	return true, nil
}

func (s *stubReputationRepo) ListDueForRecalc(_ context.Context, today string, limit int) ([]int64, error) {
	var ids []int64
	for id, rep := range s.reps {
		if rep.LastCalculatedDay != today {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type stubMetricsRepo struct {
	metrics map[int64]domain.MessageMetrics
}

func (s *stubMetricsRepo) GetMetrics(_ context.Context, userID int64) (domain.MessageMetrics, error) {
	m, ok := s.metrics[userID]
	if !ok {
		return domain.MessageMetrics{}, domain.ErrMetricsNotFound
	}
	return m, nil
}

func (s *stubMetricsRepo) RecordMessageSent(context.Context, int64, time.Time, int, string, time.Duration) (domain.MessageMetrics, bool, error) {
	return domain.MessageMetrics{}, false, nil
}
func (s *stubMetricsRepo) RecordMessageReceived(context.Context, int64, time.Time) error { return nil }
func (s *stubMetricsRepo) RecordConversationStarted(context.Context, int64) error        { return nil }
func (s *stubMetricsRepo) RecordConversationGotReply(context.Context, int64) error       { return nil }
func (s *stubMetricsRepo) RecordBlockReceived(context.Context, int64) error              { return nil }
func (s *stubMetricsRepo) RecordReportReceived(context.Context, int64) error             { return nil }
func (s *stubMetricsRepo) SetIdentityVerified(context.Context, int64, bool) error        { return nil }
func (s *stubMetricsRepo) SetProfileCompletion(context.Context, int64, float64) error    { return nil }
func (s *stubMetricsRepo) MarkBurst(context.Context, int64, time.Time) error             { return nil }

type stubAudit struct {
	entries []domain.AuditEntry
}

func (s *stubAudit) RecordAudit(_ context.Context, entry domain.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubConfig struct {
	cfg domain.ScoringConfig
}

func (s *stubConfig) Scoring(context.Context) (domain.ScoringConfig, error) {
	return s.cfg, nil
}

// lockedCache имитирует чужой межпроцессный замок: fn никогда не
// запускается, Once сообщает о пропуске.
type lockedCache struct {
	onceCalls int
}

func (c *lockedCache) Once(string, time.Duration, func() error) (bool, error) {
	c.onceCalls++
	return false, nil
}

func testConfig() domain.ScoringConfig {
	return domain.ScoringConfig{
		Weights:         domain.DefaultWeights(),
		Decay:           domain.DecayConfig{DailyDecayRate: 0.05, RecoveryRate: 0.03, MaxDecay: 0.3, TrendEpsilon: 0.01},
		Burst:           domain.BurstConfig{Window: time.Minute, MaxMessages: 5, PenaltyDuration: time.Hour},
		Tiers:           domain.DefaultTierTable(),
		MaxDaysForBonus: 90,
		Location:        time.UTC,
	}
}

func newTestService(repo *stubReputationRepo, metricsRepo *stubMetricsRepo, audit *stubAudit, now time.Time) *Service {
	svc := NewService(repo, metricsRepo, audit, &stubConfig{cfg: testConfig()}, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestRunDailyCreatesReputation(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{}}
	svc := newTestService(repo, metricsRepo, &stubAudit{}, now)

	ran, err := svc.RunDaily(context.Background(), 7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !ran {
		t.Fatalf("первый пересчёт за день должен выполниться")
	}
	rep, ok := repo.reps[7]
	if !ok {
		t.Fatalf("запись репутации должна создаться")
	}
	if rep.LastCalculatedDay != "2024-04-01" {
		t.Fatalf("день пересчёта = %q, want 2024-04-01", rep.LastCalculatedDay)
	}
	if rep.Score < 0 || rep.Score > score.MaxScore {
		t.Fatalf("балл %d вне [0,1000]", rep.Score)
	}
}

func TestRunDailyIdempotentPerDay(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{}}
	svc := newTestService(repo, metricsRepo, &stubAudit{}, now)

	if _, err := svc.RunDaily(context.Background(), 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	after := repo.reps[7]
	calls := repo.saveCalls

	ran, err := svc.RunDaily(context.Background(), 7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if ran {
		t.Fatalf("повторный запуск в тот же день должен сообщать о пропуске")
	}
	if repo.saveCalls != calls {
		t.Fatalf("повторный запуск в тот же день не должен писать в хранилище")
	}
	if repo.reps[7] != after {
		t.Fatalf("повторный запуск не должен менять запись")
	}
}

func TestRunDailyAppliesDecayOnWorsening(t *testing.T) {
	now := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	prev := domain.ReputationData{
		UserID:            7,
		Tier:              domain.TierTrusted,
		Score:             700,
		LastCalculatedDay: "2024-04-01",
		CreatedAt:         now.AddDate(0, -6, 0),
		TierChangedAt:     now.AddDate(0, -1, 0),
		Signals:           domain.ReputationSignals{ResponseRate: 0.8, ConversationQuality: 0.7},
	}
	repo.reps[7] = prev

	worsened := domain.MessageMetrics{
		Received:                 100,
		Replied:                  80,
		ConversationsStarted:     20,
		ConversationsWithReplies: 14,
		MessageCount:             100,
		TotalMessageLength:       8000,
		ReportsReceived:          10,
		BlocksReceived:           6,
		ProfileCompletion:        90,
	}
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{7: worsened}}
	svc := newTestService(repo, metricsRepo, &stubAudit{}, now)

	if _, err := svc.RunDaily(context.Background(), 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	cfg := testConfig()
	signals := score.BuildSignals(score.SignalInputs{Metrics: worsened, HasMetrics: true, AccountCreatedAt: prev.CreatedAt}, now, cfg.Burst)
	raw := score.Compute(signals, cfg.Weights, cfg.MaxDaysForBonus)
	saved := repo.reps[7]
	if saved.Score >= raw {
		t.Fatalf("ухудшение тренда должно снизить балл ниже свежего расчёта: %d >= %d", saved.Score, raw)
	}
	if saved.LastCalculatedDay != "2024-04-02" {
		t.Fatalf("день пересчёта должен обновиться")
	}
}

func TestRunDailyStampsTierChange(t *testing.T) {
	now := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	oldStamp := now.AddDate(0, -1, 0)
	repo.reps[7] = domain.ReputationData{
		UserID:            7,
		Tier:              domain.TierNew,
		Score:             0,
		LastCalculatedDay: "2024-04-01",
		CreatedAt:         now.AddDate(-1, 0, 0),
		TierChangedAt:     oldStamp,
	}
	strong := domain.MessageMetrics{
		Received:                 200,
		Replied:                  190,
		ConversationsStarted:     50,
		ConversationsWithReplies: 45,
		MessageCount:             400,
		TotalMessageLength:       60000,
		ProfileCompletion:        100,
		IdentityVerified:         true,
	}
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{7: strong}}
	audit := &stubAudit{}
	svc := newTestService(repo, metricsRepo, audit, now)

	if _, err := svc.RunDaily(context.Background(), 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	saved := repo.reps[7]
	if saved.Tier == domain.TierNew {
		t.Fatalf("сильные сигналы должны поднять уровень")
	}
	if !saved.TierChangedAt.Equal(now) {
		t.Fatalf("смена уровня должна проставить отметку времени")
	}
	if saved.DailyHigherTierConversationLimit == 0 {
		t.Fatalf("дневной лимит должен пересчитаться из таблицы уровней")
	}

	foundTierChange := false
	for _, entry := range audit.entries {
		if entry.Event == domain.AuditEventTierChanged {
			foundTierChange = true
		}
	}
	if !foundTierChange {
		t.Fatalf("смена уровня должна попасть в аудит")
	}
}

func TestRunDailyLostRaceIsSilent(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	repo.saveDenied = true
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{}}
	svc := newTestService(repo, metricsRepo, &stubAudit{}, now)

	if _, err := svc.RunDaily(context.Background(), 7); err != nil {
		t.Fatalf("проигранная гонка условной записи — не ошибка: %v", err)
	}
}

func TestRunBatchProcessesDueUsers(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	repo.reps[1] = domain.ReputationData{UserID: 1, Tier: domain.TierNew, CreatedAt: now.AddDate(0, 0, -5)}
	repo.reps[2] = domain.ReputationData{UserID: 2, Tier: domain.TierNew, CreatedAt: now.AddDate(0, 0, -5), LastCalculatedDay: "2024-04-01"}
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{}}
	svc := newTestService(repo, metricsRepo, &stubAudit{}, now)

	processed, err := svc.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if processed != 1 {
		t.Fatalf("обработан должен быть только пользователь без пересчёта за сегодня, получили %d", processed)
	}
	if repo.reps[1].LastCalculatedDay != "2024-04-01" {
		t.Fatalf("пользователь 1 должен быть пересчитан")
	}
}

func TestRunBatchDoesNotCountLockedUsers(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubReputationRepo()
	repo.reps[1] = domain.ReputationData{UserID: 1, Tier: domain.TierNew, CreatedAt: now.AddDate(0, 0, -5)}
	metricsRepo := &stubMetricsRepo{metrics: map[int64]domain.MessageMetrics{}}
	lock := &lockedCache{}
	svc := NewService(repo, metricsRepo, &stubAudit{}, &stubConfig{cfg: testConfig()}, lock, zerolog.Nop())
	svc.now = func() time.Time { return now }

	// Замок чужого процесса: три пакета подряд не должны ни пересчитать
	// пользователя, ни отчитаться о прогрессе — иначе дренирующий цикл
	// планировщика никогда не выйдет.
	for i := 0; i < 3; i++ {
		processed, err := svc.RunBatch(context.Background(), 10)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if processed != 0 {
			t.Fatalf("пропуск из-за замка не считается обработкой, получили %d", processed)
		}
	}
	if repo.reps[1].LastCalculatedDay != "" {
		t.Fatalf("под чужим замком день пересчёта не должен меняться")
	}
	if lock.onceCalls != 3 {
		t.Fatalf("каждый пакет должен пытаться взять замок один раз, получили %d", lock.onceCalls)
	}
}
