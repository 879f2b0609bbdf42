package domain

import (
	"testing"
	"time"
)

func TestStartDayResetsCounterOncePerBoundary(t *testing.T) {
	rep := ReputationData{
		HigherTierConversationsToday: 3,
		LastConversationDate:         "2024-01-01",
	}

	if !rep.StartDay("2024-01-02") {
		t.Fatalf("ожидали сброс при смене дня")
	}
	if rep.HigherTierConversationsToday != 0 {
		t.Fatalf("счётчик должен обнулиться, получили %d", rep.HigherTierConversationsToday)
	}
	if rep.LastConversationDate != "2024-01-02" {
		t.Fatalf("дата должна обновиться, получили %q", rep.LastConversationDate)
	}

	rep.HigherTierConversationsToday = 2
	if rep.StartDay("2024-01-02") {
		t.Fatalf("повторный вызов в тот же день не должен сбрасывать")
	}
	if rep.HigherTierConversationsToday != 2 {
		t.Fatalf("счётчик не должен меняться, получили %d", rep.HigherTierConversationsToday)
	}
}

func TestTryReserveHigherTier(t *testing.T) {
	rep := ReputationData{DailyHigherTierConversationLimit: 1}
	if !rep.TryReserveHigherTier() {
		t.Fatalf("первая попытка должна пройти")
	}
	if rep.HigherTierConversationsToday != 1 {
		t.Fatalf("счётчик = %d, want 1", rep.HigherTierConversationsToday)
	}
	if rep.TryReserveHigherTier() {
		t.Fatalf("вторая попытка должна быть отклонена")
	}
	if rep.HigherTierConversationsToday != 1 {
		t.Fatalf("отказ не должен менять счётчик, получили %d", rep.HigherTierConversationsToday)
	}
}

func TestTryReserveHigherTierUnlimited(t *testing.T) {
	rep := ReputationData{DailyHigherTierConversationLimit: UnlimitedDailyConversations}
	for i := 0; i < 100; i++ {
		if !rep.TryReserveHigherTier() {
			t.Fatalf("безлимитный уровень не должен получать отказ")
		}
	}
	if rep.HigherTierConversationsToday != 0 {
		t.Fatalf("безлимитный уровень не инкрементирует счётчик, получили %d", rep.HigherTierConversationsToday)
	}
}

func TestDayKeyUsesReferenceTimezone(t *testing.T) {
	loc := time.FixedZone("ref", -5*3600)
	// 02:00 UTC — ещё предыдущий день в поясе -05:00.
	moment := time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC)
	if got := DayKey(moment, loc); got != "2024-06-09" {
		t.Fatalf("DayKey = %q, want 2024-06-09", got)
	}
	if got := DayKey(moment, nil); got != "2024-06-10" {
		t.Fatalf("nil location должен трактоваться как UTC, получили %q", got)
	}
}
