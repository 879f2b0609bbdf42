package domain

import "testing"

func TestTierForScore(t *testing.T) {
	table := DefaultTierTable()
	tests := []struct {
		name  string
		score int
		want  Tier
	}{
		{name: "нулевой балл", score: 0, want: TierNew},
		{name: "ниже первого порога", score: 199, want: TierNew},
		{name: "ровно на пороге active", score: 200, want: TierActive},
		{name: "внутри active", score: 399, want: TierActive},
		{name: "ровно на пороге established", score: 400, want: TierEstablished},
		{name: "ровно на пороге trusted", score: 600, want: TierTrusted},
		{name: "ровно на пороге distinguished", score: 800, want: TierDistinguished},
		{name: "максимальный балл", score: 1000, want: TierDistinguished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.TierForScore(tt.score); got != tt.want {
				t.Fatalf("TierForScore(%d) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestCompareTiers(t *testing.T) {
	if CompareTiers(TierNew, TierTrusted) >= 0 {
		t.Fatalf("new должен быть ниже trusted")
	}
	if CompareTiers(TierDistinguished, TierTrusted) <= 0 {
		t.Fatalf("distinguished должен быть выше trusted")
	}
	if CompareTiers(TierActive, TierActive) != 0 {
		t.Fatalf("одинаковые уровни должны быть равны")
	}
	if CompareTiers("unknown", TierNew) != 0 {
		t.Fatalf("неизвестный уровень трактуется как самый низкий")
	}
}

func TestDailyLimitFor(t *testing.T) {
	table := DefaultTierTable()
	if got := table.DailyLimitFor(TierNew); got != 1 {
		t.Fatalf("лимит new = %d, want 1", got)
	}
	if got := table.DailyLimitFor(TierDistinguished); got != UnlimitedDailyConversations {
		t.Fatalf("distinguished должен быть без лимита, получили %d", got)
	}
	if got := table.DailyLimitFor("unknown"); got != 1 {
		t.Fatalf("неизвестный уровень получает план самого низкого, получили %d", got)
	}
}
