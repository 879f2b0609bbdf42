package domain

import "strings"

// Tier описывает уровень доверия пользователя.
type Tier string

const (
	TierNew           Tier = "new"
	TierActive        Tier = "active"
	TierEstablished   Tier = "established"
	TierTrusted       Tier = "trusted"
	TierDistinguished Tier = "distinguished"
)

// UnlimitedDailyConversations — сентинель «без дневного лимита».
const UnlimitedDailyConversations = -1

var tierOrder = map[Tier]int{
	TierNew:           0,
	TierActive:        1,
	TierEstablished:   2,
	TierTrusted:       3,
	TierDistinguished: 4,
}

// CompareTiers возвращает <0, 0 или >0 если a ниже, равен или выше b.
// Неизвестный уровень считается самым низким.
func CompareTiers(a, b Tier) int {
	return tierRank(a) - tierRank(b)
}

func tierRank(t Tier) int {
	if rank, ok := tierOrder[Tier(strings.ToLower(string(t)))]; ok {
		return rank
	}
	return 0
}

// TierPlan описывает один уровень: минимальный балл и дневной лимит
// диалогов с более высоким уровнем.
type TierPlan struct {
	Tier                         Tier
	Name                         string
	MinScore                     int
	DailyHigherTierConversations int
}

// TierTable — упорядоченная по возрастанию MinScore таблица уровней.
type TierTable []TierPlan

// DefaultTierTable возвращает каноническую таблицу уровней.
func DefaultTierTable() TierTable {
	return TierTable{
		{Tier: TierNew, Name: "New", MinScore: 0, DailyHigherTierConversations: 1},
		{Tier: TierActive, Name: "Active", MinScore: 200, DailyHigherTierConversations: 3},
		{Tier: TierEstablished, Name: "Established", MinScore: 400, DailyHigherTierConversations: 5},
		{Tier: TierTrusted, Name: "Trusted", MinScore: 600, DailyHigherTierConversations: 10},
		{Tier: TierDistinguished, Name: "Distinguished", MinScore: 800, DailyHigherTierConversations: UnlimitedDailyConversations},
	}
}

// TierForScore возвращает уровень по баллу: берётся наибольший порог,
// не превышающий score. Балл ровно на пороге относится к верхнему уровню.
func (t TierTable) TierForScore(score int) Tier {
	tier := t[0].Tier
	for _, plan := range t {
		if score >= plan.MinScore {
			tier = plan.Tier
		}
	}
	return tier
}

// PlanFor возвращает план указанного уровня. Неизвестный уровень
// получает план самого низкого.
func (t TierTable) PlanFor(tier Tier) TierPlan {
	for _, plan := range t {
		if plan.Tier == tier {
			return plan
		}
	}
	return t[0]
}

// DailyLimitFor возвращает дневной лимит уровня.
func (t TierTable) DailyLimitFor(tier Tier) int {
	return t.PlanFor(tier).DailyHigherTierConversations
}
