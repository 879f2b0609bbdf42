package config

import (
	"context"
	"sync"
	"time"

	"dating-trust-engine/internal/domain"
)

// StaticProvider отдаёт один неизменный снимок конфигурации. Используется
// в тестах и в процессах, где конфиг фиксируется на старте.
type StaticProvider struct {
	cfg domain.ScoringConfig
}

// NewStaticProvider создаёт провайдер с фиксированным снимком.
func NewStaticProvider(cfg domain.ScoringConfig) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

// Scoring возвращает снимок.
func (p *StaticProvider) Scoring(context.Context) (domain.ScoringConfig, error) {
	return p.cfg, nil
}

// CachedProvider перечитывает снимок из источника по истечении TTL.
// Запущенный пересчёт держит полученный снимок до конца: смена
// конфигурации применяется со следующего цикла.
type CachedProvider struct {
	source func() (domain.ScoringConfig, error)
	ttl    time.Duration
	now    func() time.Time

	mu  sync.Mutex
	cur domain.ScoringConfig
}

// NewCachedProvider создаёт кэширующий провайдер.
func NewCachedProvider(source func() (domain.ScoringConfig, error), ttl time.Duration) *CachedProvider {
	return &CachedProvider{source: source, ttl: ttl, now: time.Now}
}

// Scoring возвращает действующий снимок, перечитывая его при истечении.
// Если источник недоступен, а предыдущий снимок ещё на руках, отдаём
// его: устаревшие веса лучше отказа в обслуживании.
func (p *CachedProvider) Scoring(context.Context) (domain.ScoringConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cur.Version != "" && !p.cur.Expired(now) {
		return p.cur, nil
	}
	cfg, err := p.source()
	if err != nil {
		if p.cur.Version != "" {
			return p.cur, nil
		}
		return domain.ScoringConfig{}, err
	}
	cfg.ExpiresAt = now.Add(p.ttl)
	p.cur = cfg
	return p.cur, nil
}
