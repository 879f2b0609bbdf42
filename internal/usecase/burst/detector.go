package burst

import (
	"time"

	"dating-trust-engine/internal/domain"
)

// pruneMargin — запас сверх окна при обрезке списка отметок: защита от
// небольшого рассинхрона часов между обработчиками событий.
const pruneMargin = 5 * time.Second

// Detector выполняет проверку всплесков по скользящему окну. Работает
// на горячем пути отправки сообщения, поэтому сложность ограничена
// размером окна, а не всей историей.
type Detector struct {
	cfg domain.BurstConfig
}

// NewDetector создаёт детектор.
func NewDetector(cfg domain.BurstConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Result — итог проверки одной отправки.
type Result struct {
	Bursting   bool
	BurstScore float64
	// InWindow — число отправок внутри окна, включая текущую.
	InWindow int
}

// Check оценивает список последних отправок (новые в конце) на момент
// now. Всплеск фиксируется, когда число отправок внутри окна превышает
// MaxMessages.
func (d *Detector) Check(timestamps []time.Time, now time.Time) Result {
	cutoff := now.Add(-d.cfg.Window)
	count := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if timestamps[i].Before(cutoff) {
			break
		}
		count++
	}
	res := Result{InWindow: count}
	if count > d.cfg.MaxMessages {
		res.Bursting = true
		res.BurstScore = 1
	}
	return res
}

// KeepWithin возвращает горизонт хранения отметок: хранилище обрезает
// список до него на каждой отправке, чтобы он оставался ограниченным.
func (d *Detector) KeepWithin() time.Duration {
	return d.cfg.Window + pruneMargin
}
