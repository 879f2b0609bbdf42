package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	GateDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_decisions_total",
		Help: "Решения шлюза старта диалогов",
	}, []string{"decision", "reason"})

	DailyLimitDenialsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gate_daily_limit_denials_total",
		Help: "Отказы по дневному лимиту диалогов с более высоким уровнем",
	})

	RecalcSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reputation_recalc_seconds",
		Help:    "Время пересчёта репутации одного пользователя",
		Buckets: prometheus.DefBuckets,
	})

	RecalcErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reputation_recalc_errors_total",
		Help: "Ошибки пересчёта репутации",
	})

	TierChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reputation_tier_changes_total",
		Help: "Смены уровня доверия",
	}, []string{"direction"})

	EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "behavior_events_processed_total",
		Help: "Обработанные поведенческие события",
	}, []string{"type"})

	EventErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "behavior_event_errors_total",
		Help: "Ошибки обработки поведенческих событий",
	})

	BurstFlagsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "burst_flags_total",
		Help: "Зафиксированные всплески отправки сообщений",
	})

	StoreRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_request_duration_seconds",
		Help:    "Длительность обращений к хранилищам",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	StoreRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_request_total",
		Help: "Количество обращений к хранилищам",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		GateDecisionsTotal,
		DailyLimitDenialsTotal,
		RecalcSeconds,
		RecalcErrors,
		TierChangesTotal,
		EventsProcessedTotal,
		EventErrors,
		BurstFlagsTotal,
		StoreRequestDuration,
		StoreRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveStoreRequest записывает длительность и статус обращения к хранилищу.
func ObserveStoreRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	StoreRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	StoreRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncGateDecision увеличивает счётчик решений шлюза.
func IncGateDecision(decision, reason string) {
	GateDecisionsTotal.WithLabelValues(decision, reason).Inc()
	if decision == "deny" {
		DailyLimitDenialsTotal.Inc()
	}
}

// ObserveRecalc записывает длительность и исход пересчёта.
func ObserveRecalc(start time.Time, err error) {
	if err != nil {
		RecalcErrors.Inc()
		return
	}
	RecalcSeconds.Observe(time.Since(start).Seconds())
}

// IncTierChange увеличивает счётчик смен уровня.
func IncTierChange(direction string) {
	TierChangesTotal.WithLabelValues(direction).Inc()
}

// IncEventProcessed увеличивает счётчик обработанных событий.
func IncEventProcessed(eventType string) {
	EventsProcessedTotal.WithLabelValues(eventType).Inc()
}

// IncBurstFlag увеличивает счётчик всплесков.
func IncBurstFlag() {
	BurstFlagsTotal.Inc()
}
