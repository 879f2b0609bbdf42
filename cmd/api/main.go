package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"dating-trust-engine/internal/adapters/repo"
	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/config"
	"dating-trust-engine/internal/infra/db"
	httpinfra "dating-trust-engine/internal/infra/http"
	applog "dating-trust-engine/internal/infra/log"
	"dating-trust-engine/internal/infra/metrics"
	"dating-trust-engine/internal/infra/queue"
	"dating-trust-engine/internal/usecase/gate"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	// Битая конфигурация скоринга валит процесс на старте.
	if _, err := config.BuildScoringConfig(cfg.Scoring, cfg.TZ); err != nil {
		logger.Fatal().Err(err).Msg("api: невалидная конфигурация скоринга")
	}
	provider := config.NewCachedProvider(func() (domain.ScoringConfig, error) {
		return config.BuildScoringConfig(cfg.Scoring, cfg.TZ)
	}, cfg.Scoring.SnapshotTTL)

	repoAdapter := repo.NewPostgres(pool)
	gateService := gate.NewService(repoAdapter, repoAdapter, provider)

	var eventQueue domain.EventQueue
	if cfg.AMQPURL != "" {
		rabbitQueue, err := queue.NewRabbitEventQueue(cfg.AMQPURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())

	server.Router.Post("/api/v1/gate/conversations", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req gateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SenderID == 0 || req.RecipientID == 0 {
			writeError(w, http.StatusBadRequest, "sender_id and recipient_id are required")
			return
		}
		decision, err := gateService.CanStartConversation(r.Context(), req.SenderID, req.RecipientID)
		if err != nil {
			logger.Error().Err(err).Msg("api: проверка шлюза")
			writeError(w, http.StatusInternalServerError, "gate check failed")
			return
		}
		writeJSON(w, decision)
	})

	server.Router.Get("/api/v1/reputation/{userID}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		rep, err := repoAdapter.GetReputation(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrReputationNotFound) {
				writeError(w, http.StatusNotFound, "reputation not found")
				return
			}
			logger.Error().Err(err).Msg("api: чтение репутации")
			writeError(w, http.StatusInternalServerError, "failed to load reputation")
			return
		}
		writeJSON(w, rep.View())
	})

	server.Router.Get("/api/v1/reputation/{userID}/reports", func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		reports, err := repoAdapter.ListReportsForUser(r.Context(), userID, limit, offset)
		if err != nil {
			logger.Error().Err(err).Msg("api: чтение жалоб")
			writeError(w, http.StatusInternalServerError, "failed to load reports")
			return
		}
		if reports == nil {
			reports = []domain.UserReport{}
		}
		writeJSON(w, reports)
	})

	server.Router.Put("/api/v1/reports/{reportID}/status", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req reportStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		status := domain.ReportStatus(req.Status)
		switch status {
		case domain.ReportStatusReviewed, domain.ReportStatusDismissed, domain.ReportStatusActionTaken:
		default:
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		reportID := chi.URLParam(r, "reportID")
		if err := repoAdapter.UpdateReportStatus(r.Context(), reportID, status, time.Now().UTC()); err != nil {
			if errors.Is(err, domain.ErrReportNotFound) {
				writeError(w, http.StatusNotFound, "report not found")
				return
			}
			logger.Error().Err(err).Msg("api: обновление статуса жалобы")
			writeError(w, http.StatusInternalServerError, "failed to update report")
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	server.Router.Post("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var event domain.BehaviorEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if event.Type == "" || event.UserID == 0 {
			writeError(w, http.StatusBadRequest, "type and user_id are required")
			return
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}
		if err := eventQueue.Enqueue(r.Context(), event); err != nil {
			logger.Error().Err(err).Msg("api: публикация события")
			writeError(w, http.StatusInternalServerError, "failed to enqueue event")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		logger.Info().Msg("api: старт")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type gateRequest struct {
	SenderID    int64 `json:"sender_id"`
	RecipientID int64 `json:"recipient_id"`
}

type reportStatusRequest struct {
	Status string `json:"status"`
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
