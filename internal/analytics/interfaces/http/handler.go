package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar-dashboard/internal/analytics/application"
	"solar-dashboard/internal/analytics/domain/statistic"
	"solar-dashboard/internal/audit"
	"solar-dashboard/internal/auth"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// Forecaster produces the next-day forecast.
type Forecaster interface {
	Forecast(ctx context.Context, refresh bool) (statistic.Forecast, error)
}

// Handler serves dashboard aggregation and forecast endpoints.
type Handler struct {
	dashboard  *application.DashboardService
	forecaster Forecaster
	audit      audit.Logger
	logger     *zap.Logger
}

// NewHandler constructs the analytics handler. forecaster and auditLogger may be nil.
func NewHandler(dashboard *application.DashboardService, forecaster Forecaster, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if dashboard == nil {
		return nil, errors.New("analytics handler: nil dashboard service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dashboard: dashboard, forecaster: forecaster, audit: auditLogger, logger: logger}, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/analytics/minutes", h.minutes).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/analytics/daily-energy", h.dailyEnergy).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/analytics/hourly", h.hourly).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/analytics/summary", h.summary).Methods(http.MethodGet)
	if h.forecaster != nil {
		router.HandleFunc("/api/forecast", h.forecast).Methods(http.MethodGet)
	}
}

func (h *Handler) minutes(w http.ResponseWriter, r *http.Request) {
	view, err := h.dashboard.Minutes(r.Context(), queryInt(r, "limit"), queryInt(r, "tail"))
	if err != nil {
		h.fail(w, "minutes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "buckets": view.Buckets, "deltas": view.Deltas})
}

func (h *Handler) dailyEnergy(w http.ResponseWriter, r *http.Request) {
	days, err := h.dashboard.DailyEnergy(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, "daily energy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": days})
}

func (h *Handler) hourly(w http.ResponseWriter, r *http.Request) {
	hours, err := h.dashboard.Hourly(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, "hourly", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": hours})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "1"
	fc, err := h.forecaster.Forecast(r.Context(), refresh)
	if errors.Is(err, telemetry.ErrNoData) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no data"})
		return
	}
	if err != nil {
		h.fail(w, "forecast", err)
		return
	}
	if refresh && h.audit != nil {
		entry := audit.FromRequest(r, auth.EmailFromContext(r.Context()), string(auth.RoleFromContext(r.Context())),
			audit.ActionForecastRef, "forecast", fc.SourceDate, nil)
		if err := h.audit.Log(r.Context(), entry); err != nil {
			h.logger.Warn("analytics: audit log failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("analytics: "+op+" failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "read_failed"})
}

func queryInt(r *http.Request, key string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
