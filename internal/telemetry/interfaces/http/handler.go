package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar-dashboard/internal/audit"
	"solar-dashboard/internal/auth"
	"solar-dashboard/internal/observability/metrics"
	"solar-dashboard/internal/telemetry/application"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

const maxIngestBody = 1 << 20

// Handler serves telemetry ingest, latest, history and export endpoints.
type Handler struct {
	service *application.IngestService
	audit   audit.Logger
	logger  *zap.Logger
	now     func() time.Time
	guard   func(http.Handler) http.Handler
}

// HandlerOption customizes the telemetry handler.
type HandlerOption func(*Handler)

// WithIngestGuard wraps the ingest route, e.g. with signature verification.
func WithIngestGuard(guard func(http.Handler) http.Handler) HandlerOption {
	return func(h *Handler) {
		h.guard = guard
	}
}

// NewHandler constructs a telemetry handler. auditLogger may be nil.
func NewHandler(service *application.IngestService, auditLogger audit.Logger, logger *zap.Logger, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("telemetry handler: nil ingest service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		service: service,
		audit:   auditLogger,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	var ingest http.Handler = http.HandlerFunc(h.ingest)
	if h.guard != nil {
		ingest = h.guard(ingest)
	}
	router.Handle("/api/ingest", ingest).Methods(http.MethodPost)
	router.HandleFunc("/api/latest", h.latest).Methods(http.MethodGet)
	router.HandleFunc("/api/history", h.history).Methods(http.MethodGet)
	router.HandleFunc("/api/export", h.export).Methods(http.MethodGet)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(r.Body)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing body"})
		return
	}
	reading, err := h.service.Ingest(r.Context(), raw)
	switch {
	case errors.Is(err, telemetry.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	case err != nil:
		h.logger.Error("telemetry: ingest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "row": reading})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.service.Latest(r.Context())
	if err != nil {
		h.logger.Error("telemetry: read latest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "storage error"})
		return
	}
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "message": "no data yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "latest": latest})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	readings, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("telemetry: read history failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "storage error"})
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": readings})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	readings, err := h.service.All(r.Context())
	if err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
		h.logger.Error("telemetry: export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "storage error"})
		return
	}
	if len(readings) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "No telemetry data yet"})
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write(telemetry.CSVHeader)
	for _, reading := range readings {
		_ = writer.Write(reading.CSVRecord())
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
		h.logger.Error("telemetry: export encode failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "export failed"})
		return
	}

	filename := "telemetry_" + h.now().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(start))

	if h.audit != nil {
		entry := audit.FromRequest(r, auth.EmailFromContext(r.Context()), string(auth.RoleFromContext(r.Context())),
			audit.ActionExport, "telemetry", filename, map[string]any{"format": "csv", "rows": len(readings)})
		if err := h.audit.Log(r.Context(), entry); err != nil {
			h.logger.Warn("telemetry: audit log failed", zap.Error(err))
		}
	}
}

// decodeObject reads a JSON object body. Numbers are kept as json.Number.
func decodeObject(body io.Reader) (map[string]any, bool) {
	if body == nil {
		return nil, false
	}
	decoder := json.NewDecoder(io.LimitReader(body, maxIngestBody))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
