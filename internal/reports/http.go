package reports

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar-dashboard/internal/audit"
	"solar-dashboard/internal/auth"
	"solar-dashboard/internal/observability/metrics"
)

// Handler serves report send and export endpoints.
type Handler struct {
	service *Service
	audit   audit.Logger
	logger  *zap.Logger
}

// NewHandler constructs a report handler. auditLogger may be nil.
func NewHandler(service *Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reports handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, audit: auditLogger, logger: logger}, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/reports/send", h.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/reports/telemetry.pdf", h.handleExport("pdf")).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/reports/telemetry.xlsx", h.handleExport("xlsx")).Methods(http.MethodGet)
}

type sendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
			return
		}
	}
	recipient := strings.TrimSpace(req.Email)
	if recipient == "" {
		recipient = auth.EmailFromContext(r.Context())
	}
	err := h.service.Send(r.Context(), recipient)
	switch {
	case errors.Is(err, ErrMissingRecipient):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing email"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "send_failed"})
		return
	}
	h.record(r, audit.ActionReportSend, "report", recipient, map[string]any{"recipient": recipient})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": true})
}

func (h *Handler) handleExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		report, err := h.service.Build(r.Context())
		if err != nil {
			metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
			h.logger.Error("reports: build failed", zap.Error(err))
			http.Error(w, "report failed", http.StatusInternalServerError)
			return
		}

		var (
			body        []byte
			contentType string
		)
		switch format {
		case "pdf":
			body, err = BuildPDF(report)
			contentType = "application/pdf"
		default:
			body, err = BuildXLSX(report)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		metrics.ObserveExport(format, metrics.ResultOf(err), time.Since(start))
		if err != nil {
			h.logger.Error("reports: render failed", zap.String("format", format), zap.Error(err))
			http.Error(w, "report failed", http.StatusInternalServerError)
			return
		}

		filename := "telemetry_report_" + report.GeneratedAt.Format("2006-01-02") + "." + format
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		h.record(r, audit.ActionExport, "report", filename, map[string]any{"format": format})
	}
}

func (h *Handler) record(r *http.Request, action, resourceType, resourceID string, metadata any) {
	if h.audit == nil {
		return
	}
	ctx := r.Context()
	entry := audit.FromRequest(r, auth.EmailFromContext(ctx), string(auth.RoleFromContext(ctx)), action, resourceType, resourceID, metadata)
	if err := h.audit.Log(ctx, entry); err != nil {
		h.logger.Warn("reports: audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
