package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxListLimit = 1000

// Lister reads audit entries newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Handler serves the audit log to administrators.
type Handler struct {
	entries Lister
	logger  *zap.Logger
}

// NewHandler constructs an audit handler.
func NewHandler(entries Lister, logger *zap.Logger) (*Handler, error) {
	if entries == nil {
		return nil, errors.New("audit handler: nil lister")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{entries: entries, logger: logger}, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/audit", h.list).Methods(http.MethodGet)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid limit"})
			return
		}
		limit = min(parsed, maxListLimit)
	}
	entries, err := h.entries.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("audit: list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "read_failed"})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
