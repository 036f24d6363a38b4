package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	alarmapp "solar-dashboard/internal/alarms/application"
	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/audit"
	"solar-dashboard/internal/auth"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

const defaultListLimit = 100

// Handler provides alert and alarm HTTP endpoints.
type Handler struct {
	service *alarmapp.Service
	alerts  *alarmapp.AlertService
	broker  *SSEBroker
	audit   audit.Logger
	logger  *zap.Logger
}

// NewHandler constructs a handler. alerts, broker and auditLogger may be nil.
func NewHandler(service *alarmapp.Service, alerts *alarmapp.AlertService, broker *SSEBroker, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, alerts: alerts, broker: broker, audit: auditLogger, logger: logger}, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/alerts", h.handleAlert).Methods(http.MethodPost)
	router.Handle("/api/v1/alarms/stream", NewStreamHandler(h.broker)).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/alarms", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/alarms/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/alarms/{id}/{action:ack|clear}", h.handleAction).Methods(http.MethodPost)
}

type alertRequest struct {
	Type      string          `json:"type"`
	Voltage   json.RawMessage `json:"voltage"`
	Threshold json.RawMessage `json:"threshold"`
	Message   string          `json:"message"`
	DeviceID  string          `json:"device_id"`
}

func (h *Handler) handleAlert(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "alerting not configured"})
		return
	}
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	alert := alarmapp.ManualAlert{
		Type:      req.Type,
		DeviceID:  req.DeviceID,
		Voltage:   numberOrNil(req.Voltage),
		Threshold: numberOrNil(req.Threshold),
		Message:   req.Message,
	}
	result, err := h.alerts.Send(r.Context(), alert)
	switch {
	case errors.Is(err, alarms.ErrInvalidAlert):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing voltage"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "send_failed"})
		return
	}
	if !result.Sent {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "note": result.Note})
		return
	}
	h.record(r, audit.ActionAlertSend, "alert", alarmapp.CooldownKey(alertType(req.Type), req.DeviceID), map[string]any{"message": req.Message})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": true})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	filter := alarms.ListFilter{
		Status:   r.URL.Query().Get("status"),
		DeviceID: r.URL.Query().Get("device_id"),
		Limit:    limit,
	}
	list, err := h.service.ListAlarms(r.Context(), filter)
	if err != nil {
		h.logger.Error("alarms: list failed", zap.Error(err))
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alarms": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	alarm, err := h.service.GetAlarm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alarm)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var (
		alarm  *alarms.Alarm
		err    error
		action string
	)
	switch vars["action"] {
	case "ack":
		alarm, err = h.service.AckAlarm(r.Context(), id)
		action = audit.ActionAlarmAck
	case "clear":
		alarm, err = h.service.ClearAlarm(r.Context(), id)
		action = audit.ActionAlarmClear
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, action, "alarm", alarm.ID, nil)
	writeJSON(w, http.StatusOK, alarm)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, alarms.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.logger.Error("alarms: request failed", zap.Error(err))
	http.Error(w, "alarm update failed", http.StatusInternalServerError)
}

func (h *Handler) record(r *http.Request, action, resourceType, resourceID string, metadata any) {
	if h.audit == nil {
		return
	}
	ctx := r.Context()
	entry := audit.FromRequest(r, auth.EmailFromContext(ctx), string(auth.RoleFromContext(ctx)), action, resourceType, resourceID, metadata)
	if err := h.audit.Log(ctx, entry); err != nil {
		h.logger.Warn("alarms: audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// numberOrNil decodes a JSON number or numeric string. Absent and null
// values are nil; other values coerce to 0.
func numberOrNil(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var value any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return nil
	}
	n := telemetry.Number(value)
	return &n
}

func alertType(t string) string {
	if t == "" {
		return alarmapp.DefaultAlertType
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
