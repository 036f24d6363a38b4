package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar-dashboard/internal/audit"
)

// Handler serves register, login and identity endpoints.
type Handler struct {
	service *Service
	audit   audit.Logger
	logger  *zap.Logger
}

// NewHandler constructs an auth HTTP handler. auditLogger may be nil.
func NewHandler(service *Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("auth handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, audit: auditLogger, logger: logger}, nil
}

// Register mounts the handler's routes.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/auth/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", h.me).Methods(http.MethodGet)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Email and password required"})
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Email and password required"})
		return
	case errors.Is(err, ErrUserExists):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "User already exists"})
		return
	case err != nil:
		h.logger.Error("auth: register failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error creating user"})
		return
	}
	h.record(r, user, audit.ActionRegister)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "user": user})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Email and password required"})
		return
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Email and password required"})
		return
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	case err != nil:
		h.logger.Error("auth: login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "login failed"})
		return
	}
	h.record(r, session.User, audit.ActionLogin)
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())
	if email == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"user": map[string]any{
			"id":    SubjectFromContext(r.Context()),
			"email": email,
			"role":  RoleFromContext(r.Context()),
		},
	})
}

func (h *Handler) record(r *http.Request, user User, action string) {
	if h.audit == nil {
		return
	}
	entry := audit.FromRequest(r, user.Email, string(user.Role), action, "user", user.Email, nil)
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.Warn("auth: audit log failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
