package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// DashboardExemptPaths are reachable without a session token.
var DashboardExemptPaths = []string{
	"/api/ingest",
	"/api/auth/login",
	"/api/auth/register",
	"/healthz",
	"/metrics",
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if r.Method == http.MethodOptions {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredAction maps a request onto the dashboard action it performs.
func (p Policy) RequiredAction(r *http.Request) (Action, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/forecast":
		if r.URL.Query().Get("refresh") != "" {
			return ActionRefreshForecast, true
		}
		return ActionViewDashboard, true
	case path == "/api/v1/alerts":
		return ActionSendAlert, true
	case path == "/api/v1/alarms", path == "/api/v1/alarms/stream":
		return ActionViewDashboard, true
	case strings.HasPrefix(path, "/api/v1/alarms/") && method == http.MethodPost:
		return ActionHandleAlarm, true
	case path == "/api/v1/reports/send":
		return ActionSendReport, true
	case strings.HasPrefix(path, "/api/v1/reports/"):
		return ActionViewDashboard, true
	case path == "/api/v1/audit":
		return ActionReadAudit, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead {
			return ActionViewDashboard, true
		}
		return ActionWriteAPI, true
	}
	return "", false
}

// RequiredRole resolves the minimum role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	action, ok := p.RequiredAction(r)
	if !ok {
		return "", false
	}
	return MinimumRole(action), true
}
