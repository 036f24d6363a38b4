package auth

import "strings"

// Role is a dashboard user's role. Roles are ordered: each one can do
// everything the roles below it can.
type Role string

const (
	// RoleViewer reads telemetry, charts, forecasts, alarms and reports.
	RoleViewer Role = "viewer"
	// RoleOperator also sends alerts and reports, refreshes the forecast and
	// acknowledges or clears alarms.
	RoleOperator Role = "operator"
	// RoleAdmin also reads the audit log.
	RoleAdmin Role = "admin"
)

var roleOrder = []Role{RoleViewer, RoleOperator, RoleAdmin}

// Action is something a signed-in user can do on the dashboard.
type Action string

const (
	ActionViewDashboard   Action = "dashboard.view"
	ActionRefreshForecast Action = "forecast.refresh"
	ActionSendAlert       Action = "alert.send"
	ActionHandleAlarm     Action = "alarm.handle"
	ActionSendReport      Action = "report.send"
	ActionWriteAPI        Action = "api.write"
	ActionReadAudit       Action = "audit.read"
)

var actionRoles = map[Action]Role{
	ActionViewDashboard:   RoleViewer,
	ActionRefreshForecast: RoleOperator,
	ActionSendAlert:       RoleOperator,
	ActionHandleAlarm:     RoleOperator,
	ActionSendReport:      RoleOperator,
	ActionWriteAPI:        RoleOperator,
	ActionReadAudit:       RoleAdmin,
}

// NormalizeRole maps a stored or configured role name onto a known role.
// Names are case-insensitive.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if roleRank(role) == 0 {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role ranks at or above required.
func RoleAtLeast(role Role, required Role) bool {
	rank := roleRank(role)
	return rank > 0 && rank >= roleRank(required)
}

// MinimumRole is the lowest role allowed to perform action. Unknown actions
// need an admin.
func MinimumRole(action Action) Role {
	if role, ok := actionRoles[action]; ok {
		return role
	}
	return RoleAdmin
}

// Can reports whether role may perform action.
func Can(role Role, action Action) bool {
	return RoleAtLeast(role, MinimumRole(action))
}

func roleRank(role Role) int {
	for i, r := range roleOrder {
		if r == role {
			return i + 1
		}
	}
	return 0
}
