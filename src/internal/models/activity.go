package models

import "time"

type ActivityMessage struct {
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	ServiceName string            `json:"service_name"`
	Action      string            `json:"action"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Activity action constants
const (
	ActionHeartbeat         = "heartbeat"
	ActionSessionConflict   = "session_conflict"
	ActionInactivityLogout  = "inactivity_logout"
	ActionLogout            = "logout"
	ActionSecurityAlertSent = "security_alert"
)

// Service name constants
const (
	ServiceConsoleHeartbeat = "admin.console.heartbeat"
	ServiceConsoleLogout    = "admin.console.logout"
)
