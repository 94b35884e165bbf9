package models

// Logout reasons recorded on the session document. The console front end
// only ever sends ReasonInactivityTimeout.
const (
	ReasonInactivityTimeout = "inactivity_timeout"
	ReasonUserLogout        = "user_logout"
	ReasonSessionConflict   = "session_conflict"
)

// Sign-in reason codes. Redirects only ever carry one of these.
const (
	SignInReasonInactivity    = "session_expired_inactivity"
	SignInReasonExpired       = "session_expired"
	SignInReasonConflict      = "session_conflict"
	SignInReasonSecurityAlert = "session_security_alert"
	SignInReasonElsewhere     = "session_ended_elsewhere"
	SignInReasonUserLogout    = "user_logout"
)

type HeartbeatRequest struct {
	Timestamp int64 `json:"timestamp"`
}

type HeartbeatResponse struct {
	Success    bool  `json:"success"`
	ServerTime int64 `json:"serverTime"`
}

// SessionConflict is the 409 body of the heartbeat endpoint.
type SessionConflict struct {
	Error          string `json:"error"`
	SecurityAlert  bool   `json:"security_alert"`
	OtherSessionIP string `json:"other_session_ip,omitempty"`
	OtherUserAgent string `json:"other_user_agent,omitempty"`
}

// HeartbeatResult is what the guard sees of a heartbeat round trip: the
// status code plus the conflict body when the status is 409.
type HeartbeatResult struct {
	StatusCode int
	Conflict   *SessionConflict
}

type InactivityLogoutRequest struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

type LogoutResponse struct {
	Success  bool   `json:"success"`
	Redirect string `json:"redirect"`
}
