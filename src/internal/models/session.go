package models

import "time"

type Session struct {
	SessionID    string     `bson:"session_id" json:"sessionId"`
	UserID       string     `bson:"user_id" json:"userId"`
	IsActive     bool       `bson:"is_active" json:"isActive"`
	IPAddress    string     `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent    string     `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	LogoutReason string     `bson:"logout_reason,omitempty" json:"logoutReason,omitempty"`
	ExpiresAt    time.Time  `bson:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty" json:"logoutAt,omitempty"`
	LastActiveAt time.Time  `bson:"last_active_at" json:"lastActiveAt"`
}

// Usable reports whether the session may still authenticate requests at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && s.LogoutAt == nil && now.Before(s.ExpiresAt)
}
