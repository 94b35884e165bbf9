package terminator

import (
	"net/url"

	"handyhub-admin-console/src/internal/models"
)

type Reason int

const (
	ReasonIdleTimeout Reason = iota + 1
	ReasonServerExpired
	ReasonConcurrentSession
	ReasonSecurityAlert
	ReasonRemoteLogout
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonIdleTimeout:
		return "idle timeout"
	case ReasonServerExpired:
		return "server expired"
	case ReasonConcurrentSession:
		return "concurrent session"
	case ReasonSecurityAlert:
		return "security alert"
	case ReasonRemoteLogout:
		return "remote logout"
	case ReasonManual:
		return "manual logout"
	default:
		return "unknown"
	}
}

// SignInCode is the fixed reason code attached to the sign-in redirect.
func (r Reason) SignInCode() string {
	switch r {
	case ReasonIdleTimeout:
		return models.SignInReasonInactivity
	case ReasonServerExpired:
		return models.SignInReasonExpired
	case ReasonConcurrentSession:
		return models.SignInReasonConflict
	case ReasonSecurityAlert:
		return models.SignInReasonSecurityAlert
	case ReasonRemoteLogout:
		return models.SignInReasonElsewhere
	default:
		return models.SignInReasonUserLogout
	}
}

// reportsInactivity is true only for client-detected idle timeouts.
func (r Reason) reportsInactivity() bool {
	return r == ReasonIdleTimeout
}

// callsLogout is false when the server or another context already ended the
// session.
func (r Reason) callsLogout() bool {
	return r != ReasonServerExpired && r != ReasonRemoteLogout
}

// SignInURL appends the reason code to the sign-in path. Only codes from the
// fixed set ever reach the query string.
func SignInURL(path string, r Reason) string {
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: "/sign-in"}
	}
	q := u.Query()
	q.Set("reason", r.SignInCode())
	u.RawQuery = q.Encode()
	return u.String()
}
