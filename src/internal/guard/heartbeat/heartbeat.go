// Package heartbeat keeps the server-side console session alive and turns
// heartbeat failures into one of three outcomes: continue, suppress further
// heartbeats, or terminate the session.
package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"handyhub-admin-console/src/internal/guard/terminator"
	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
)

// StatusAuthenticationTimeout is the non-standard status the console backend
// answers with when the anti-forgery token no longer matches.
const StatusAuthenticationTimeout = 419

type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeSuppressed
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Backend interface {
	Heartbeat(ctx context.Context, at time.Time) (*models.HeartbeatResult, error)
}

type Terminator interface {
	Terminate(ctx context.Context, reason terminator.Reason) bool
}

// SecurityAlert describes the other session behind a 409 security alert.
type SecurityAlert struct {
	OtherSessionIP string
	OtherUserAgent string
}

// Prompter shows the synchronous security confirmation. The answer is logged
// but does not change the outcome: the session ends either way.
type Prompter interface {
	ConfirmSecurityAlert(ctx context.Context, alert SecurityAlert) bool
}

type Client struct {
	backend    Backend
	terminator Terminator
	prompter   Prompter
	interval   time.Duration
	now        func() time.Time
	log        *logrus.Entry

	suppressed atomic.Bool
	stopped    atomic.Bool
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func New(backend Backend, term Terminator, prompter Prompter, interval time.Duration, now func() time.Time, log *logrus.Entry) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{
		backend:    backend,
		terminator: term,
		prompter:   prompter,
		interval:   interval,
		now:        now,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Run sends one heartbeat immediately and then one per interval until ctx is
// done, the client is stopped, heartbeats are suppressed or the session ends.
func (c *Client) Run(ctx context.Context) error {
	if c.Ping(ctx) != OutcomeContinue {
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			if c.Ping(ctx) != OutcomeContinue {
				return nil
			}
		}
	}
}

// Ping sends one heartbeat and interprets the answer. Once suppressed or
// stopped it returns without touching the network.
func (c *Client) Ping(ctx context.Context) Outcome {
	if c.suppressed.Load() {
		return OutcomeSuppressed
	}
	if c.stopped.Load() {
		return OutcomeContinue
	}

	result, err := c.backend.Heartbeat(ctx, c.now())
	if c.stopped.Load() {
		return OutcomeContinue
	}
	if err != nil {
		c.log.WithError(err).Warn("Heartbeat failed, retrying next cycle")
		return OutcomeContinue
	}

	return c.interpret(ctx, result)
}

func (c *Client) interpret(ctx context.Context, result *models.HeartbeatResult) Outcome {
	log := c.log.WithField("status", result.StatusCode)

	switch {
	case result.StatusCode >= 200 && result.StatusCode < 300:
		log.Debug("Heartbeat acknowledged")
		return OutcomeContinue

	case result.StatusCode == http.StatusUnauthorized:
		log.Warn("Server expired the session")
		c.terminator.Terminate(ctx, terminator.ReasonServerExpired)
		return OutcomeTerminated

	case result.StatusCode == http.StatusConflict:
		return c.handleConflict(ctx, result.Conflict)

	case result.StatusCode == http.StatusForbidden || result.StatusCode == StatusAuthenticationTimeout:
		c.suppressed.Store(true)
		log.Warn("Heartbeat rejected by authorization check, suppressing further heartbeats")
		return OutcomeSuppressed

	default:
		log.Warn("Unexpected heartbeat status, retrying next cycle")
		return OutcomeContinue
	}
}

func (c *Client) handleConflict(ctx context.Context, conflict *models.SessionConflict) Outcome {
	if conflict == nil || !conflict.SecurityAlert {
		c.log.Warn("Another session is active for this account")
		c.terminator.Terminate(ctx, terminator.ReasonConcurrentSession)
		return OutcomeTerminated
	}

	alert := SecurityAlert{
		OtherSessionIP: conflict.OtherSessionIP,
		OtherUserAgent: conflict.OtherUserAgent,
	}
	// TODO: revoke every other session when the alert is acknowledged, once the
	// backend exposes a revoke-all endpoint.
	acknowledged := c.prompter.ConfirmSecurityAlert(ctx, alert)
	c.log.WithFields(logrus.Fields{
		"other_session_ip": alert.OtherSessionIP,
		"acknowledged":     acknowledged,
	}).Warn("Session opened from another device")

	c.terminator.Terminate(ctx, terminator.ReasonSecurityAlert)
	return OutcomeTerminated
}

func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
	})
}

// LogPrompter answers security alerts without a human: it logs the alert and
// reports it as dismissed.
type LogPrompter struct {
	Log *logrus.Entry
}

func (p LogPrompter) ConfirmSecurityAlert(_ context.Context, alert SecurityAlert) bool {
	p.Log.WithFields(logrus.Fields{
		"other_session_ip": alert.OtherSessionIP,
		"other_user_agent": alert.OtherUserAgent,
	}).Warn("Your account was signed in from another device; this session will end")
	return false
}
