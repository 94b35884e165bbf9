package inactivity

import (
	"context"
	"sync"
	"time"

	"handyhub-admin-console/src/internal/guard/channel"
	"handyhub-admin-console/src/internal/guard/heartbeat"
	"handyhub-admin-console/src/internal/guard/terminator"

	"github.com/sirupsen/logrus"
)

type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time with the monotonic reading stripped.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().Round(0) }

type Terminator interface {
	Terminate(ctx context.Context, reason terminator.Reason) bool
}

type Pinger interface {
	Ping(ctx context.Context) heartbeat.Outcome
}

// View is what the warning modal renders.
type View struct {
	ShowWarning      bool
	RemainingSeconds int
}

type Presenter interface {
	Present(View)
}

type Deps struct {
	Clock      Clock
	Channel    channel.Channel
	Terminator Terminator
	Pinger     Pinger
	Presenter  Presenter
	Log        *logrus.Entry
}

// Guard is the per-context inactivity state machine. Activity only moves the
// last-activity instant forward; the state is re-derived from it each tick.
type Guard struct {
	cfg        Config
	clock      Clock
	channel    channel.Channel
	terminator Terminator
	pinger     Pinger
	presenter  Presenter
	log        *logrus.Entry

	// pubMu serializes writes to the shared channel with Stop, so nothing
	// is published once Stop has returned.
	pubMu sync.Mutex

	mu            sync.Mutex
	last          time.Time
	state         State
	remaining     int
	stopped       bool
	warningOnsets int

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, deps Deps) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Channel == nil {
		deps.Channel = channel.Noop{}
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	now := deps.Clock.Now().Round(0)
	return &Guard{
		cfg:        cfg,
		clock:      deps.Clock,
		channel:    deps.Channel,
		terminator: deps.Terminator,
		pinger:     deps.Pinger,
		presenter:  deps.Presenter,
		log:        deps.Log,
		last:       now,
		state:      StateActive,
		remaining:  Evaluate(cfg, now, now).RemainingSeconds,
		stopCh:     make(chan struct{}),
	}, nil
}

// Run ticks until ctx is done, the guard is stopped, or the session expires.
func (g *Guard) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	if g.Tick(ctx).State == StateExpired {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.stopCh:
			return nil
		case <-ticker.C:
			if g.Tick(ctx).State == StateExpired {
				return nil
			}
		}
	}
}

// Tick evaluates the state at the current clock reading and performs the
// side effects of any transition.
func (g *Guard) Tick(ctx context.Context) Snapshot {
	g.mu.Lock()
	if g.stopped {
		snap := g.snapshotLocked()
		g.mu.Unlock()
		return snap
	}

	snap := Evaluate(g.cfg, g.last, g.clock.Now())
	previous := g.state
	g.state = snap.State
	g.remaining = snap.RemainingSeconds

	if snap.State == StateExpired {
		g.stopped = true
		g.mu.Unlock()

		g.log.WithField("idle", snap.Elapsed.Round(time.Second).String()).Info("Idle timeout reached")
		g.present(View{})
		g.terminate(ctx, terminator.ReasonIdleTimeout)
		return snap
	}

	if snap.State == StateWarning && previous != StateWarning {
		g.warningOnsets++
		g.log.WithField("remaining_seconds", snap.RemainingSeconds).Info("Session about to expire, warning shown")
	}
	view := g.viewLocked()
	g.mu.Unlock()

	g.present(view)
	return snap
}

// RecordActivity records local activity at the given instant and shares it
// with other contexts. It is refused while the warning is showing, since only
// an explicit extend may dismiss it, and after the guard has stopped. The
// state is re-derived first, so activity arriving after missed ticks cannot
// revive a session that has already gone idle.
func (g *Guard) RecordActivity(ctx context.Context, at time.Time) bool {
	at = at.Round(0)

	g.pubMu.Lock()
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		g.pubMu.Unlock()
		return false
	}

	snap := Evaluate(g.cfg, g.last, g.clock.Now())
	switch {
	case snap.State == StateExpired:
		g.state = StateExpired
		g.remaining = 0
		g.stopped = true
		g.mu.Unlock()
		g.pubMu.Unlock()

		g.log.WithField("idle", snap.Elapsed.Round(time.Second).String()).Info("Idle timeout reached before activity was recorded")
		g.present(View{})
		g.terminate(ctx, terminator.ReasonIdleTimeout)
		return false

	case snap.State == StateWarning && g.state == StateActive:
		g.state = StateWarning
		g.remaining = snap.RemainingSeconds
		g.warningOnsets++
		view := g.viewLocked()
		g.mu.Unlock()
		g.pubMu.Unlock()

		g.log.WithField("remaining_seconds", snap.RemainingSeconds).Info("Session about to expire, warning shown")
		g.present(view)
		return false

	case g.state != StateActive || snap.State != StateActive || at.Before(g.last):
		g.mu.Unlock()
		g.pubMu.Unlock()
		return false
	}

	g.last = at
	g.mu.Unlock()

	g.share(ctx, at)
	g.pubMu.Unlock()
	return true
}

// Extend resets the session to active, shares the new instant with other
// contexts and sends an out-of-band heartbeat.
func (g *Guard) Extend(ctx context.Context) {
	g.pubMu.Lock()
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		g.pubMu.Unlock()
		return
	}
	now := g.clock.Now().Round(0)
	if now.After(g.last) {
		g.last = now
	}
	at := g.last
	g.state = StateActive
	g.remaining = Evaluate(g.cfg, g.last, now).RemainingSeconds
	view := g.viewLocked()
	g.mu.Unlock()

	g.log.Info("Session extended")
	g.present(view)
	g.share(ctx, at)
	g.pubMu.Unlock()

	if g.pinger != nil {
		g.pinger.Ping(ctx)
	}
}

// Announce shares the current last-activity instant and marks the session
// active, unless the guard has already stopped.
func (g *Guard) Announce(ctx context.Context) {
	g.pubMu.Lock()
	defer g.pubMu.Unlock()

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	at := g.last
	g.mu.Unlock()

	g.share(ctx, at)
}

// share must be called with pubMu held.
func (g *Guard) share(ctx context.Context, at time.Time) {
	if err := g.channel.Publish(ctx, channel.KeyLastActivity, channel.EncodeInstant(at)); err != nil {
		g.log.WithError(err).Debug("Failed to share activity")
	}
	if err := g.channel.Publish(ctx, channel.KeySessionActive, channel.EncodeBool(true)); err != nil {
		g.log.WithError(err).Debug("Failed to share session active marker")
	}
}

// HandleUpdate applies a change observed on the shared channel.
func (g *Guard) HandleUpdate(ctx context.Context, u channel.Update) {
	switch u.Key {
	case channel.KeyLastActivity:
		g.handleRemoteActivity(u)
	case channel.KeySessionActive:
		g.handleRemoteSessionFlag(ctx, u)
	}
}

func (g *Guard) handleRemoteActivity(u channel.Update) {
	if !u.Present {
		return
	}
	at, err := channel.DecodeInstant(u.Value)
	if err != nil {
		g.log.WithError(err).Debug("Ignoring malformed shared activity")
		return
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	now := g.clock.Now().Round(0)
	if at.After(now) {
		at = now
	}
	if !at.After(g.last) || now.Sub(at) > g.cfg.FreshnessWindow {
		g.mu.Unlock()
		return
	}
	g.last = at
	g.state = StateActive
	g.remaining = Evaluate(g.cfg, g.last, now).RemainingSeconds
	view := g.viewLocked()
	g.mu.Unlock()

	g.log.WithField("at", at.UnixMilli()).Debug("Activity from another context")
	g.present(view)
}

func (g *Guard) handleRemoteSessionFlag(ctx context.Context, u channel.Update) {
	if !u.Present {
		return
	}
	active, err := channel.DecodeBool(u.Value)
	if err != nil || active {
		return
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.state = StateExpired
	g.remaining = 0
	g.stopped = true
	g.mu.Unlock()

	g.log.Info("Session ended in another context")
	g.present(View{})
	g.terminate(ctx, terminator.ReasonRemoteLogout)
}

func (g *Guard) terminate(ctx context.Context, reason terminator.Reason) {
	if g.terminator != nil {
		g.terminator.Terminate(ctx, reason)
	}
}

func (g *Guard) present(v View) {
	if g.presenter != nil {
		g.presenter.Present(v)
	}
}

// Stop ends ticking. Nothing the guard does after Stop has side effects.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		g.pubMu.Lock()
		g.mu.Lock()
		g.stopped = true
		g.mu.Unlock()
		g.pubMu.Unlock()
		close(g.stopCh)
	})
}

func (g *Guard) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewLocked()
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// onsets counts Active→Warning transitions so far.
func (g *Guard) onsets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.warningOnsets
}

func (g *Guard) viewLocked() View {
	return View{ShowWarning: g.state == StateWarning, RemainingSeconds: g.remaining}
}

func (g *Guard) snapshotLocked() Snapshot {
	return Snapshot{State: g.state, RemainingSeconds: g.remaining}
}
