// Package terminator ends a console session exactly once.
package terminator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"handyhub-admin-console/src/internal/guard/channel"

	"github.com/sirupsen/logrus"
)

type Backend interface {
	ReportInactivity(ctx context.Context, at time.Time) error
	Logout(ctx context.Context) error
}

type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// Stopper is anything holding timers that must not outlive the session.
type Stopper interface {
	Stop()
}

type StopperFunc func()

func (f StopperFunc) Stop() { f() }

type Config struct {
	SignInPath    string
	ReportTimeout time.Duration
}

type Terminator struct {
	cfg       Config
	channel   channel.Channel
	backend   Backend
	navigator Navigator
	now       func() time.Time
	log       *logrus.Entry

	mu       sync.Mutex
	stoppers []Stopper
	reason   Reason
	once     sync.Once
	done     chan struct{}
}

func New(cfg Config, ch channel.Channel, backend Backend, navigator Navigator, now func() time.Time, log *logrus.Entry) *Terminator {
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 3 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Terminator{
		cfg:       cfg,
		channel:   ch,
		backend:   backend,
		navigator: navigator,
		now:       now,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Register adds timers to cancel when the session ends.
func (t *Terminator) Register(stoppers ...Stopper) {
	t.mu.Lock()
	t.stoppers = append(t.stoppers, stoppers...)
	t.mu.Unlock()
}

// Terminate runs the logout sequence. Only the first call does anything; it
// reports whether this call was the one that ran it.
func (t *Terminator) Terminate(ctx context.Context, reason Reason) bool {
	fired := false
	t.once.Do(func() {
		fired = true
		t.run(context.WithoutCancel(ctx), reason)
	})
	return fired
}

func (t *Terminator) run(ctx context.Context, reason Reason) {
	t.mu.Lock()
	t.reason = reason
	stoppers := append([]Stopper(nil), t.stoppers...)
	t.mu.Unlock()

	log := t.log.WithField("reason", reason.String())
	log.Info("Terminating console session")

	for _, s := range stoppers {
		s.Stop()
	}

	if err := t.channel.Publish(ctx, channel.KeySessionActive, channel.EncodeBool(false)); err != nil {
		log.WithError(err).Debug("Failed to share session end")
	}
	if err := t.channel.Clear(ctx, channel.KeyLastActivity); err != nil {
		log.WithError(err).Debug("Failed to clear shared activity")
	}

	if reason.reportsInactivity() {
		rctx, cancel := context.WithTimeout(ctx, t.cfg.ReportTimeout)
		if err := t.backend.ReportInactivity(rctx, t.now()); err != nil {
			log.WithError(err).Warn("Inactivity report failed, continuing logout")
		}
		cancel()
	}

	if reason.callsLogout() {
		lctx, cancel := context.WithTimeout(ctx, t.cfg.ReportTimeout)
		if err := t.backend.Logout(lctx); err != nil {
			log.WithError(err).Warn("Logout request failed, navigating anyway")
		}
		cancel()
	}

	target := SignInURL(t.cfg.SignInPath, reason)
	if err := t.navigator.Navigate(ctx, target); err != nil {
		log.WithError(err).WithField("target", target).Error("Sign-in navigation failed")
	}

	close(t.done)
}

// Done is closed once the logout sequence has finished.
func (t *Terminator) Done() <-chan struct{} {
	return t.done
}

// Reason returns the reason of the completed or running termination, zero
// before any.
func (t *Terminator) Reason() Reason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// WriterNavigator "navigates" a headless guard by writing the absolute
// sign-in URL to Out.
type WriterNavigator struct {
	Out     io.Writer
	BaseURL string
}

func (n WriterNavigator) Navigate(_ context.Context, target string) error {
	_, err := fmt.Fprintf(n.Out, "navigate %s%s\n", n.BaseURL, target)
	return err
}
