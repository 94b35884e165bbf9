// Package guard assembles the inactivity guard of one console context: the
// activity tracker, the idle state machine, the heartbeat and the logout
// sequence, all sharing one cross-context channel.
package guard

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/guard/activity"
	"handyhub-admin-console/src/internal/guard/channel"
	"handyhub-admin-console/src/internal/guard/heartbeat"
	"handyhub-admin-console/src/internal/guard/inactivity"
	"handyhub-admin-console/src/internal/guard/terminator"
	"handyhub-admin-console/src/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// View is the state the warning modal renders.
type View = inactivity.View

type Backend interface {
	heartbeat.Backend
	terminator.Backend
}

type Deps struct {
	Backend   Backend
	Channel   channel.Channel
	Navigator terminator.Navigator
	Prompter  heartbeat.Prompter
	Presenter inactivity.Presenter
	Clock     inactivity.Clock
	ContextID string
}

type Session struct {
	cfg        config.GuardConfig
	contextID  string
	channel    channel.Channel
	guard      *inactivity.Guard
	tracker    *activity.Tracker
	heartbeat  *heartbeat.Client
	terminator *terminator.Terminator
	log        *logrus.Entry

	mu           sync.Mutex
	unsubscribes []func()
	closeOnce    sync.Once
}

func NewSession(cfg config.GuardConfig, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("%w: console backend is required", models.ErrInvalidGuardConfig)
	}
	if deps.Navigator == nil {
		deps.Navigator = terminator.WriterNavigator{Out: os.Stdout}
	}
	if deps.ContextID == "" {
		deps.ContextID = uuid.NewString()
	}
	if deps.Channel == nil {
		deps.Channel = channel.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = inactivity.SystemClock{}
	}

	log := logrus.WithField("context_id", deps.ContextID)
	if deps.Prompter == nil {
		deps.Prompter = heartbeat.LogPrompter{Log: log}
	}

	s := &Session{
		cfg:       cfg,
		contextID: deps.ContextID,
		channel:   deps.Channel,
		log:       log,
	}

	s.terminator = terminator.New(terminator.Config{
		SignInPath:    cfg.SignInPath,
		ReportTimeout: cfg.ReportTimeoutDuration(),
	}, deps.Channel, deps.Backend, deps.Navigator, deps.Clock.Now, log.WithField("component", "terminator"))

	if !cfg.Enabled {
		log.Info("Inactivity guard disabled")
		return s, nil
	}

	s.heartbeat = heartbeat.New(deps.Backend, s.terminator, deps.Prompter, cfg.HeartbeatDuration(),
		deps.Clock.Now, log.WithField("component", "heartbeat"))

	g, err := inactivity.New(inactivity.Config{
		IdleTimeout:     cfg.InactivityTimeoutDuration(),
		WarningWindow:   cfg.WarningDuration(),
		TickInterval:    cfg.TickDuration(),
		FreshnessWindow: cfg.FreshnessDuration(),
	}, inactivity.Deps{
		Clock:      deps.Clock,
		Channel:    deps.Channel,
		Terminator: s.terminator,
		Pinger:     s.heartbeat,
		Presenter:  deps.Presenter,
		Log:        log.WithField("component", "guard"),
	})
	if err != nil {
		return nil, err
	}
	s.guard = g

	s.tracker = activity.NewTracker(g, cfg.DebounceDuration(), deps.Clock.Now,
		log.WithField("component", "activity"))

	s.terminator.Register(s.guard, s.tracker, s.heartbeat, terminator.StopperFunc(s.unsubscribeAll))
	return s, nil
}

// Start mounts the guard: it listens for other contexts, announces the
// session on the channel and runs the tick and heartbeat loops. It returns
// when ctx is done or the session has ended; either way every timer is
// stopped. A session that already ended, here or in another context, is
// not announced again.
func (s *Session) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		<-ctx.Done()
		return nil
	}
	defer s.Close()

	s.subscribe(ctx)
	if !s.announce(ctx) {
		return nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.guard.Run(gctx)
	})
	eg.Go(func() error {
		return s.heartbeat.Run(gctx)
	})
	eg.Go(func() error {
		select {
		case <-s.terminator.Done():
		case <-gctx.Done():
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	s.log.Debug("Inactivity guard unmounted")
	return nil
}

func (s *Session) announce(ctx context.Context) bool {
	select {
	case <-s.terminator.Done():
		return false
	default:
	}

	value, ok, err := s.channel.Get(ctx, channel.KeySessionActive)
	if err != nil {
		s.log.WithError(err).Debug("Shared storage unavailable, running without cross-context sync")
	} else if ok {
		if active, derr := channel.DecodeBool(value); derr == nil && !active {
			s.log.Info("Session already ended in another context")
			s.terminator.Terminate(ctx, terminator.ReasonRemoteLogout)
			return false
		}
	}

	s.guard.Announce(ctx)
	return true
}

func (s *Session) subscribe(ctx context.Context) {
	handler := func(u channel.Update) {
		s.guard.HandleUpdate(ctx, u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes = append(s.unsubscribes,
		s.channel.Subscribe(channel.KeyLastActivity, handler),
		s.channel.Subscribe(channel.KeySessionActive, handler),
	)
}

func (s *Session) unsubscribeAll() {
	s.mu.Lock()
	unsubscribes := s.unsubscribes
	s.unsubscribes = nil
	s.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}

// Observe feeds one raw input event to the activity tracker.
func (s *Session) Observe(evt activity.Event) {
	if s.tracker != nil {
		s.tracker.Observe(evt)
	}
}

// ScanInput reads user input from r until it is exhausted or ctx is done.
// The lines "extend" and "logout" act on the warning modal; anything else is
// activity.
func (s *Session) ScanInput(ctx context.Context, r io.Reader) error {
	if s.tracker == nil {
		return nil
	}
	return activity.ScanInput(ctx, r, s.tracker, map[string]func(){
		"extend": s.ExtendSession,
		"logout": s.ForceLogout,
	})
}

func (s *Session) View() View {
	if s.guard == nil {
		return View{}
	}
	return s.guard.View()
}

// ExtendSession is the warning modal's "stay signed in" action.
func (s *Session) ExtendSession() {
	if s.guard != nil {
		s.guard.Extend(context.Background())
	}
}

// ForceLogout ends the session at the user's request.
func (s *Session) ForceLogout() {
	s.terminator.Terminate(context.Background(), terminator.ReasonManual)
}

// Done is closed once the session has been terminated.
func (s *Session) Done() <-chan struct{} {
	return s.terminator.Done()
}

func (s *Session) TerminationReason() terminator.Reason {
	return s.terminator.Reason()
}

// Close unmounts the guard without ending the session: timers stop and the
// channel subscription is dropped, but nothing is published or reported.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.tracker != nil {
			s.tracker.Stop()
		}
		if s.guard != nil {
			s.guard.Stop()
		}
		if s.heartbeat != nil {
			s.heartbeat.Stop()
		}
		s.unsubscribeAll()
	})
}
