package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"handyhub-admin-console/src/clients"
	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/guard"
	"handyhub-admin-console/src/internal/guard/channel"
	"handyhub-admin-console/src/internal/guard/terminator"
	"handyhub-admin-console/src/internal/middleware"
	"handyhub-admin-console/src/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func runGuard(parent context.Context, cfg *config.Configuration, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contextID := uuid.NewString()
	ch, closeChannel, err := openChannel(ctx, cfg, contextID)
	if err != nil {
		return err
	}
	defer closeChannel()

	session, err := guard.NewSession(cfg.Guard, guard.Deps{
		Backend:   clients.NewConsoleClient(cfg),
		Channel:   ch,
		Navigator: terminator.WriterNavigator{Out: out, BaseURL: cfg.App.HostLink},
		Presenter: &warningPresenter{out: out},
		ContextID: contextID,
	})
	if err != nil {
		return err
	}

	log.WithField("context_id", contextID).Info("Inactivity guard started")

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer stop()
		return session.Start(gctx)
	})
	eg.Go(func() error {
		return session.ScanInput(gctx, in)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	select {
	case <-session.Done():
		log.WithField("reason", session.TerminationReason().String()).Info("Console session ended")
	default:
		log.Info("Inactivity guard stopped")
	}
	return nil
}

// openChannel builds the cross-context channel the config asks for. The redis
// channel is scoped to the session the guard token belongs to; without one
// it is refused.
func openChannel(ctx context.Context, cfg *config.Configuration, contextID string) (channel.Channel, func(), error) {
	if cfg.Guard.Channel != config.ChannelRedis {
		return channel.Noop{}, func() {}, nil
	}

	scope, err := sessionScope(cfg.Guard.Token)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Shared storage unavailable, running without cross-context sync")
		return channel.Noop{}, func() {}, nil
	}
	ch := channel.NewRedisChannel(ctx, redisClient.Client, cfg.Guard.ChannelPrefix, scope, contextID)
	return ch, func() {
		_ = ch.Close()
		_ = redisClient.Close()
	}, nil
}

// sessionScope names the shared keys after the user and session carried by
// the access token. The signature is checked by the backend on every call,
// the guard only needs the claims.
func sessionScope(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: a session token is required for the redis channel", models.ErrInvalidGuardConfig)
	}

	claims := &middleware.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: unreadable session token: %v", models.ErrInvalidGuardConfig, err)
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return "", fmt.Errorf("%w: session token carries no user or session id", models.ErrInvalidGuardConfig)
	}
	return claims.UserID + ":" + claims.SessionID, nil
}

// warningPresenter renders the expiry modal as text: one line when the
// warning appears, every 30 seconds while it counts down, and one when it is
// dismissed.
type warningPresenter struct {
	mu      sync.Mutex
	out     io.Writer
	showing bool
}

func (p *warningPresenter) Present(v guard.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case v.ShowWarning && (!p.showing || v.RemainingSeconds%30 == 0):
		fmt.Fprintf(p.out, "warning: session expires in %ds, type \"extend\" to stay signed in\n", v.RemainingSeconds)
	case !v.ShowWarning && p.showing:
		fmt.Fprintln(p.out, "warning dismissed")
	}
	p.showing = v.ShowWarning
}
