package inactivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"handyhub-admin-console/src/internal/guard/channel"
	"handyhub-admin-console/src/internal/guard/heartbeat"
	"handyhub-admin-console/src/internal/guard/terminator"
	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) At(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

type fakeTerminator struct {
	mu      sync.Mutex
	reasons []terminator.Reason
	onStop  func()
}

func (f *fakeTerminator) Terminate(_ context.Context, reason terminator.Reason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return true
}

func (f *fakeTerminator) calls() []terminator.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]terminator.Reason(nil), f.reasons...)
}

type fakePinger struct {
	mu    sync.Mutex
	pings int
}

func (f *fakePinger) Ping(context.Context) heartbeat.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return heartbeat.OutcomeContinue
}

type fakePresenter struct {
	mu    sync.Mutex
	views []View
}

func (f *fakePresenter) Present(v View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, v)
}

func (f *fakePresenter) last() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.views[len(f.views)-1]
}

func testConfig() Config {
	return Config{
		IdleTimeout:     900 * time.Second,
		WarningWindow:   180 * time.Second,
		TickInterval:    time.Second,
		FreshnessWindow: 5 * time.Second,
	}
}

type fixture struct {
	clock     *fakeClock
	term      *fakeTerminator
	pinger    *fakePinger
	presenter *fakePresenter
	guard     *Guard
}

func newFixture(t *testing.T, ch channel.Channel) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &fakeClock{now: t0},
		term:      &fakeTerminator{},
		pinger:    &fakePinger{},
		presenter: &fakePresenter{},
	}
	g, err := New(testConfig(), Deps{
		Clock:      f.clock,
		Channel:    ch,
		Terminator: f.term,
		Pinger:     f.pinger,
		Presenter:  f.presenter,
		Log:        logrus.NewEntry(logrus.New()),
	})
	require.NoError(t, err)
	f.guard = g
	return f
}

func (f *fixture) tickAt(seconds int) Snapshot {
	f.clock.Set(f.clock.At(seconds))
	return f.guard.Tick(context.Background())
}

func TestEvaluateThresholds(t *testing.T) {
	cfg := testConfig()
	at := func(s int) Snapshot { return Evaluate(cfg, t0, t0.Add(time.Duration(s)*time.Second)) }

	assert.Equal(t, StateActive, at(0).State)
	assert.Equal(t, 900, at(0).RemainingSeconds)

	assert.Equal(t, StateActive, at(719).State)
	assert.Equal(t, 181, at(719).RemainingSeconds)

	assert.Equal(t, StateWarning, at(720).State)
	assert.Equal(t, 180, at(720).RemainingSeconds)

	assert.Equal(t, StateWarning, at(899).State)
	assert.Equal(t, 1, at(899).RemainingSeconds)

	assert.Equal(t, StateExpired, at(900).State)
	assert.Equal(t, 0, at(900).RemainingSeconds)
}

func TestEvaluateClampsNegativeElapsed(t *testing.T) {
	snap := Evaluate(testConfig(), t0, t0.Add(-time.Minute))
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, time.Duration(0), snap.Elapsed)
}

func TestSystemClockHasNoMonotonicReading(t *testing.T) {
	now := SystemClock{}.Now()
	assert.NotContains(t, now.String(), "m=")
	assert.Equal(t, now, now.Round(0))
}

func TestEvaluateIgnoresMonotonicReadings(t *testing.T) {
	cfg := testConfig()
	last := time.Now()
	require.Contains(t, last.String(), "m=")

	for _, elapsed := range []time.Duration{0, 719 * time.Second, 720 * time.Second, 900 * time.Second} {
		now := last.Add(elapsed)
		assert.Equal(t, Evaluate(cfg, last.Round(0), now.Round(0)), Evaluate(cfg, last, now), "elapsed %s", elapsed)
		assert.Equal(t, Evaluate(cfg, last.Round(0), now.Round(0)), Evaluate(cfg, last, now.Round(0)), "elapsed %s", elapsed)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 720*time.Second, cfg.WarningThreshold())

	cfg.WarningWindow = cfg.IdleTimeout
	assert.ErrorIs(t, cfg.Validate(), models.ErrInvalidGuardConfig)

	_, err := New(cfg, Deps{})
	assert.ErrorIs(t, err, models.ErrInvalidGuardConfig)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "WARNING", StateWarning.String())
	assert.Equal(t, "EXPIRED", StateExpired.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}

func TestIdleScenario(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	var warningAt, expiredAt []int
	previous := StateActive
	for s := 1; s <= 1000; s++ {
		snap := f.tickAt(s)
		if snap.State == StateWarning && previous != StateWarning {
			warningAt = append(warningAt, s)
		}
		if snap.State == StateExpired && previous != StateExpired {
			expiredAt = append(expiredAt, s)
		}
		previous = f.guard.State()
	}

	assert.Equal(t, []int{720}, warningAt)
	assert.Equal(t, []int{900}, expiredAt)
	assert.Equal(t, 1, f.guard.onsets())
	assert.Equal(t, []terminator.Reason{terminator.ReasonIdleTimeout}, f.term.calls())
	assert.False(t, f.presenter.last().ShowWarning)
}

func TestWarningViewCountsDown(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	f.tickAt(720)
	assert.Equal(t, View{ShowWarning: true, RemainingSeconds: 180}, f.guard.View())

	f.tickAt(850)
	assert.Equal(t, View{ShowWarning: true, RemainingSeconds: 50}, f.presenter.last())
}

func TestExtendInsideWarning(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	for s := 1; s <= 750; s++ {
		f.tickAt(s)
	}
	require.Equal(t, StateWarning, f.guard.State())

	f.guard.Extend(context.Background())
	assert.Equal(t, StateActive, f.guard.State())
	assert.Equal(t, f.clock.At(750), f.guard.LastActivity())
	assert.Equal(t, 1, f.pinger.pings, "extend sends an out-of-band heartbeat")
	assert.False(t, f.presenter.last().ShowWarning)

	var nextWarning int
	for s := 751; s <= 1500; s++ {
		if f.tickAt(s).State == StateWarning {
			nextWarning = s
			break
		}
	}
	assert.Equal(t, 1470, nextWarning)
	assert.Equal(t, 2, f.guard.onsets())
	assert.Empty(t, f.term.calls())
}

func TestExtendPublishesActivity(t *testing.T) {
	hub := channel.NewHub()
	tab := hub.Join("tab-a")
	other := hub.Join("tab-b")
	defer tab.Close()
	defer other.Close()

	f := newFixture(t, tab)
	f.clock.Set(f.clock.At(30))
	f.guard.Extend(context.Background())

	value, ok, err := other.Get(context.Background(), channel.KeyLastActivity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, channel.EncodeInstant(f.clock.At(30)), value)
}

func TestActivityIgnoredDuringWarning(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	assert.True(t, f.guard.RecordActivity(context.Background(), f.clock.At(100)))
	assert.Equal(t, f.clock.At(100), f.guard.LastActivity())

	f.tickAt(820)
	require.Equal(t, StateWarning, f.guard.State())

	assert.False(t, f.guard.RecordActivity(context.Background(), f.clock.At(821)))
	assert.Equal(t, f.clock.At(100), f.guard.LastActivity())
	assert.Equal(t, StateWarning, f.tickAt(822).State)
}

func TestActivityAfterMissedTicksPastTimeoutTerminates(t *testing.T) {
	f := newFixture(t, channel.Noop{})
	f.tickAt(0)

	f.clock.Set(f.clock.At(1000))
	assert.False(t, f.guard.RecordActivity(context.Background(), f.clock.Now()))
	f.guard.Tick(context.Background())

	assert.Equal(t, StateExpired, f.guard.State())
	assert.Equal(t, t0, f.guard.LastActivity())
	assert.Equal(t, []terminator.Reason{terminator.ReasonIdleTimeout}, f.term.calls())
	assert.False(t, f.presenter.last().ShowWarning)
}

func TestActivityAfterMissedTicksInsideWarningWindowShowsWarning(t *testing.T) {
	f := newFixture(t, channel.Noop{})
	f.tickAt(0)

	f.clock.Set(f.clock.At(800))
	assert.False(t, f.guard.RecordActivity(context.Background(), f.clock.Now()))

	assert.Equal(t, StateWarning, f.guard.State())
	assert.Equal(t, t0, f.guard.LastActivity())
	assert.Equal(t, 1, f.guard.onsets())
	assert.Equal(t, View{ShowWarning: true, RemainingSeconds: 100}, f.presenter.last())

	f.tickAt(801)
	assert.Equal(t, 1, f.guard.onsets(), "the onset is counted once")
	assert.Empty(t, f.term.calls())
}

func TestRecordActivityIsShared(t *testing.T) {
	hub := channel.NewHub()
	tab := hub.Join("tab-a")
	other := hub.Join("tab-b")
	defer tab.Close()
	defer other.Close()
	ctx := context.Background()

	f := newFixture(t, tab)
	f.clock.Set(f.clock.At(12))
	require.True(t, f.guard.RecordActivity(ctx, f.clock.At(12)))

	value, ok, err := other.Get(ctx, channel.KeyLastActivity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, channel.EncodeInstant(f.clock.At(12)), value)

	flag, ok, err := other.Get(ctx, channel.KeySessionActive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, channel.EncodeBool(true), flag)

	f.tickAt(800)
	assert.False(t, f.guard.RecordActivity(ctx, f.clock.At(800)))
	value, _, _ = other.Get(ctx, channel.KeyLastActivity)
	assert.Equal(t, channel.EncodeInstant(f.clock.At(12)), value)
}

func TestNothingPublishedAfterStop(t *testing.T) {
	hub := channel.NewHub()
	tab := hub.Join("tab-a")
	other := hub.Join("tab-b")
	defer tab.Close()
	defer other.Close()
	ctx := context.Background()

	f := newFixture(t, tab)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := 1; s <= 500; s++ {
			f.guard.RecordActivity(ctx, f.clock.At(s))
			f.guard.Extend(ctx)
		}
	}()

	// Same order as the terminator: stop first, then end the session.
	f.guard.Stop()
	require.NoError(t, other.Publish(ctx, channel.KeySessionActive, channel.EncodeBool(false)))
	<-done

	flag, ok, err := other.Get(ctx, channel.KeySessionActive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, channel.EncodeBool(false), flag)
}

func TestLastActivityIsMonotonic(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	sequence := []int{10, 5, 20, 20, 15, 40, 1}
	var observed []time.Time
	for _, s := range sequence {
		f.guard.RecordActivity(context.Background(), f.clock.At(s))
		observed = append(observed, f.guard.LastActivity())
		f.clock.Set(f.clock.At(s))
		f.guard.Extend(context.Background())
		observed = append(observed, f.guard.LastActivity())
	}

	for i := 1; i < len(observed); i++ {
		assert.False(t, observed[i].Before(observed[i-1]), "step %d went backwards", i)
	}
	assert.Equal(t, f.clock.At(40), f.guard.LastActivity())
}

func TestRemoteActivityWithinFreshnessWindow(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	f.tickAt(800)
	require.Equal(t, StateWarning, f.guard.State())

	f.guard.HandleUpdate(context.Background(), channel.Update{
		Key:     channel.KeyLastActivity,
		Value:   channel.EncodeInstant(f.clock.At(798)),
		Present: true,
	})

	assert.Equal(t, StateActive, f.guard.State())
	assert.Equal(t, f.clock.At(798), f.guard.LastActivity())
	assert.Equal(t, StateActive, f.tickAt(801).State)
}

func TestRemoteActivityRejected(t *testing.T) {
	tests := []struct {
		name   string
		update channel.Update
	}{
		{"stale", channel.Update{Key: channel.KeyLastActivity, Value: channel.EncodeInstant(t0.Add(790 * time.Second)), Present: true}},
		{"older than local", channel.Update{Key: channel.KeyLastActivity, Value: channel.EncodeInstant(t0.Add(-time.Second)), Present: true}},
		{"cleared", channel.Update{Key: channel.KeyLastActivity}},
		{"malformed", channel.Update{Key: channel.KeyLastActivity, Value: "soon", Present: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, channel.Noop{})
			f.tickAt(800)

			f.guard.HandleUpdate(context.Background(), tt.update)

			assert.Equal(t, StateWarning, f.guard.State())
			assert.Equal(t, t0, f.guard.LastActivity())
		})
	}
}

func TestRemoteActivityFromTheFutureIsClamped(t *testing.T) {
	f := newFixture(t, channel.Noop{})
	f.clock.Set(f.clock.At(60))

	f.guard.HandleUpdate(context.Background(), channel.Update{
		Key:     channel.KeyLastActivity,
		Value:   channel.EncodeInstant(f.clock.At(3600)),
		Present: true,
	})

	assert.Equal(t, f.clock.At(60), f.guard.LastActivity())
}

func TestRemoteLogoutExpiresImmediately(t *testing.T) {
	f := newFixture(t, channel.Noop{})
	f.tickAt(10)

	f.guard.HandleUpdate(context.Background(), channel.Update{Key: channel.KeySessionActive, Value: "false", Present: true})
	f.guard.HandleUpdate(context.Background(), channel.Update{Key: channel.KeySessionActive, Value: "false", Present: true})

	assert.Equal(t, StateExpired, f.guard.State())
	assert.Equal(t, []terminator.Reason{terminator.ReasonRemoteLogout}, f.term.calls())

	f.tickAt(2000)
	assert.Len(t, f.term.calls(), 1)
}

func TestSessionFlagTrueAndAbsentIgnored(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	f.guard.HandleUpdate(context.Background(), channel.Update{Key: channel.KeySessionActive, Value: "true", Present: true})
	f.guard.HandleUpdate(context.Background(), channel.Update{Key: channel.KeySessionActive})

	assert.Equal(t, StateActive, f.guard.State())
	assert.Empty(t, f.term.calls())
}

func TestStopPreventsSideEffects(t *testing.T) {
	f := newFixture(t, channel.Noop{})

	f.guard.Stop()
	f.guard.Stop()

	f.tickAt(5000)
	f.guard.Extend(context.Background())
	f.guard.HandleUpdate(context.Background(), channel.Update{Key: channel.KeySessionActive, Value: "false", Present: true})

	assert.False(t, f.guard.RecordActivity(context.Background(), f.clock.At(5001)))
	assert.Empty(t, f.term.calls())
	assert.Zero(t, f.pinger.pings)
}

func TestRunExitsOnExpiry(t *testing.T) {
	clock := &fakeClock{now: t0}
	term := &fakeTerminator{}
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond

	g, err := New(cfg, Deps{Clock: clock, Terminator: term, Log: logrus.NewEntry(logrus.New())})
	require.NoError(t, err)

	clock.Set(t0.Add(cfg.IdleTimeout))
	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after expiry")
	}
	assert.Equal(t, []terminator.Reason{terminator.ReasonIdleTimeout}, term.calls())
}

func TestRunExitsOnStop(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	g, err := New(cfg, Deps{Log: logrus.NewEntry(logrus.New())})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	g.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
