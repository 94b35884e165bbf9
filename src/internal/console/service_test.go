package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"handyhub-admin-console/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	newer       *models.Session
	err         error
	activity    map[string]time.Time
	reasons     map[string]string
	deactivated map[string]string
}

func newFakeRepo(sessions ...*models.Session) *fakeRepo {
	r := &fakeRepo{
		sessions:    map[string]*models.Session{},
		activity:    map[string]time.Time{},
		reasons:     map[string]string{},
		deactivated: map[string]string{},
	}
	for _, s := range sessions {
		r.sessions[s.SessionID] = s
	}
	return r
}

func (f *fakeRepo) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepo) UpdateActivity(_ context.Context, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity[sessionID] = at
	return nil
}

func (f *fakeRepo) FindNewerActive(context.Context, *models.Session, time.Time) (*models.Session, error) {
	return f.newer, nil
}

func (f *fakeRepo) RecordLogoutReason(_ context.Context, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	s.LogoutReason = reason
	f.reasons[sessionID] = reason
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, sessionID, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated[sessionID] = reason
	if s, ok := f.sessions[sessionID]; ok {
		s.IsActive = false
	}
	return nil
}

type fakeCache struct {
	slid    []string
	evicted []string
}

func (f *fakeCache) GetActiveSession(context.Context, string, string) (*models.Session, error) {
	return nil, nil
}

func (f *fakeCache) UpdateSessionActivity(_ context.Context, _, sessionID string, _ time.Time) error {
	f.slid = append(f.slid, sessionID)
	return nil
}

func (f *fakeCache) CacheActiveSession(context.Context, *models.Session) error { return nil }

func (f *fakeCache) EvictSession(_ context.Context, _, sessionID string) error {
	f.evicted = append(f.evicted, sessionID)
	return nil
}

type fakeEvents struct {
	messages []models.ActivityMessage
	err      error
}

func (f *fakeEvents) PublishActivityWithDetails(m models.ActivityMessage) error {
	f.messages = append(f.messages, m)
	return f.err
}

func (f *fakeEvents) actions() []string {
	var out []string
	for _, m := range f.messages {
		out = append(out, m.Action)
	}
	return out
}

func currentSession() *models.Session {
	return &models.Session{
		SessionID: "s-1",
		UserID:    "u-1",
		IsActive:  true,
		IPAddress: "198.51.100.4",
		UserAgent: "Firefox",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
}

var caller = Caller{UserID: "u-1", SessionID: "s-1", IPAddress: "198.51.100.4", UserAgent: "Firefox"}

func newTestService(repo *fakeRepo, cache *fakeCache, events *fakeEvents) *service {
	var publisher EventPublisher
	if events != nil {
		publisher = events
	}
	s := NewService(repo, cache, publisher, "/sign-in").(*service)
	s.now = func() time.Time { return now }
	return s
}

func TestHeartbeatSlidesSession(t *testing.T) {
	repo, cache, events := newFakeRepo(currentSession()), &fakeCache{}, &fakeEvents{}
	svc := newTestService(repo, cache, events)

	conflict, err := svc.Heartbeat(context.Background(), caller, now.UnixMilli())
	require.NoError(t, err)
	assert.Nil(t, conflict)

	assert.Equal(t, []string{"s-1"}, cache.slid)
	assert.True(t, repo.activity["s-1"].Equal(now))
	assert.Equal(t, []string{models.ActionHeartbeat}, events.actions())
}

func TestHeartbeatOfExpiredSession(t *testing.T) {
	expired := currentSession()
	expired.ExpiresAt = now.Add(-time.Second)
	inactive := currentSession()
	inactive.IsActive = false

	for name, repo := range map[string]*fakeRepo{
		"expired":  newFakeRepo(expired),
		"inactive": newFakeRepo(inactive),
		"missing":  newFakeRepo(),
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(repo, &fakeCache{}, &fakeEvents{})
			_, err := svc.Heartbeat(context.Background(), caller, 0)
			assert.ErrorIs(t, err, models.ErrSessionExpired)
			assert.Empty(t, repo.activity)
		})
	}
}

func TestHeartbeatConflict(t *testing.T) {
	tests := []struct {
		name      string
		ip        string
		userAgent string
		alert     bool
		action    string
	}{
		{"same device", "198.51.100.4", "Firefox", false, models.ActionSessionConflict},
		{"other address", "203.0.113.7", "Firefox", true, models.ActionSecurityAlertSent},
		{"other browser", "198.51.100.4", "Chrome", true, models.ActionSecurityAlertSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cache, events := newFakeRepo(currentSession()), &fakeCache{}, &fakeEvents{}
			repo.newer = &models.Session{SessionID: "s-2", UserID: "u-1", IPAddress: tt.ip, UserAgent: tt.userAgent}
			svc := newTestService(repo, cache, events)

			conflict, err := svc.Heartbeat(context.Background(), caller, 0)
			require.NoError(t, err)
			require.NotNil(t, conflict)
			assert.Equal(t, tt.alert, conflict.SecurityAlert)
			assert.Equal(t, tt.ip, conflict.OtherSessionIP)
			assert.Equal(t, models.SignInReasonConflict, conflict.Error)
			assert.Empty(t, cache.slid)
			assert.Equal(t, []string{tt.action}, events.actions())
		})
	}
}

func TestHeartbeatDatabaseError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = models.ErrDatabaseQuery

	_, err := newTestService(repo, &fakeCache{}, nil).Heartbeat(context.Background(), caller, 0)
	assert.ErrorIs(t, err, models.ErrDatabaseQuery)
}

func TestReportInactivity(t *testing.T) {
	repo, events := newFakeRepo(currentSession()), &fakeEvents{}
	svc := newTestService(repo, &fakeCache{}, events)

	err := svc.ReportInactivity(context.Background(), caller, models.InactivityLogoutRequest{
		Reason:    models.ReasonInactivityTimeout,
		Timestamp: now.UnixMilli(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ReasonInactivityTimeout, repo.reasons["s-1"])
	require.Len(t, events.messages, 1)
	assert.Equal(t, models.ActionInactivityLogout, events.messages[0].Action)
	assert.Equal(t, models.ServiceConsoleLogout, events.messages[0].ServiceName)
}

func TestReportInactivityRejectsOtherReasons(t *testing.T) {
	repo := newFakeRepo(currentSession())
	svc := newTestService(repo, &fakeCache{}, &fakeEvents{})

	err := svc.ReportInactivity(context.Background(), caller, models.InactivityLogoutRequest{Reason: "<script>"})
	assert.ErrorIs(t, err, models.ErrInvalidReason)
	assert.Empty(t, repo.reasons)
}

func TestLogoutAfterInactivityReport(t *testing.T) {
	repo, cache, events := newFakeRepo(currentSession()), &fakeCache{}, &fakeEvents{}
	svc := newTestService(repo, cache, events)
	ctx := context.Background()

	require.NoError(t, svc.ReportInactivity(ctx, caller, models.InactivityLogoutRequest{Reason: models.ReasonInactivityTimeout}))
	redirect, err := svc.Logout(ctx, caller)
	require.NoError(t, err)

	assert.Equal(t, "/sign-in?reason=session_expired_inactivity", redirect)
	assert.Equal(t, models.ReasonInactivityTimeout, repo.deactivated["s-1"])
	assert.Equal(t, []string{"s-1"}, cache.evicted)
	assert.Equal(t, []string{models.ActionInactivityLogout, models.ActionLogout}, events.actions())
}

func TestLogoutRedirects(t *testing.T) {
	tests := []struct {
		stored   string
		redirect string
	}{
		{"", "/sign-in?reason=user_logout"},
		{models.ReasonSessionConflict, "/sign-in?reason=session_conflict"},
		{"something the server made up", "/sign-in?reason=user_logout"},
	}

	for _, tt := range tests {
		s := currentSession()
		s.LogoutReason = tt.stored
		svc := newTestService(newFakeRepo(s), &fakeCache{}, nil)

		redirect, err := svc.Logout(context.Background(), caller)
		require.NoError(t, err)
		assert.Equal(t, tt.redirect, redirect)
	}
}

func TestLogoutOfUnknownSession(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCache{}, nil)

	redirect, err := svc.Logout(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, "/sign-in?reason=user_logout", redirect)
	assert.Equal(t, models.ReasonUserLogout, repo.deactivated["s-1"])
}

func TestPublishFailureDoesNotFailHeartbeat(t *testing.T) {
	events := &fakeEvents{err: errors.New("broker down")}
	svc := newTestService(newFakeRepo(currentSession()), &fakeCache{}, events)

	_, err := svc.Heartbeat(context.Background(), caller, 0)
	assert.NoError(t, err)
}
