package console

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"handyhub-admin-console/src/internal/cache"
	"handyhub-admin-console/src/internal/models"
	"handyhub-admin-console/src/internal/session"

	"github.com/sirupsen/logrus"
)

// Caller identifies the authenticated console session making a request.
type Caller struct {
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
}

// EventPublisher receives session lifecycle events.
type EventPublisher interface {
	PublishActivityWithDetails(message models.ActivityMessage) error
}

type Service interface {
	// Heartbeat keeps the session alive. It returns a conflict when a newer
	// active session of the same user exists, and ErrSessionExpired when the
	// session can no longer be used.
	Heartbeat(ctx context.Context, caller Caller, clientTime int64) (*models.SessionConflict, error)
	ReportInactivity(ctx context.Context, caller Caller, req models.InactivityLogoutRequest) error
	// Logout ends the session and returns the sign-in redirect.
	Logout(ctx context.Context, caller Caller) (string, error)
}

type service struct {
	repo       session.Repository
	cache      cache.Service
	events     EventPublisher
	signInPath string
	now        func() time.Time
}

func NewService(repo session.Repository, cacheService cache.Service, events EventPublisher, signInPath string) Service {
	if signInPath == "" {
		signInPath = "/sign-in"
	}
	return &service{
		repo:       repo,
		cache:      cacheService,
		events:     events,
		signInPath: signInPath,
		now:        time.Now,
	}
}

func (s *service) Heartbeat(ctx context.Context, caller Caller, clientTime int64) (*models.SessionConflict, error) {
	now := s.now()
	log := logrus.WithFields(logrus.Fields{
		"user_id":    caller.UserID,
		"session_id": caller.SessionID,
	})

	current, err := s.repo.GetByID(ctx, caller.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, models.ErrSessionExpired
		}
		return nil, err
	}
	if !current.Usable(now) {
		return nil, models.ErrSessionExpired
	}

	other, err := s.repo.FindNewerActive(ctx, current, now)
	if err != nil {
		return nil, err
	}
	if other != nil {
		conflict := &models.SessionConflict{
			Error:          models.SignInReasonConflict,
			SecurityAlert:  other.IPAddress != current.IPAddress || other.UserAgent != current.UserAgent,
			OtherSessionIP: other.IPAddress,
			OtherUserAgent: other.UserAgent,
		}
		log.WithFields(logrus.Fields{
			"other_session_id": other.SessionID,
			"security_alert":   conflict.SecurityAlert,
		}).Warn("Heartbeat from a superseded session")

		action := models.ActionSessionConflict
		if conflict.SecurityAlert {
			action = models.ActionSecurityAlertSent
		}
		s.publish(caller, models.ServiceConsoleHeartbeat, action, map[string]string{
			"other_session_id": other.SessionID,
		})
		return conflict, nil
	}

	if err := s.cache.UpdateSessionActivity(ctx, caller.UserID, caller.SessionID, now); err != nil {
		log.WithError(err).Warn("Failed to slide cached session")
	}
	if err := s.repo.UpdateActivity(ctx, caller.SessionID, now); err != nil {
		return nil, err
	}

	s.publish(caller, models.ServiceConsoleHeartbeat, models.ActionHeartbeat, map[string]string{
		"client_time": strconv.FormatInt(clientTime, 10),
	})
	log.Debug("Heartbeat accepted")
	return nil, nil
}

func (s *service) ReportInactivity(ctx context.Context, caller Caller, req models.InactivityLogoutRequest) error {
	if req.Reason != models.ReasonInactivityTimeout {
		return models.ErrInvalidReason
	}

	if err := s.repo.RecordLogoutReason(ctx, caller.SessionID, req.Reason); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    caller.UserID,
		"session_id": caller.SessionID,
		"idle_since": req.Timestamp,
	}).Info("Console session ended by inactivity")

	s.publish(caller, models.ServiceConsoleLogout, models.ActionInactivityLogout, map[string]string{
		"client_time": strconv.FormatInt(req.Timestamp, 10),
	})
	return nil
}

func (s *service) Logout(ctx context.Context, caller Caller) (string, error) {
	reason := models.ReasonUserLogout
	if current, err := s.repo.GetByID(ctx, caller.SessionID); err == nil && current.LogoutReason != "" {
		reason = current.LogoutReason
	} else if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return "", err
	}

	if err := s.repo.Deactivate(ctx, caller.SessionID, reason, s.now()); err != nil {
		return "", err
	}
	if err := s.cache.EvictSession(ctx, caller.UserID, caller.SessionID); err != nil {
		logrus.WithError(err).WithField("session_id", caller.SessionID).Warn("Failed to evict session from cache")
	}

	s.publish(caller, models.ServiceConsoleLogout, models.ActionLogout, map[string]string{
		"reason": reason,
	})
	return s.redirect(reason), nil
}

// redirect builds the sign-in URL. Only the fixed reason codes are ever
// placed in the query string.
func (s *service) redirect(reason string) string {
	code := models.SignInReasonUserLogout
	switch reason {
	case models.ReasonInactivityTimeout:
		code = models.SignInReasonInactivity
	case models.ReasonSessionConflict:
		code = models.SignInReasonConflict
	}
	return s.signInPath + "?" + url.Values{"reason": {code}}.Encode()
}

func (s *service) publish(caller Caller, serviceName, action string, metadata map[string]string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishActivityWithDetails(models.ActivityMessage{
		UserID:      caller.UserID,
		SessionID:   caller.SessionID,
		ServiceName: serviceName,
		Action:      action,
		IPAddress:   caller.IPAddress,
		UserAgent:   caller.UserAgent,
		Metadata:    metadata,
		Timestamp:   s.now(),
	})
	if err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to publish session event")
	}
}
