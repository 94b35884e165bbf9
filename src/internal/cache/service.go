package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const sessionKeyPattern = "session:%s:%s" // session:userID:sessionID

type Service interface {
	GetActiveSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	UpdateSessionActivity(ctx context.Context, userID, sessionID string, at time.Time) error
	CacheActiveSession(ctx context.Context, session *models.Session) error
	EvictSession(ctx context.Context, userID, sessionID string) error
}

type cacheService struct {
	client redis.UniversalClient
	cfg    *config.CacheConfig
}

func NewCacheService(client redis.UniversalClient, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache}
}

func SessionKey(userID, sessionID string) string {
	return fmt.Sprintf(sessionKeyPattern, userID, sessionID)
}

func (c *cacheService) ttl() time.Duration {
	return time.Duration(c.cfg.SessionExpirationMinutes) * time.Minute
}

// GetActiveSession returns nil without an error when the session is not
// cached.
func (c *cacheService) GetActiveSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	key := SessionKey(userID, sessionID)
	logrus.WithField("key", key).Debug("Getting active session from cache")

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.WithField("key", key).Debug("Session not found in cache")
			return nil, nil
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get session from cache")
		return nil, models.ErrRedisGet
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal session from cache")
		return nil, models.ErrRedisGet
	}

	logrus.WithField("key", key).Debug("Session retrieved from cache successfully")
	return &session, nil
}

// UpdateSessionActivity stamps the cached session with at and slides its TTL.
// A session that is not cached is left alone.
func (c *cacheService) UpdateSessionActivity(ctx context.Context, userID, sessionID string, at time.Time) error {
	key := SessionKey(userID, sessionID)
	logrus.WithField("key", key).Debug("Updating session activity in cache")

	session, err := c.GetActiveSession(ctx, userID, sessionID)
	if err != nil || session == nil {
		return err
	}

	session.LastActiveAt = at

	data, err := json.Marshal(session)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal session for activity update")
		return models.ErrRedisSet
	}

	err = c.client.Set(ctx, key, data, c.ttl()).Err()
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to update session activity")
		return models.ErrRedisSet
	}

	logrus.WithField("key", key).Debug("Session activity updated successfully")
	return nil
}

func (c *cacheService) CacheActiveSession(ctx context.Context, session *models.Session) error {
	key := SessionKey(session.UserID, session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Error("Failed to marshal session for cache")
		return models.ErrRedisSet
	}

	expiration := time.Until(session.LastActiveAt.Add(c.ttl()))
	if expiration <= 0 {
		logrus.WithField("session_id", session.SessionID).Warn("Session already expired, not caching")
		return nil
	}

	err = c.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Error("Failed to cache session")
		return models.ErrRedisSet
	}

	logrus.WithField("session_id", session.SessionID).Debug("Session cached successfully")
	return nil
}

func (c *cacheService) EvictSession(ctx context.Context, userID, sessionID string) error {
	key := SessionKey(userID, sessionID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to evict session from cache")
		return models.ErrRedisDelete
	}

	logrus.WithField("key", key).Debug("Session evicted from cache")
	return nil
}
