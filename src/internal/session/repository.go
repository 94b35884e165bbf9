package session

import (
	"context"
	"errors"
	"time"

	"handyhub-admin-console/src/clients"
	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type repository struct {
	collection *mongo.Collection
}

type Repository interface {
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateActivity(ctx context.Context, sessionID string, at time.Time) error
	FindNewerActive(ctx context.Context, current *models.Session, now time.Time) (*models.Session, error)
	RecordLogoutReason(ctx context.Context, sessionID, reason string) error
	Deactivate(ctx context.Context, sessionID, reason string, at time.Time) error
}

func NewSessionRepository(db *clients.MongoDB, collectionName string) Repository {
	return newRepository(db.Database.Collection(collectionName))
}

func newRepository(collection *mongo.Collection) Repository {
	return &repository{collection: collection}
}

func (r *repository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	filter := bson.M{"session_id": sessionID}

	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to get session")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

func (r *repository) UpdateActivity(ctx context.Context, sessionID string, at time.Time) error {
	filter := bson.M{
		"session_id": sessionID,
		"is_active":  true,
	}

	update := bson.M{
		"$set": bson.M{
			"last_active_at": at,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to update session activity")
		return models.ErrSessionUpdating
	}

	return nil
}

// FindNewerActive returns the most recently created usable session of the
// same user that started after current, or nil when there is none.
func (r *repository) FindNewerActive(ctx context.Context, current *models.Session, now time.Time) (*models.Session, error) {
	filter := bson.M{
		"user_id":    current.UserID,
		"session_id": bson.M{"$ne": current.SessionID},
		"is_active":  true,
		"logout_at":  bson.M{"$exists": false},
		"expires_at": bson.M{"$gt": now},
		"created_at": bson.M{"$gt": current.CreatedAt},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var other models.Session
	err := r.collection.FindOne(ctx, filter, opts).Decode(&other)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		logrus.WithError(err).WithField("user_id", current.UserID).Error("Failed to look up other sessions")
		return nil, models.ErrDatabaseQuery
	}

	return &other, nil
}

func (r *repository) RecordLogoutReason(ctx context.Context, sessionID, reason string) error {
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$set": bson.M{
			"logout_reason": reason,
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to record logout reason")
		return models.ErrDatabaseUpdate
	}
	if res.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

func (r *repository) Deactivate(ctx context.Context, sessionID, reason string, at time.Time) error {
	filter := bson.M{
		"session_id": sessionID,
		"is_active":  true,
	}
	update := bson.M{
		"$set": bson.M{
			"is_active":     false,
			"logout_at":     at,
			"logout_reason": reason,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to deactivate session")
		return models.ErrDatabaseUpdate
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reason":     reason,
	}).Info("Session deactivated")
	return nil
}
