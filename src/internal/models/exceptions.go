package models

import "errors"

var (
	ErrRedisConnection = errors.New("redis connection error")
	ErrRedisGet        = errors.New("redis get error")
	ErrRedisSet        = errors.New("redis set error")
	ErrRedisDelete     = errors.New("redis delete error")
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInactive = errors.New("session inactive")
	ErrSessionConflict = errors.New("another active session exists")
	ErrSessionUpdating = errors.New("error updating session")
)

var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrDatabaseUpdate     = errors.New("database update error")
)

var (
	ErrInvalidGuardConfig = errors.New("invalid guard configuration")
	ErrStorageUnavailable = errors.New("shared storage unavailable")
	ErrChannelClosed      = errors.New("channel closed")
	ErrBackendUnavailable = errors.New("console backend unavailable")
	ErrEventPublish       = errors.New("failed to publish event")
	ErrInvalidReason      = errors.New("unsupported logout reason")
)
