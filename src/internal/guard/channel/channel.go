// Package channel lets independent console contexts (browser tabs, headless
// guards) of one authenticated session observe each other's writes to a
// small set of keys.
//
// Delivery is asynchronous and best-effort. Updates for a key reach a
// subscriber in write order, but nothing is promised across keys, and a
// context never sees its own writes. Consumers must be level-triggered and
// tolerate duplicates.
package channel

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type Key string

const (
	KeyLastActivity  Key = "lastActivity"
	KeySessionActive Key = "sessionActive"
)

// Update is one observed change. Present is false when the key was cleared.
type Update struct {
	Key     Key
	Value   string
	Present bool
}

type Handler func(Update)

type Channel interface {
	Publish(ctx context.Context, key Key, value string) error
	Clear(ctx context.Context, key Key) error
	Get(ctx context.Context, key Key) (string, bool, error)
	Subscribe(key Key, handler Handler) (unsubscribe func())
	Close() error
}

// EncodeInstant renders t as epoch milliseconds.
func EncodeInstant(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func DecodeInstant(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}

func EncodeBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// DecodeBool accepts only the two literal encodings.
func DecodeBool(value string) (bool, error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}
