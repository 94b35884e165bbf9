package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"handyhub-admin-console/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisKeyPattern    = "%s:%s:%s"     // prefix:scope:key
	redisEventsPattern = "%s:%s:events" // prefix:scope:events
)

type envelope struct {
	Origin  string `json:"origin"`
	Key     Key    `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// RedisChannel shares keys between contexts of one session scope through
// redis. Values live in plain keys; every write is announced on a pub/sub
// channel tagged with the writer's context id.
//
// Every write is announced, even when the value did not change.
type RedisChannel struct {
	client     redis.UniversalClient
	prefix     string
	scope      string
	contextID  string
	pubsub     *redis.PubSub
	dispatcher *dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// NewRedisChannel subscribes to the scope's event stream before returning.
// A failed subscription is logged and leaves the channel publishing only.
func NewRedisChannel(ctx context.Context, client redis.UniversalClient, prefix, scope, contextID string) *RedisChannel {
	ctx, cancel := context.WithCancel(ctx)
	c := &RedisChannel{
		client:     client,
		prefix:     prefix,
		scope:      scope,
		contextID:  contextID,
		dispatcher: newDispatcher(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.pubsub = client.Subscribe(ctx, c.eventsChannel())
	if _, err := c.pubsub.Receive(ctx); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"scope":      scope,
			"context_id": contextID,
		}).Warn("Cross-context subscription unavailable, continuing without it")
	}

	go c.listen(ctx)
	return c
}

func (c *RedisChannel) key(key Key) string {
	return fmt.Sprintf(redisKeyPattern, c.prefix, c.scope, key)
}

func (c *RedisChannel) eventsChannel() string {
	return fmt.Sprintf(redisEventsPattern, c.prefix, c.scope)
}

func (c *RedisChannel) Publish(ctx context.Context, key Key, value string) error {
	return c.write(ctx, envelope{Origin: c.contextID, Key: key, Value: value, Present: true})
}

func (c *RedisChannel) Clear(ctx context.Context, key Key) error {
	return c.write(ctx, envelope{Origin: c.contextID, Key: key})
}

func (c *RedisChannel) write(ctx context.Context, e envelope) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode channel update: %w", err)
	}

	pipe := c.client.TxPipeline()
	if e.Present {
		pipe.Set(ctx, c.key(e.Key), e.Value, 0)
	} else {
		pipe.Del(ctx, c.key(e.Key))
	}
	pipe.Publish(ctx, c.eventsChannel(), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"key":        e.Key,
			"context_id": c.contextID,
		}).Debug("Shared storage write failed")
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *RedisChannel) Get(ctx context.Context, key Key) (string, bool, error) {
	value, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		logrus.WithError(err).WithField("key", key).Debug("Shared storage read failed")
		return "", false, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return value, true, nil
}

func (c *RedisChannel) Subscribe(key Key, handler Handler) func() {
	return c.dispatcher.subscribe(key, handler)
}

func (c *RedisChannel) listen(ctx context.Context) {
	defer close(c.done)
	messages := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var e envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				logrus.WithError(err).Debug("Ignoring malformed channel event")
				continue
			}
			if e.Origin == c.contextID {
				continue
			}
			c.dispatcher.enqueue(Update{Key: e.Key, Value: e.Value, Present: e.Present})
		}
	}
}

func (c *RedisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.pubsub.Close()
		<-c.done
		c.dispatcher.close()
	})
	return err
}
