package clients

import (
	"context"
	"time"

	"handyhub-admin-console/src/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Redis) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.Url)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Url}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.Db

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("addr", opts.Addr).Error("Failed to connect to Redis")
		_ = client.Close()
		return nil, err
	}

	logrus.WithField("addr", opts.Addr).Info("Connected to Redis")
	return &RedisClient{Client: client}, nil
}

func (r *RedisClient) Close() error {
	if err := r.Client.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close Redis client")
		return err
	}
	logrus.Info("Redis client closed")
	return nil
}
