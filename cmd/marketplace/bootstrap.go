package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/freelance-market/internal/config"
	"github.com/jonathan/freelance-market/internal/db"
	"github.com/jonathan/freelance-market/internal/delivery"
)

// env is what every command needs before it touches the store.
type env struct {
	cfg    *config.Config
	policy *config.Policy
	log    *logrus.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	policy, err := config.LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, policy: policy, log: log}, nil
}

// requireDatabaseURL returns DATABASE_URL or an error naming it.
func (e *env) requireDatabaseURL() (string, error) {
	if e.cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return e.cfg.DatabaseURL, nil
}

func (e *env) connect(ctx context.Context) (*db.DB, error) {
	url, err := e.requireDatabaseURL()
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// deliverer always logs, and also publishes to Redis when REDIS_URL is set.
// The returned closer releases the Redis client.
func (e *env) deliverer(ctx context.Context) (delivery.Deliverer, func(), error) {
	logDeliverer := delivery.NewLogDeliverer(e.log)
	if e.cfg.RedisURL == "" {
		return logDeliverer, func() {}, nil
	}

	client, err := delivery.DialRedis(ctx, e.cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	e.log.Info("publishing notifications to redis")
	closer := func() {
		if err := client.Close(); err != nil {
			e.log.WithError(err).Warn("failed to close redis client")
		}
	}
	return delivery.Multi{logDeliverer, delivery.NewRedisDeliverer(client)}, closer, nil
}
