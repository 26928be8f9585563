// Package cache provides the byte cache used in front of the user directory.
// "memory" is in-process (go-cache); "redis" is shared between processes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl 0 uses the client default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Kind       string // memory | redis
	DefaultTTL time.Duration
	Prefix     string
	RedisAddr  string
	RedisPass  string
	RedisDB    int
}

func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.DefaultTTL, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown kind %q", cfg.Kind)
	}
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
