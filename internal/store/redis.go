package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client shared by the check-in queue and the rate limiter.
type Redis struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds a client from a host:port address or a redis:// URL.
// It returns nil, nil when addr is empty.
func NewRedis(addr string) (*Redis, error) {
	if addr == "" {
		return nil, nil
	}
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 6 * time.Second // must exceed the queue's BRPOP timeout
	opts.WriteTimeout = 1 * time.Second
	return &Redis{Client: redis.NewClient(opts), addr: opts.Addr}, nil
}

// Addr is the resolved host:port.
func (r *Redis) Addr() string {
	if r == nil {
		return ""
	}
	return r.addr
}

// Healthy verifies redis connectivity. A nil Redis is reported unhealthy.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// WaitReady pings every interval until redis answers or ctx is done.
func (r *Redis) WaitReady(ctx context.Context, interval time.Duration) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis not configured")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := r.Client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		slog.Warn("redis not reachable, retrying", "addr", r.addr, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
