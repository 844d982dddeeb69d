package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CertFox/internal/pkg/env"
)

const (
	// cacheDB holds the plan catalog and the job queue
	cacheDB = 0
	// limiterDB holds rate limiter counters
	limiterDB = 2
)

var client *redis.Client

// SetupCache initializes the connection to the redis compatible cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       cacheDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient replaces the shared client, used by tests and alternative wiring
func SetClient(c *redis.Client) {
	client = c
}

// Ping reports whether the cache answers.
func Ping(ctx context.Context) error {
	if err := GetClient().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// NewLimiterStorage returns fiber storage for the rate limiter on the same
// server as the cache, in a separate database.
func NewLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if c := GetClient(); c != nil {
		if h, p, err := net.SplitHostPort(c.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := c.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDB,
		Reset:    false,
	})
}
