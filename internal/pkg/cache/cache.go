package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis compatible cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	db, _ := strconv.Atoi(env.GetEnv("CACHE_DB", "0"))

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       db,
	})

	if err := Ping(context.Background()); err != nil {
		log.Warnf("[Cache] Could not connect to cache at %s:%s: %v", host, port, err)
	} else {
		log.Infof("[Cache] Connected to cache at %s:%s", host, port)
	}
}

// SetClient replaces the shared client. Used by tests.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Ping checks that the cache answers within two seconds.
func Ping(parent context.Context) error {
	c, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()
	return GetClient().Ping(c).Err()
}

// LimiterStorage exposes the cache server as rate limiter storage on its own
// database. It returns nil when the cache does not answer, which leaves the
// limiter on in-memory counters.
func LimiterStorage(db int) fiber.Storage {
	if err := Ping(context.Background()); err != nil {
		log.Warnf("[Cache] Rate limiter falls back to memory: %v", err)
		return nil
	}

	opts := GetClient().Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: db,
	})
}
