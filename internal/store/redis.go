package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the client shared by the stage holder and the
// scan audit queue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Namespace prefixes every key; defaults to "rollcall".
	Namespace string
}

// Redis is the client behind staged check-ins and the audit queue. Keys it
// hands out live under one namespace so deployments can share a server.
type Redis struct {
	Client    *redis.Client
	namespace string
}

// NewRedis builds a client with short timeouts; staging sits on the
// check-in path and must fail fast.
func NewRedis(opts RedisOptions) *Redis {
	if opts.Namespace == "" {
		opts.Namespace = "rollcall"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client, namespace: opts.Namespace}
}

// Key joins parts under the namespace, e.g. Key("stage") = "rollcall:stage".
func (r *Redis) Key(parts ...string) string {
	return strings.Join(append([]string{r.namespace}, parts...), ":")
}

// Stages returns a stage holder whose entries expire after ttl.
func (r *Redis) Stages(ttl time.Duration) *RedisStages {
	return NewRedisStages(r.Client, r.Key("stage"), ttl)
}

// Healthy pings the server.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
