package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const lockPrefix = "photo-bot:owner-lock:"

// RedisLocker serializes work per owner across instances with a redsync mutex.
type RedisLocker struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisLocker(ctx context.Context, redisURL string, ttl time.Duration, log zerolog.Logger) (*RedisLocker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url must be provided")
	}
	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	logger := log.With().Str("component", "redis-locker").Logger()
	logger.Info().Dur("ttl", ttl).Msg("connected to redis for owner locks")
	return &RedisLocker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		log:    logger,
	}, nil
}

func (r *RedisLocker) WithLock(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error {
	const retryDelay = 100 * time.Millisecond
	mutex := r.rs.NewMutex(LockName(ownerID),
		redsync.WithExpiry(r.ttl),
		redsync.WithRetryDelay(retryDelay),
		redsync.WithTries(int(r.ttl/retryDelay)+1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire lock for owner %s: %w", ownerID, err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			r.log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to unlock owner mutex")
		}
	}()

	return fn(ctx)
}

// Ping checks the redis connection.
func (r *RedisLocker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

// LockName returns the redis key guarding ownerID.
func LockName(ownerID string) string {
	return lockPrefix + ownerID
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses provided")
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}
	return opts, nil
}
