package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var redisExtendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures the redis lease locker.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	TTL          time.Duration
	PollInterval time.Duration
}

type redisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

// NewRedisLocker returns a Locker backed by redis leases so that several
// processes can share one trigger set. A held lease is extended every ttl/3
// until released; losing it cancels the context returned by Lock.
func NewRedisLocker(cfg RedisConfig, logger *zap.Logger) (Locker, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "triggerpay:lock:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisLocker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		poll:   cfg.PollInterval,
		logger: logger,
	}, nil
}

func (r *redisLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	held, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	extend := func(ctx context.Context) (bool, error) {
		n, err := redisExtendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int64()
		return n == 1, err
	}
	go watchLease(name, r.ttl, extend, cancel, stop, done, r.logger)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(context.Canceled)
			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRelease()
			if err := redisReleaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
				r.logger.Warn("release lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (r *redisLocker) Close() error {
	return r.client.Close()
}

// watchLease extends a held lease every ttl/3. When the lease is gone, or no
// extension has succeeded for a full ttl, lost is called with ErrLeaseLost.
func watchLease(
	name string,
	ttl time.Duration,
	extend func(context.Context) (bool, error),
	lost context.CancelCauseFunc,
	stop <-chan struct{},
	done chan<- struct{},
	logger *zap.Logger,
) {
	defer close(done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	lastExtended := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			ok, err := extend(ctx)
			cancel()
			switch {
			case err != nil && time.Since(lastExtended) < ttl:
				logger.Warn("extend lock failed", zap.String("lock", name), zap.Error(err))
			case err != nil:
				logger.Error("lock lease expired while unreachable", zap.String("lock", name), zap.Error(err))
				lost(ErrLeaseLost)
				return
			case !ok:
				logger.Error("lock lease lost", zap.String("lock", name))
				lost(ErrLeaseLost)
				return
			default:
				lastExtended = time.Now()
			}
		}
	}
}
