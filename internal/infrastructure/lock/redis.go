package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLockPrefix = "ledger:lock:student:"

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerConfig holds RedisLocker settings
type RedisLockerConfig struct {
	KeyPrefix      string
	AcquireTimeout time.Duration
	LeaseTTL       time.Duration // expiry of a lock whose holder died
	RetryInterval  time.Duration
}

// RedisLocker serializes commands per student across instances with
// SET NX PX and a token-checked release
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisLockerConfig
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig, logger *zap.Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultLockPrefix
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Acquire polls SET NX until it wins the key or the timeout elapses
func (l *RedisLocker) Acquire(ctx context.Context, studentID uuid.UUID) (func(), error) {
	key := l.cfg.KeyPrefix + studentID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.AcquireTimeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.LeaseTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, conflictError(studentID, l.cfg.AcquireTimeout, ctx.Err())
			}
			return nil, shared.NewStorageError("acquire student lock", err)
		}
		if ok {
			return l.releaser(key, token), nil
		}
		if time.Now().After(deadline) {
			return nil, conflictError(studentID, l.cfg.AcquireTimeout, nil)
		}

		select {
		case <-ctx.Done():
			return nil, conflictError(studentID, l.cfg.AcquireTimeout, ctx.Err())
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

// releaser returns a release func that survives caller cancellation
func (l *RedisLocker) releaser(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			// the lease expires on its own
			l.logger.Warn("failed to release student lock", zap.String("key", key), zap.Error(err))
		}
	}
}
