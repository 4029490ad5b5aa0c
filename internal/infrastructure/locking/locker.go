package locking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Unlock releases a lock obtained from a Locker.
type Unlock func()

// Locker serializes work keyed by account and chain.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Key builds the lock key for one account on one chain.
func Key(account string, chainID uint64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(account), chainID)
}

// LocalLocker serializes holders inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const (
	redisKeyPrefix   = "walletbot:lock:"
	defaultLockTTL   = 10 * time.Minute
	defaultRetryWait = 200 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	TTL       time.Duration
	RetryWait time.Duration
}

// RedisLocker serializes holders across processes sharing one redis.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisLocker(client *redis.Client, cfg RedisConfig) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLockTTL
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &RedisLocker{client: client, cfg: cfg}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := redisKeyPrefix + key
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.cfg.RetryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
