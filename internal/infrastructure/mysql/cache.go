package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	txCacheVersionKey      = "walletbot:tx:version"
	txCacheKeyPrefix       = "walletbot:tx:v"
	balanceCacheVersionKey = "walletbot:balances:version"
	balanceCacheKeyPrefix  = "walletbot:balances:v"
	defaultCacheTTL        = time.Hour
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedRepository serves status API queries from redis. Every write bumps a
// version key so stale result sets are never read again.
type CachedRepository struct {
	*Repository
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(base *Repository, cfg CacheConfig) (*CachedRepository, error) {
	if base == nil {
		return nil, errors.New("base repository is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRepository{Repository: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedRepository(base, client, cfg.TTL), nil
}

func newCachedRepository(base *Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRepository{Repository: base, cache: client, ttl: ttl}
}

func (r *CachedRepository) RecordTransaction(ctx context.Context, record domain.TxRecord) error {
	if err := r.Repository.RecordTransaction(ctx, record); err != nil {
		return err
	}
	r.invalidate(ctx, txCacheVersionKey)
	return nil
}

func (r *CachedRepository) StoreBalances(ctx context.Context, snapshots []domain.BalanceSnapshot) error {
	if err := r.Repository.StoreBalances(ctx, snapshots); err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}
	r.invalidate(ctx, balanceCacheVersionKey)
	return nil
}

func (r *CachedRepository) QueryTransactions(ctx context.Context, filter application.TxFilter) ([]domain.TxRecord, error) {
	return cachedQuery(ctx, r, txCacheVersionKey, func(version string) string {
		return txCacheKey(version, filter)
	}, func() ([]domain.TxRecord, error) {
		return r.Repository.QueryTransactions(ctx, filter)
	})
}

func (r *CachedRepository) QueryBalances(ctx context.Context, filter application.BalanceFilter) ([]domain.BalanceSnapshot, error) {
	return cachedQuery(ctx, r, balanceCacheVersionKey, func(version string) string {
		return balanceCacheKey(version, filter)
	}, func() ([]domain.BalanceSnapshot, error) {
		return r.Repository.QueryBalances(ctx, filter)
	})
}

func (r *CachedRepository) Close() error {
	var cacheErr error
	if r.cache != nil {
		cacheErr = r.cache.Close()
	}
	return errors.Join(r.Repository.Close(), cacheErr)
}

func cachedQuery[T any](ctx context.Context, r *CachedRepository, versionKey string, keyFn func(string) string, load func() ([]T, error)) ([]T, error) {
	if r.cache == nil {
		return load()
	}
	version, ok := r.cacheVersion(ctx, versionKey)
	if !ok {
		return load()
	}
	key := keyFn(version)
	if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
		var out []T
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	out, err := load()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	_ = r.cache.Set(ctx, key, payload, r.ttl).Err()
	return out, nil
}

func (r *CachedRepository) cacheVersion(ctx context.Context, key string) (string, bool) {
	version, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (r *CachedRepository) invalidate(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Incr(ctx, key).Err()
}

func txCacheKey(version string, filter application.TxFilter) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(txCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":chain=")
	writeChain(&b, filter.ChainID)
	b.WriteString(":account=")
	writeOrAny(&b, strings.ToLower(filter.Account))
	b.WriteString(":tx=")
	writeOrAny(&b, strings.ToLower(filter.TxHash))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(normalizeLimit(filter.Limit)))
	return b.String()
}

func balanceCacheKey(version string, filter application.BalanceFilter) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(balanceCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":chain=")
	writeChain(&b, filter.ChainID)
	b.WriteString(":account=")
	writeOrAny(&b, strings.ToLower(filter.Account))
	b.WriteString(":token=")
	writeOrAny(&b, strings.ToUpper(filter.Token))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(normalizeLimit(filter.Limit)))
	return b.String()
}

func writeChain(b *strings.Builder, chainID uint64) {
	if chainID == 0 {
		b.WriteString("all")
		return
	}
	b.WriteString(strconv.FormatUint(chainID, 10))
}

func writeOrAny(b *strings.Builder, value string) {
	if value == "" {
		b.WriteString("any")
		return
	}
	b.WriteString(value)
}
