package impl

import (
	"fmt"

	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/datastore/impl/redis_store"
	"github.com/Shopify/touchbuttons/internal/datastore/impl/sqlite_store"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const defaultRedisNamespace = "TouchButtonConfigs"

// StoreConfig selects and configures a durable backend.
type StoreConfig struct {
	StoreType      string
	RedisAddr      string
	RedisNamespace string
	SQLitePath     string

	// Zero disables the budget for that operation.
	ReadsPerSecond  float64
	WritesPerSecond float64
	Burst           int
}

func MakeMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:  make(map[string][]byte),
		owners: make(map[string][]int64),
	}
}

// A zero rate leaves that operation unlimited.
func MakeBudgetedStore(inner datastore.DataStore, readsPerSec, writesPerSec float64, burst int) *BudgetedStore {
	if burst <= 0 {
		burst = 1
	}
	return &BudgetedStore{
		Inner:       inner,
		ReadBudget:  makeLimiter(readsPerSec, burst),
		WriteBudget: makeLimiter(writesPerSec, burst),
	}
}

func makeLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func MakeRedisClient(addr string) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: addr})
	_, pingErr := redisClient.Ping().Result()
	return redisClient, pingErr
}

// MakeDataStore builds the backend named by cfg.StoreType and wraps it in a budget
// when either rate is set.
func MakeDataStore(cfg StoreConfig) (datastore.DataStore, error) {
	var store datastore.DataStore
	switch cfg.StoreType {
	case "memory":
		store = MakeMemoryStore()
	case "redis":
		client, err := MakeRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "redis at %s failed to respond to ping", cfg.RedisAddr)
		}
		namespace := cfg.RedisNamespace
		if namespace == "" {
			namespace = defaultRedisNamespace
		}
		rs, err := redis_store.MakeRedisStore(client, namespace)
		if err != nil {
			return nil, err
		}
		store = rs
	case "sqlite":
		s, err := sqlite_store.MakeSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("store type must be one of: {memory, redis, sqlite}")
	}
	if cfg.ReadsPerSecond > 0 || cfg.WritesPerSecond > 0 {
		store = MakeBudgetedStore(store, cfg.ReadsPerSecond, cfg.WritesPerSecond, cfg.Burst)
	}
	return store, nil
}
