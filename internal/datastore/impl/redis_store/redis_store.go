package redis_store

import (
	"context"
	_ "embed"
	"strconv"
	"strings"
	"time"

	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/metrics"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const ownersSuffix = ":owners"

//go:embed write_entry.lua
var writeEntryScript string

// RedisStore keeps one string key per user entry plus a set of owner ids next to it.
// Writes go through a Lua script so blob and owners change atomically.
type RedisStore struct {
	RedisClient *redis.Client
	Namespace   string

	writeSha string
}

func MakeRedisStore(client *redis.Client, namespace string) (*RedisStore, error) {
	rs := &RedisStore{RedisClient: client, Namespace: namespace}
	if err := rs.loadScript(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RedisStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	defer metrics.BenchmarkMethod(time.Now(), "redis_store.read", nil)
	b, err := rs.RedisClient.WithContext(ctx).Get(rs.entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, datastore.Fail("read", key, err)
	}
	return b, true, nil
}

func (rs *RedisStore) Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error {
	defer metrics.BenchmarkMethod(time.Now(), "redis_store.write", nil)
	keys := []string{rs.entryKey(key), rs.entryKey(key) + ownersSuffix}
	args := make([]interface{}, 0, len(ownerTags)+1)
	args = append(args, string(blob))
	for _, tag := range ownerTags {
		args = append(args, strconv.FormatInt(tag, 10))
	}

	result, err := rs.RedisClient.WithContext(ctx).EvalSha(rs.writeSha, keys, args...).Result()
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		// Script cache was flushed on the server; reload and retry once.
		if err = rs.loadScript(); err == nil {
			result, err = rs.RedisClient.WithContext(ctx).EvalSha(rs.writeSha, keys, args...).Result()
		}
	}
	if err != nil {
		return datastore.Fail("write", key, err)
	}
	resultTuple, ok := result.([]interface{})
	if !ok || len(resultTuple) < 2 || resultTuple[0] == nil {
		return datastore.Fail("write", key, errors.Errorf("unexpected script result %v", result))
	}
	if msg, ok := resultTuple[1].(string); ok {
		log.Debug().Msg(msg)
	}
	return nil
}

// Owners returns the user ids recorded with the last write of key.
func (rs *RedisStore) Owners(ctx context.Context, key string) ([]int64, error) {
	members, err := rs.RedisClient.WithContext(ctx).SMembers(rs.entryKey(key) + ownersSuffix).Result()
	if err != nil {
		return nil, datastore.Fail("owners", key, err)
	}
	owners := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, datastore.Fail("owners", key, err)
		}
		owners = append(owners, id)
	}
	return owners, nil
}

func (rs *RedisStore) loadScript() error {
	sha, err := rs.RedisClient.ScriptLoad(writeEntryScript).Result()
	if err != nil {
		return errors.Wrap(err, "load redis write script")
	}
	rs.writeSha = sha
	return nil
}

func (rs *RedisStore) entryKey(key string) string {
	if rs.Namespace == "" {
		return key
	}
	return rs.Namespace + ":" + key
}
