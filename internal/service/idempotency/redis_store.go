// internal/service/idempotency/redis_store.go
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/redis"
)

const (
	claimScriptName   = "idempotency_claim"
	releaseScriptName = "idempotency_release"
	pendingMarker     = "__pending__"
	maxKeyLength      = 128
)

// 已存在则返回原值，否则写入占位符并返回空串
const claimScript = `
local v = redis.call('GET', KEYS[1])
if v then
  return v
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return ''
`

// 只删除仍处于占位状态的键，避免误删已完成的记录
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisStore 以 Redis 记录 Idempotency-Key 到已创建资源 id 的映射。
// 键按调用方隔离，不同用户使用相同的 key 互不影响。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if err := client.LoadScriptFromContent(claimScriptName, claimScript); err != nil {
		return nil, fmt.Errorf("failed to load idempotency claim script: %w", err)
	}
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, fmt.Errorf("failed to load idempotency release script: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(ctx context.Context, scope, key string) (string, error) {
	if len(key) > maxKeyLength {
		return "", apperr.Validation("Idempotency-Key must be at most %d characters", maxKeyLength)
	}
	actor, _ := auth.FromContext(ctx)
	return fmt.Sprintf("idem:%s:{%s}:%s", scope, actor.UserID, key), nil
}

// Claim 首次请求返回空串；已完成返回资源 id；处理中返回 Conflict
func (s *RedisStore) Claim(ctx context.Context, scope, key string) (string, error) {
	k, err := s.key(ctx, scope, key)
	if err != nil {
		return "", err
	}
	res, err := s.client.RunScript(ctx, claimScriptName, []string{k}, pendingMarker, s.ttl.Milliseconds())
	if err != nil {
		return "", errors.Wrapf(err, "claim idempotency key %s", k)
	}
	existing, ok := res.(string)
	if !ok {
		return "", errors.Errorf("unexpected result type from claim script: %T", res)
	}
	if existing == pendingMarker {
		return "", apperr.Conflict(errors.Errorf("request with Idempotency-Key %q is still in flight", key))
	}
	return existing, nil
}

func (s *RedisStore) Complete(ctx context.Context, scope, key, resourceID string) error {
	k, err := s.key(ctx, scope, key)
	if err != nil {
		return err
	}
	if err := s.client.GetClient().Set(ctx, k, resourceID, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "complete idempotency key %s", k)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	k, err := s.key(ctx, scope, key)
	if err != nil {
		return err
	}
	if _, err := s.client.RunScript(ctx, releaseScriptName, []string{k}, pendingMarker); err != nil {
		return errors.Wrapf(err, "release idempotency key %s", k)
	}
	return nil
}
