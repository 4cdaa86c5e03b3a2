package token

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryRevoker keeps revocations in process memory. Entries are dropped once
// every token they could affect has expired.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[int64]time.Time
	now     func() time.Time
}

func NewMemoryRevoker(now func() time.Time) *MemoryRevoker {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevoker{
		revoked: make(map[int64]time.Time),
		now:     now,
	}
}

func (m *MemoryRevoker) Revoke(_ context.Context, fileId int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revoked[fileId] = at
	return nil
}

func (m *MemoryRevoker) RevokedAt(_ context.Context, fileId int64) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.revoked[fileId]
	if !ok {
		return time.Time{}, false, nil
	}
	if m.now().Sub(at) > DownloadTTL {
		delete(m.revoked, fileId)
		return time.Time{}, false, nil
	}
	return at, true, nil
}

const redisRevokePrefix = "qfs:revoked:file:"

// RedisRevoker shares revocations between instances through redis. Keys
// expire after DownloadTTL.
type RedisRevoker struct {
	rdb redis.Cmdable
}

func NewRedisRevoker(rdb redis.Cmdable) *RedisRevoker {
	return &RedisRevoker{rdb: rdb}
}

func (r *RedisRevoker) Revoke(ctx context.Context, fileId int64, at time.Time) error {
	key := redisRevokePrefix + strconv.FormatInt(fileId, 10)
	return r.rdb.Set(ctx, key, at.Unix(), DownloadTTL).Err()
}

func (r *RedisRevoker) RevokedAt(ctx context.Context, fileId int64) (time.Time, bool, error) {
	key := redisRevokePrefix + strconv.FormatInt(fileId, 10)
	unix, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}
