package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimiterPolicy はログイン試行制限の設定です。
type LimiterPolicy struct {
	MaxAttempts  int           // Window 内に許容する失敗回数
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // 上限に達した後のロック期間
}

// DefaultLimiterPolicy は 15 分間に 5 回失敗すると 10 分ロックします。
var DefaultLimiterPolicy = LimiterPolicy{
	MaxAttempts:  5,
	Window:       15 * time.Minute,
	LockDuration: 10 * time.Minute,
}

// withDefaults は 0 以下の項目を DefaultLimiterPolicy の値で補います。
func (p LimiterPolicy) withDefaults() LimiterPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultLimiterPolicy.MaxAttempts
	}
	if p.Window <= 0 {
		p.Window = DefaultLimiterPolicy.Window
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLimiterPolicy.LockDuration
	}
	return p
}

// Limiter はクライアントごとのログイン失敗回数を管理します。
type Limiter interface {
	// Locked はロック中なら残り時間を返します。ロックされていなければ 0 です。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は失敗履歴を消去します。
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// expired は集計期間が終わったか、ロックが明けたかを返します。
// どちらの場合も失敗回数は数え直しになります。
func (s *attemptState) expired(now time.Time, window time.Duration) bool {
	if !s.lockedUntil.IsZero() {
		return !now.Before(s.lockedUntil)
	}
	return !now.Before(s.firstAttempt.Add(window))
}

// MemoryLimiter はプロセス内で試行回数を管理します。
type MemoryLimiter struct {
	policy   LimiterPolicy
	lock     sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

// NewMemoryLimiter は MemoryLimiter を作成します。
func NewMemoryLimiter(policy LimiterPolicy) *MemoryLimiter {
	return &MemoryLimiter{
		policy:   policy.withDefaults(),
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Locked(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (m *MemoryLimiter) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[key]
	if !ok || state.expired(now, m.policy.Window) {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.policy.MaxAttempts {
		state.lockedUntil = now.Add(m.policy.LockDuration)
		state.count = m.policy.MaxAttempts
	}

	return max(m.policy.MaxAttempts-state.count, 0), nil
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

const (
	redisFailurePrefix = "login:fail:"
	redisLockPrefix    = "login:lock:"
)

// RedisLimiter は Redis で試行回数を共有し、複数プロセスで同じ制限をかけます。
// ロックが明けた後は MemoryLimiter と同じく失敗回数を数え直します。
type RedisLimiter struct {
	rdb    *redis.Client
	policy LimiterPolicy
}

// NewRedisLimiter は RedisLimiter を作成します。
func NewRedisLimiter(rdb *redis.Client, policy LimiterPolicy) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, policy: policy.withDefaults()}
}

// NewRedisLimiterFromURL は redis:// 形式の URL から RedisLimiter を作成し、接続を確認します。
func NewRedisLimiterFromURL(ctx context.Context, url string, policy LimiterPolicy) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLimiter(rdb, policy), nil
}

// Close は Redis クライアントを閉じます。
func (r *RedisLimiter) Close() error {
	return r.rdb.Close()
}

func (r *RedisLimiter) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, redisLockPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	failKey := redisFailurePrefix + key

	// カウンターは必ず期限付きで作成し、INCR と同じトランザクションで実行する
	pipe := r.rdb.TxPipeline()
	pipe.SetNX(ctx, failKey, 0, r.policy.Window)
	incr := pipe.Incr(ctx, failKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	count := incr.Val()

	if int(count) >= r.policy.MaxAttempts {
		pipe := r.rdb.TxPipeline()
		pipe.Set(ctx, redisLockPrefix+key, "1", r.policy.LockDuration)
		pipe.Del(ctx, failKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return r.policy.MaxAttempts - int(count), nil
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisFailurePrefix+key, redisLockPrefix+key).Err()
}
