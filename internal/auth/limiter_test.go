package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var testLimiterPolicy = LimiterPolicy{MaxAttempts: 3, Window: time.Minute, LockDuration: 5 * time.Minute}

// limiterBackend は同じシナリオを各実装で実行するための組です。
type limiterBackend struct {
	name    string
	limiter Limiter
	advance func(time.Duration)
}

func newMemoryBackend(t *testing.T, policy LimiterPolicy) limiterBackend {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(policy)
	l.now = clock.now
	return limiterBackend{name: "memory", limiter: l, advance: clock.advance}
}

func newRedisBackend(t *testing.T, policy LimiterPolicy) (limiterBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return limiterBackend{name: "redis", limiter: NewRedisLimiter(rdb, policy), advance: mr.FastForward}, mr
}

func limiterBackends(t *testing.T, policy LimiterPolicy) []limiterBackend {
	t.Helper()
	redisBackend, _ := newRedisBackend(t, policy)
	return []limiterBackend{newMemoryBackend(t, policy), redisBackend}
}

func recordFailures(t *testing.T, l Limiter, key string, n int) int {
	t.Helper()
	var remaining int
	for i := 0; i < n; i++ {
		var err error
		remaining, err = l.RecordFailure(context.Background(), key)
		require.NoError(t, err)
	}
	return remaining
}

func assertLockedFor(t *testing.T, l Limiter, key string, want time.Duration) {
	t.Helper()
	got, err := l.Locked(context.Background(), key)
	require.NoError(t, err)
	assert.InDelta(t, float64(want), float64(got), float64(time.Second), "locked for %s, want %s", got, want)
}

func TestLimiterScenarios(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, b limiterBackend)
	}{
		{
			name: "locks after max attempts",
			run: func(t *testing.T, b limiterBackend) {
				ctx := context.Background()
				for want := 2; want >= 0; want-- {
					remaining, err := b.limiter.RecordFailure(ctx, "1.2.3.4")
					require.NoError(t, err)
					assert.Equal(t, want, remaining)
				}
				assertLockedFor(t, b.limiter, "1.2.3.4", 5*time.Minute)
				assertLockedFor(t, b.limiter, "5.6.7.8", 0)

				b.advance(2 * time.Minute)
				assertLockedFor(t, b.limiter, "1.2.3.4", 3*time.Minute)
			},
		},
		{
			name: "full allowance after lock expires",
			run: func(t *testing.T, b limiterBackend) {
				assert.Equal(t, 0, recordFailures(t, b.limiter, "k", 3))

				b.advance(5*time.Minute + time.Second)
				assertLockedFor(t, b.limiter, "k", 0)

				assert.Equal(t, 2, recordFailures(t, b.limiter, "k", 1))
				assertLockedFor(t, b.limiter, "k", 0)
			},
		},
		{
			name: "window restarts the count",
			run: func(t *testing.T, b limiterBackend) {
				assert.Equal(t, 1, recordFailures(t, b.limiter, "k", 2))

				b.advance(2 * time.Minute)
				assert.Equal(t, 2, recordFailures(t, b.limiter, "k", 1))
			},
		},
		{
			name: "reset clears failures and lock",
			run: func(t *testing.T, b limiterBackend) {
				recordFailures(t, b.limiter, "k", 3)
				assertLockedFor(t, b.limiter, "k", 5*time.Minute)

				require.NoError(t, b.limiter.Reset(context.Background(), "k"))
				assertLockedFor(t, b.limiter, "k", 0)
				assert.Equal(t, 2, recordFailures(t, b.limiter, "k", 1))
			},
		},
	}

	for _, tt := range tests {
		for _, b := range limiterBackends(t, testLimiterPolicy) {
			t.Run(tt.name+"/"+b.name, func(t *testing.T) {
				tt.run(t, b)
			})
		}
	}
}

func TestRedisLimiterCounterAlwaysExpires(t *testing.T) {
	b, mr := newRedisBackend(t, testLimiterPolicy)

	recordFailures(t, b.limiter, "k", 1)
	assert.Equal(t, time.Minute, mr.TTL(redisFailurePrefix+"k"))

	// 2 回目以降の失敗で期限が延びない
	mr.FastForward(30 * time.Second)
	recordFailures(t, b.limiter, "k", 1)
	assert.Equal(t, 30*time.Second, mr.TTL(redisFailurePrefix+"k"))

	recordFailures(t, b.limiter, "k", 1)
	assert.False(t, mr.Exists(redisFailurePrefix+"k"))
	assert.Equal(t, 5*time.Minute, mr.TTL(redisLockPrefix+"k"))
}

func TestNewRedisLimiterFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := NewRedisLimiterFromURL(context.Background(), "redis://"+mr.Addr(), testLimiterPolicy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	remaining, err := l.RecordFailure(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	_, err = NewRedisLimiterFromURL(context.Background(), "not-a-url", testLimiterPolicy)
	assert.Error(t, err)
}

func TestMemoryLimiterDefaultsZeroPolicy(t *testing.T) {
	l := NewMemoryLimiter(LimiterPolicy{})
	assert.Equal(t, DefaultLimiterPolicy, l.policy)

	remaining, err := l.RecordFailure(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimiterPolicy.MaxAttempts-1, remaining)
}
