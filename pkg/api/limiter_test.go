package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterStore_PerKeyBuckets(t *testing.T) {
	s := NewMemoryLimiterStore()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	policy := LimitPolicy{RPS: 1, Burst: 1}

	ok, err := s.Allow(ctx, "ip:a", policy)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Allow(ctx, "ip:a", policy)
	assert.False(t, ok)
	ok, _ = s.Allow(ctx, "ip:b", policy)
	assert.True(t, ok, "buckets are per key")

	now = now.Add(time.Second)
	ok, _ = s.Allow(ctx, "ip:a", policy)
	assert.True(t, ok, "bucket refills")
}

func TestMemoryLimiterStore_SweepsIdleVisitors(t *testing.T) {
	s := NewMemoryLimiterStore()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	policy := LimitPolicy{RPS: 1, Burst: 1}

	_, _ = s.Allow(ctx, "ip:idle", policy)
	now = now.Add(visitorTTL + 2*time.Minute)
	_, _ = s.Allow(ctx, "ip:active", policy)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.visitors, "ip:idle")
	assert.Contains(t, s.visitors, "ip:active")
}

type fakeScripter struct {
	redis.Scripter
	reply []any
	err   error
	keys  []string
	args  []any
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.keys, f.args = keys, args
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(f.reply)
	return cmd
}

func TestRedisLimiterStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeScripter{reply: []any{int64(1), "4"}}
	s := NewRedisLimiterStoreWithClient(fake)
	s.now = func() time.Time { return time.Unix(1750000000, 0) }

	ok, err := s.Allow(ctx, "sub:officer-1", LimitPolicy{RPS: 2, Burst: 5})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"landguard:ratelimit:sub:officer-1"}, fake.keys)
	assert.Equal(t, []any{2.0, 5, 1, 1750000000.0}, fake.args)

	fake.reply = []any{int64(0), "0.2"}
	ok, err = s.Allow(ctx, "sub:officer-1", LimitPolicy{RPS: 2, Burst: 5})
	require.NoError(t, err)
	assert.False(t, ok)

	fake.reply = []any{"garbage"}
	_, err = s.Allow(ctx, "sub:officer-1", LimitPolicy{RPS: 2, Burst: 5})
	assert.ErrorContains(t, err, "unexpected reply")

	fake.err = errors.New("connection refused")
	_, err = s.Allow(ctx, "sub:officer-1", LimitPolicy{RPS: 2, Burst: 5})
	assert.ErrorContains(t, err, "connection refused")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, LimitPolicy) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(failingLimiter{}, LimitPolicy{RPS: 1, Burst: 1}, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, retryAfter(LimitPolicy{RPS: 10}))
	assert.Equal(t, 1, retryAfter(LimitPolicy{}))
	assert.Equal(t, 4, retryAfter(LimitPolicy{RPS: 0.25}))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "bearer abc.def")
	tok, ok := bearerToken(r)
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)
}
