package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	lease, err := l.TryLock(ctx, "monitor", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Extend(ctx, time.Minute))

	_, err = l.TryLock(ctx, "monitor", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.TryLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrNotAcquired)

	next, err := l.TryLock(ctx, "monitor", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx), "stale release is a no-op")
	require.NoError(t, next.Extend(ctx, time.Minute), "stale release must not free the new holder")
	require.NoError(t, next.Release(ctx))
}

// fakeRedis implements SET NX and the lease scripts against a map.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// run evaluates the release and extend scripts, told apart by their hash.
func (f *fakeRedis) run(sha string, keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case releaseScript.Hash():
		delete(f.values, keys[0])
	case extendScript.Hash():
		f.ttls[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(redis.NewScript(script).Hash(), keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(sha, keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedis_TryLock(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	a := &Redis{client: fake, prefix: "goals:"}
	b := &Redis{client: fake, prefix: "goals:"}

	lease, err := a.TryLock(ctx, "deadline-monitor", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, fake.ttls["goals:deadline-monitor"])

	_, err = b.TryLock(ctx, "deadline-monitor", 5*time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lease.Extend(ctx, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, fake.ttls["goals:deadline-monitor"])

	require.NoError(t, lease.Release(ctx))
	assert.NotContains(t, fake.values, "goals:deadline-monitor")

	_, err = b.TryLock(ctx, "deadline-monitor", 5*time.Minute)
	require.NoError(t, err)
}

func TestRedis_TryLock_releaseKeepsForeignLease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	r := &Redis{client: fake}

	lease, err := r.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)

	// lease expired and another instance took it
	fake.values["k"] = "someone-else"
	fake.ttls["k"] = time.Minute

	assert.ErrorIs(t, lease.Extend(ctx, time.Hour), ErrNotAcquired)
	assert.Equal(t, time.Minute, fake.ttls["k"])
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, "someone-else", fake.values["k"])
}

func TestRedis_TryLock_error(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")
	r := &Redis{client: fake}

	_, err := r.TryLock(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
	assert.Contains(t, err.Error(), "connection refused")
}
