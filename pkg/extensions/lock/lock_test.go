package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_MutualExclusion(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "course-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Empty(t, locker.slots)
}

func TestMemory_IndependentCourses(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "course-a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "course-b")
	require.NoError(t, err)
	unlockB()
}

func TestMemory_ContextCancelled(t *testing.T) {
	locker := NewMemory()
	unlock, err := locker.Lock(context.Background(), "course-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "course-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, locker.slots)
}

// fakeRedis implements SET NX and the release script against a map.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return goredis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) release(keys []string, args []interface{}) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *goredis.BoolSliceCmd {
	return goredis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *goredis.StringCmd {
	return goredis.NewStringResult("sha", nil)
}

func TestRedis_LockAndRelease(t *testing.T) {
	client := newFakeRedis()
	locker := NewRedis(client, time.Minute, WithRetryInterval(time.Millisecond), WithKeyPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "course-1")
	require.NoError(t, err)
	assert.Contains(t, client.values, "test:course-1")
	assert.Equal(t, time.Minute, client.ttls["test:course-1"])

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "course-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.NotContains(t, client.values, "test:course-1")

	unlock2, err := locker.Lock(ctx, "course-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	client := newFakeRedis()
	locker := NewRedis(client, 0)
	assert.Equal(t, DefaultTTL, locker.ttl)

	unlock, err := locker.Lock(context.Background(), "course-1")
	require.NoError(t, err)

	// Simulate expiry followed by another holder.
	client.mu.Lock()
	client.values[defaultKeyPrefix+"course-1"] = "someone-else"
	client.mu.Unlock()

	unlock()
	assert.Equal(t, "someone-else", client.values[defaultKeyPrefix+"course-1"])
}
