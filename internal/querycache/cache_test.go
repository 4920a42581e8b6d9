package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
)

func userGraph() *Graph {
	return NewGraph().
		Provides(domain.QueryLogin, domain.TagUser).
		Provides(domain.QueryGetUserData, domain.TagUser).
		Invalidates(domain.MutationRegister, domain.TagUser)
}

func newCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	c, err := New(userGraph(), opts)
	require.NoError(t, err)
	return c
}

func counter(calls *int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := atomic.AddInt32(calls, 1)
		return value + "#" + string(rune('0'+n)), nil
	}
}

func TestQuery_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryGetUserData, Arg: "tok"}

	var calls int32
	v1, err := Query(ctx, c, key, counter(&calls, "me"))
	require.NoError(t, err)
	v2, err := Query(ctx, c, key, counter(&calls, "me"))
	require.NoError(t, err)
	assert.Equal(t, "me#1", v1)
	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, calls)

	_, err = Mutate(ctx, c, domain.MutationRegister, func(context.Context) (string, error) {
		return "created", nil
	})
	require.NoError(t, err)

	_, stale, ok := c.Peek(key)
	require.True(t, ok)
	assert.True(t, stale)

	v3, err := Query(ctx, c, key, counter(&calls, "me"))
	require.NoError(t, err)
	assert.Equal(t, "me#2", v3)
	assert.EqualValues(t, 2, calls)

	_, stale, _ = c.Peek(key)
	assert.False(t, stale)
}

func TestMutate_FailureInvalidatesNothing(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryLogin, Arg: "tok"}

	var calls int32
	_, err := Query(ctx, c, key, counter(&calls, "login"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = Mutate(ctx, c, domain.MutationRegister, func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	_, stale, ok := c.Peek(key)
	require.True(t, ok)
	assert.False(t, stale)
}

func TestMutate_OnlyAffectedKinds(t *testing.T) {
	ctx := context.Background()
	g := userGraph().Provides("listPlans", domain.TagPlan)
	c, err := New(g, Options{})
	require.NoError(t, err)

	var calls int32
	_, err = Query(ctx, c, Key{Kind: "listPlans"}, counter(&calls, "plans"))
	require.NoError(t, err)
	_, err = Query(ctx, c, Key{Kind: domain.QueryLogin, Arg: "a"}, counter(&calls, "login"))
	require.NoError(t, err)

	_, err = Mutate(ctx, c, domain.MutationRegister, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	_, stale, _ := c.Peek(Key{Kind: "listPlans"})
	assert.False(t, stale)
	_, stale, _ = c.Peek(Key{Kind: domain.QueryLogin, Arg: "a"})
	assert.True(t, stale)
}

func TestQuery_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryGetUserData, Arg: "tok"}

	_, err := Query(ctx, c, key, func(context.Context) (string, error) {
		return "", errors.New("down")
	})
	require.Error(t, err)
	assert.Zero(t, c.Len())

	v, err := Query(ctx, c, key, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestQuery_ConcurrentMissesShareOneFetch(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryGetUserData, Arg: "tok"}

	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "me", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Query(ctx, c, key, fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "me", r)
	}
}

func TestQuery_CancelledCallerDoesNotFailOtherWaiters(t *testing.T) {
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryGetUserData, Arg: "tok"}

	started := make(chan struct{})
	release := make(chan struct{})
	var fetchErr error
	fetch := func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
			return "me", nil
		case <-ctx.Done():
			fetchErr = ctx.Err()
			return "", ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Query(firstCtx, c, key, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := Query(context.Background(), c, key, fetch)
		second <- result{v, err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "me", res.v)
	assert.NoError(t, fetchErr)

	v, stale, ok := c.Peek(key)
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, "me", v)
}

func TestQuery_SharedFetchIsBoundedByFetchTimeout(t *testing.T) {
	c := newCache(t, Options{FetchTimeout: 20 * time.Millisecond})

	_, err := Query(context.Background(), c, Key{Kind: domain.QueryLogin, Arg: "tok"}, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Len())
}

func TestQuery_FetchRacingMutationIsStoredStale(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	key := Key{Kind: domain.QueryGetUserData, Arg: "tok"}

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Query(ctx, c, key, func(context.Context) (string, error) {
			close(started)
			<-release
			return "before-mutation", nil
		})
	}()

	<-started
	_, err := Mutate(ctx, c, domain.MutationRegister, func(context.Context) (bool, error) { return true, nil })
	require.NoError(t, err)
	close(release)
	<-done

	_, stale, ok := c.Peek(key)
	require.True(t, ok)
	assert.True(t, stale)
}

func TestQuery_MaxAge(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{MaxAge: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }
	key := Key{Kind: domain.QueryLogin, Arg: "tok"}

	var calls int32
	_, err := Query(ctx, c, key, counter(&calls, "login"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = Query(ctx, c, key, counter(&calls, "login"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestQuery_ContextCancelled(t *testing.T) {
	c := newCache(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	defer close(release)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Query(ctx, c, Key{Kind: domain.QueryLogin, Arg: "tok"}, func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCache_InvalidateAndForget(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{Size: 8})

	var calls int32
	_, err := Query(ctx, c, Key{Kind: domain.QueryLogin, Arg: "a"}, counter(&calls, "x"))
	require.NoError(t, err)
	_, err = Query(ctx, c, Key{Kind: domain.QueryGetUserData, Arg: "a"}, counter(&calls, "x"))
	require.NoError(t, err)
	_, err = Query(ctx, c, Key{Kind: domain.QueryGetUserData, Arg: "b"}, counter(&calls, "x"))
	require.NoError(t, err)

	assert.Equal(t, 3, c.Invalidate(domain.TagUser))
	assert.Equal(t, 0, c.Invalidate(domain.TagUser))
	assert.Equal(t, 2, c.Forget("a"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_SizeBound(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{Size: 2})

	for _, arg := range []string{"a", "b", "c"} {
		_, err := Query(ctx, c, Key{Kind: domain.QueryLogin, Arg: arg}, func(context.Context) (string, error) {
			return arg, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, _, ok := c.Peek(Key{Kind: domain.QueryLogin, Arg: "a"})
	assert.False(t, ok)
}
