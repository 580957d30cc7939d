package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	redispkg "dianping/internal/pkg/redis"
)

type testShop struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *Client, *RebuildPool) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	pool := NewRebuildPool(4)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return mr, NewClient(redispkg.Wrap(rdb), pool), pool
}

func TestPassThroughLoadsAndCaches(t *testing.T) {
	_, c, _ := newTestCache(t)
	ctx := context.Background()

	var loads int32
	loader := func(ctx context.Context, id string) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return &testShop{ID: 1, Name: "tea house"}, nil
	}

	var got testShop
	require.NoError(t, c.QueryWithPassThrough(ctx, "cache:shop:", "1", &got, loader, time.Minute))
	require.Equal(t, "tea house", got.Name)

	// 第二次命中缓存，loader 不再被调用
	var again testShop
	require.NoError(t, c.QueryWithPassThrough(ctx, "cache:shop:", "1", &again, loader, time.Minute))
	require.Equal(t, "tea house", again.Name)
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestPassThroughCachesNullMarker(t *testing.T) {
	mr, c, _ := newTestCache(t)
	ctx := context.Background()

	var loads int32
	absent := func(ctx context.Context, id string) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return nil, nil
	}

	var got testShop
	for i := 0; i < 5; i++ {
		err := c.QueryWithPassThrough(ctx, "cache:shop:", "404", &got, absent, time.Minute)
		require.ErrorIs(t, err, ErrNotFound)
	}
	// 空值标记窗口内 loader 只回源一次
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))

	// 标记过期后允许再次回源
	mr.FastForward(nullTTL + time.Second)
	err := c.QueryWithPassThrough(ctx, "cache:shop:", "404", &got, absent, time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualValues(t, 2, atomic.LoadInt32(&loads))
}

func TestLogicalExpireMissingKeyIsDistinctState(t *testing.T) {
	_, c, _ := newTestCache(t)

	var got testShop
	err := c.QueryWithLogicalExpire(context.Background(), "cache:shop:hot:", "7", &got,
		func(ctx context.Context, id string) (interface{}, error) {
			t.Fatal("loader must not run on a cold key")
			return nil, nil
		}, time.Minute)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestLogicalExpireFreshValue(t *testing.T) {
	_, c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:shop:hot:7", &testShop{ID: 7, Name: "noodles"}, time.Minute))

	var got testShop
	err := c.QueryWithLogicalExpire(ctx, "cache:shop:hot:", "7", &got,
		func(ctx context.Context, id string) (interface{}, error) {
			t.Fatal("loader must not run while the entry is fresh")
			return nil, nil
		}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "noodles", got.Name)
}

func TestLogicalExpireReturnsStaleAndRebuilds(t *testing.T) {
	_, c, _ := newTestCache(t)
	ctx := context.Background()

	// 负 TTL 写入一个已经过期的条目
	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:shop:hot:7", &testShop{ID: 7, Name: "stale"}, -time.Second))

	var loads int32
	loader := func(ctx context.Context, id string) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return &testShop{ID: 7, Name: "rebuilt"}, nil
	}

	// 过期读立刻返回陈旧值，不阻塞等待重建
	var got testShop
	require.NoError(t, c.QueryWithLogicalExpire(ctx, "cache:shop:hot:", "7", &got, loader, time.Minute))
	require.Equal(t, "stale", got.Name)

	// 后台重建完成后读到新值
	require.Eventually(t, func() bool {
		var fresh testShop
		if err := c.QueryWithLogicalExpire(ctx, "cache:shop:hot:", "7", &fresh, loader, time.Minute); err != nil {
			return false
		}
		return fresh.Name == "rebuilt"
	}, 3*time.Second, 20*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestLogicalExpireSingleRebuildUnderConcurrency(t *testing.T) {
	_, c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithLogicalExpire(ctx, "cache:shop:hot:7", &testShop{ID: 7, Name: "stale"}, -time.Second))

	var loads int32
	loader := func(ctx context.Context, id string) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(50 * time.Millisecond) // 拉长重建窗口，给并发读者制造竞争机会
		return &testShop{ID: 7, Name: "rebuilt"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got testShop
			err := c.QueryWithLogicalExpire(ctx, "cache:shop:hot:", "7", &got, loader, time.Minute)
			require.NoError(t, err)
			// 每个读者要么陈旧要么新鲜，但都立刻拿到值
			require.NotEmpty(t, got.Name)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		var fresh testShop
		if err := c.QueryWithLogicalExpire(ctx, "cache:shop:hot:", "7", &fresh, loader, time.Minute); err != nil {
			return false
		}
		return fresh.Name == "rebuilt"
	}, 3*time.Second, 20*time.Millisecond)
	// 重建锁保证同一个 key 至多一个在途重建
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestRebuildPoolShutdownDrains(t *testing.T) {
	pool := NewRebuildPool(2)

	var done int32
	ok := pool.TrySubmit(func() {
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&done, 1)
	})
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	require.EqualValues(t, 1, atomic.LoadInt32(&done))

	// 关停后拒绝新任务
	require.False(t, pool.TrySubmit(func() {}))
}
