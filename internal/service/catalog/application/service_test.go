package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"dianping/internal/pkg/cache"
	redispkg "dianping/internal/pkg/redis"
	"dianping/internal/service/catalog/domain"
)

// fakeShopRepo 是 ShopRepository 的内存实现，记录回源次数。
type fakeShopRepo struct {
	mu    sync.Mutex
	shops map[int64]*domain.Shop
	loads int32
}

func newFakeShopRepo(shops ...*domain.Shop) *fakeShopRepo {
	m := make(map[int64]*domain.Shop)
	for _, s := range shops {
		m[s.ID] = s
	}
	return &fakeShopRepo{shops: m}
}

func (r *fakeShopRepo) FindByID(ctx context.Context, id int64) (*domain.Shop, error) {
	atomic.AddInt32(&r.loads, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shops[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *fakeShopRepo) Update(ctx context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *shop
	r.shops[shop.ID] = &copied
	return nil
}

func newTestShopService(t *testing.T, shops ...*domain.Shop) (*ShopService, *fakeShopRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := redispkg.Wrap(rdb)

	pool := cache.NewRebuildPool(2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	repo := newFakeShopRepo(shops...)
	return NewShopService(cache.NewClient(client, pool), repo), repo, mr
}

func TestQueryShopByIDCachesResult(t *testing.T) {
	svc, repo, _ := newTestShopService(t, &domain.Shop{ID: 1, Name: "海底捞"})
	ctx := context.Background()

	shop, err := svc.QueryShopByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "海底捞", shop.Name)

	// 第二次读命中缓存，不再回源
	_, err = svc.QueryShopByID(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&repo.loads))
}

func TestQueryShopByIDUnknownIDDoesNotPenetrate(t *testing.T) {
	svc, repo, _ := newTestShopService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.QueryShopByID(ctx, 404)
		require.ErrorIs(t, err, domain.ErrShopNotFound)
	}
	// 空值标记挡住了后续查询，只回源一次
	require.EqualValues(t, 1, atomic.LoadInt32(&repo.loads))
}

func TestUpdateShopInvalidatesCache(t *testing.T) {
	svc, _, mr := newTestShopService(t, &domain.Shop{ID: 1, Name: "海底捞"})
	ctx := context.Background()

	_, err := svc.QueryShopByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists("cache:shop:1"))

	// 先写库再删缓存
	require.NoError(t, svc.UpdateShop(ctx, &domain.Shop{ID: 1, Name: "海底捞（新店）"}))
	require.False(t, mr.Exists("cache:shop:1"))

	shop, err := svc.QueryShopByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "海底捞（新店）", shop.Name)
}

func TestHotShopRequiresWarmup(t *testing.T) {
	svc, _, _ := newTestShopService(t, &domain.Shop{ID: 1, Name: "海底捞"})

	// 未预热的 key 是独立的异常状态，不会退化成同步查库
	_, err := svc.QueryHotShopByID(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrShopNotFound)
}

func TestHotShopServesStaleWhileRebuilding(t *testing.T) {
	svc, repo, _ := newTestShopService(t, &domain.Shop{ID: 1, Name: "旧名字"})
	ctx := context.Background()

	require.NoError(t, svc.WarmHotShop(ctx, 1))

	// 数据库侧更新，缓存过期后后台重建会看到新值
	require.NoError(t, repo.Update(ctx, &domain.Shop{ID: 1, Name: "新名字"}))

	// 热点缓存 TTL 很短，这里直接等它逻辑过期
	time.Sleep(10 * time.Millisecond)
	svcExpireHotShop(t, svc, 1)

	// 过期读仍然立刻返回旧值
	shop, err := svc.QueryHotShopByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "旧名字", shop.Name)

	// 后台重建完成后读到新值
	require.Eventually(t, func() bool {
		s, err := svc.QueryHotShopByID(ctx, 1)
		return err == nil && s.Name == "新名字"
	}, 3*time.Second, 20*time.Millisecond)
}

// svcExpireHotShop 把热点缓存条目改写成已过期的形态。
func svcExpireHotShop(t *testing.T, svc *ShopService, id int64) {
	t.Helper()
	shop, err := svc.shopRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	// 用旧名字写一个已过期的条目，模拟时间流逝
	stale := *shop
	stale.Name = "旧名字"
	require.NoError(t, svc.cacheClient.SetWithLogicalExpire(context.Background(),
		hotShopKeyPrefix+formatID(id), &stale, -time.Second))
}
