package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"dianping/internal/pkg/cache"
	"dianping/internal/pkg/idgen"
	redispkg "dianping/internal/pkg/redis"
	"dianping/internal/service/seckill/domain"
)

// fakeVoucherRepo 是 VoucherRepository 的内存实现。
type fakeVoucherRepo struct {
	mu       sync.Mutex
	vouchers map[int64]*domain.SeckillVoucher
}

func newFakeVoucherRepo(vouchers ...*domain.SeckillVoucher) *fakeVoucherRepo {
	m := make(map[int64]*domain.SeckillVoucher)
	for _, v := range vouchers {
		m[v.ID] = v
	}
	return &fakeVoucherRepo{vouchers: m}
}

func (r *fakeVoucherRepo) FindByID(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return nil, nil
	}
	copied := *v
	return &copied, nil
}

func openVoucher(id int64, stock int) *domain.SeckillVoucher {
	return &domain.SeckillVoucher{
		ID:        id,
		ShopID:    1,
		Title:     "100元代金券",
		Stock:     stock,
		BeginTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}
}

func newTestService(t *testing.T, vouchers ...*domain.SeckillVoucher) (*SeckillService, *miniredis.Miniredis) {
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

	svc := NewSeckillService(client, cache.NewClient(client, pool), idgen.NewWorker(client), newFakeVoucherRepo(vouchers...))
	for _, v := range vouchers {
		require.NoError(t, svc.PrepareSeckillVoucher(context.Background(), v))
	}
	return svc, mr
}

func streamLen(t *testing.T, svc *SeckillService, key string) int64 {
	t.Helper()
	n, err := svc.redisClient.GetClient().XLen(context.Background(), key).Result()
	require.NoError(t, err)
	return n
}

func TestReserveSuccess(t *testing.T) {
	svc, _ := newTestService(t, openVoucher(10, 5))
	ctx := context.Background()

	orderID, err := svc.Reserve(ctx, 10, 1001)
	require.NoError(t, err)
	require.Positive(t, orderID)

	stock, err := svc.RemainingStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 4, stock)

	// 成功的预订在脚本里同步写进了订单流
	require.EqualValues(t, 1, streamLen(t, svc, OrderStreamKey))
}

func TestReserveSameUserTwiceSequentially(t *testing.T) {
	svc, _ := newTestService(t, openVoucher(10, 5))
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 10, 1001)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, 10, 1001)
	require.ErrorIs(t, err, domain.ErrAlreadyPurchased)

	// 重复请求不扣库存
	stock, err := svc.RemainingStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 4, stock)
}

func TestReserveStockExhausted(t *testing.T) {
	svc, _ := newTestService(t, openVoucher(10, 1))
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 10, 1001)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, 10, 1002)
	require.ErrorIs(t, err, domain.ErrStockExhausted)

	stock, err := svc.RemainingStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, stock)
}

func TestReserveConcurrentOversellProtection(t *testing.T) {
	const (
		stock   = 5
		callers = 20
	)
	svc, _ := newTestService(t, openVoucher(10, stock))
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, 10, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err == domain.ErrStockExhausted:
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(2000 + i))
	}
	wg.Wait()

	// 库存 N、并发 M：恰好 N 个成功，其余都是库存不足，库存归零不为负
	require.Equal(t, stock, succeeded)
	require.Equal(t, callers-stock, exhausted)

	remaining, err := svc.RemainingStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
	require.EqualValues(t, stock, streamLen(t, svc, OrderStreamKey))
}

func TestReserveOutsideSaleWindow(t *testing.T) {
	notStarted := openVoucher(11, 5)
	notStarted.BeginTime = time.Now().Add(time.Hour)
	notStarted.EndTime = time.Now().Add(2 * time.Hour)

	ended := openVoucher(12, 5)
	ended.BeginTime = time.Now().Add(-2 * time.Hour)
	ended.EndTime = time.Now().Add(-time.Hour)

	svc, _ := newTestService(t, notStarted, ended)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 11, 1001)
	require.ErrorIs(t, err, domain.ErrSaleNotStarted)

	_, err = svc.Reserve(ctx, 12, 1001)
	require.ErrorIs(t, err, domain.ErrSaleEnded)
}

func TestReserveUnknownVoucher(t *testing.T) {
	svc, _ := newTestService(t, openVoucher(10, 5))

	_, err := svc.Reserve(context.Background(), 999, 1001)
	require.ErrorIs(t, err, domain.ErrVoucherNotFound)
}
