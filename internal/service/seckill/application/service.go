// internal/service/seckill/application/service.go
package application

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dianping/internal/pkg/cache"
	"dianping/internal/pkg/idgen"
	redispkg "dianping/internal/pkg/redis"
	"dianping/internal/service/seckill/domain"
)

//go:embed seckill.lua
var seckillScript string

const (
	seckillScriptName = "seckill"

	// Redis key 前缀，各组件的前缀互不重叠
	stockKeyPrefix    = "seckill:stock:"
	orderSetKeyPrefix = "seckill:order:"
	voucherKeyPrefix  = "cache:seckillVoucher:"

	// OrderStreamKey 是抢购成功订单的持久化消息流。
	OrderStreamKey = "stream.orders"

	voucherCacheTTL = 30 * time.Minute
)

// 脚本返回的业务状态码
const (
	resultSuccess          = 0
	resultSoldOut          = 1
	resultAlreadyPurchased = 2
)

var reserveResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seckill_reserve_total",
	Help: "Reserve outcomes by result.",
}, []string{"result"})

// SeckillService 封装了秒杀的准入流程。
//
// Reserve 只等待一次原子脚本的往返：窗口预检走缓存，成功后订单
// 已经在脚本里写进了消息流，落库由后台消费者异步完成，调用方拿到
// 订单号时订单还不一定能查到。
type SeckillService struct {
	redisClient *redispkg.Client
	cacheClient *cache.Client
	idWorker    *idgen.Worker
	voucherRepo domain.VoucherRepository
}

// NewSeckillService 创建一个新的秒杀服务实例，并注册所需的 Lua 脚本。
func NewSeckillService(
	redisClient *redispkg.Client,
	cacheClient *cache.Client,
	idWorker *idgen.Worker,
	voucherRepo domain.VoucherRepository,
) *SeckillService {
	redisClient.LoadScript(seckillScriptName, seckillScript)
	return &SeckillService{
		redisClient: redisClient,
		cacheClient: cacheClient,
		idWorker:    idWorker,
		voucherRepo: voucherRepo,
	}
}

// Reserve 尝试为 userID 预订一张 voucherID 券。
//
// 返回订单号，或者三种业务错误之一：ErrStockExhausted / ErrAlreadyPurchased /
// 窗口错误（ErrSaleNotStarted、ErrSaleEnded）。基础设施故障原样上抛，
// 歧义结果绝不静默扣库存。
func (s *SeckillService) Reserve(ctx context.Context, voucherID, userID int64) (int64, error) {
	tracer := otel.Tracer("seckill-service")
	ctx, span := tracer.Start(ctx, "seckill.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("voucher.id", voucherID),
		attribute.Int64("user.id", userID),
	)

	// 1. 窗口预检。窗口边界变化远比库存低频，这里读普通状态就够了，
	// 竞态窗口只会放进极个别边界请求，无害。
	voucher, err := s.loadVoucher(ctx, voucherID)
	if err != nil {
		reserveResults.WithLabelValues("error").Inc()
		return 0, err
	}
	if err := voucher.InSaleWindow(time.Now()); err != nil {
		reserveResults.WithLabelValues("window").Inc()
		return 0, err
	}

	// 2. 先发订单号：脚本成功时订单记录要带着它进消息流
	orderID, err := s.idWorker.NextID(ctx, "order")
	if err != nil {
		reserveResults.WithLabelValues("error").Inc()
		span.RecordError(err)
		return 0, err
	}

	// 3. 库存检查 + 去重 + 扣减 + 入队，一次脚本原子完成
	keys := []string{
		stockKeyPrefix + formatID(voucherID),
		orderSetKeyPrefix + formatID(voucherID),
		OrderStreamKey,
	}
	result, err := s.redisClient.RunScript(ctx, seckillScriptName, keys,
		formatID(userID), formatID(voucherID), formatID(orderID))
	if err != nil {
		reserveResults.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "seckill script failed")
		return 0, err
	}
	code, ok := result.(int64)
	if !ok {
		reserveResults.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("unexpected result type from seckill script: %T", result)
	}

	switch code {
	case resultSuccess:
		reserveResults.WithLabelValues("success").Inc()
		span.AddEvent("reservation admitted")
		return orderID, nil
	case resultSoldOut:
		reserveResults.WithLabelValues("sold_out").Inc()
		return 0, domain.ErrStockExhausted
	case resultAlreadyPurchased:
		reserveResults.WithLabelValues("duplicate").Inc()
		return 0, domain.ErrAlreadyPurchased
	default:
		reserveResults.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("unknown seckill script result code: %d", code)
	}
}

// PrepareSeckillVoucher 初始化一张券的 Redis 侧状态：写库存、清已购集合，
// 并预热券信息缓存。上架和测试时使用。
func (s *SeckillService) PrepareSeckillVoucher(ctx context.Context, voucher *domain.SeckillVoucher) error {
	pipe := s.redisClient.GetClient().Pipeline()
	pipe.Set(ctx, stockKeyPrefix+formatID(voucher.ID), voucher.Stock, 0)
	pipe.Del(ctx, orderSetKeyPrefix+formatID(voucher.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to prepare seckill voucher: %w", err)
	}
	return s.cacheClient.Set(ctx, voucherKeyPrefix+formatID(voucher.ID), voucher, voucherCacheTTL)
}

// RemainingStock 读取 Redis 侧剩余库存，监控与测试用。
func (s *SeckillService) RemainingStock(ctx context.Context, voucherID int64) (int, error) {
	return s.redisClient.GetClient().Get(ctx, stockKeyPrefix+formatID(voucherID)).Int()
}

// loadVoucher 旁路缓存读取券信息，空值标记挡掉不存在的 id。
func (s *SeckillService) loadVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	var voucher domain.SeckillVoucher
	err := s.cacheClient.QueryWithPassThrough(ctx, voucherKeyPrefix, formatID(voucherID), &voucher,
		func(ctx context.Context, _ string) (interface{}, error) {
			v, err := s.voucherRepo.FindByID(ctx, voucherID)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, nil
			}
			return v, nil
		}, voucherCacheTTL)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, domain.ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func formatID(id int64) string {
	return fmt.Sprintf("%d", id)
}
