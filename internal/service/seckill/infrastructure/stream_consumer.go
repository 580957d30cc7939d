// internal/service/seckill/infrastructure/stream_consumer.go
package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dianping/internal/pkg/lock"
	"dianping/internal/pkg/logger"
	redispkg "dianping/internal/pkg/redis"
	"dianping/internal/service/seckill/domain"
)

const (
	// readBlock 是主循环等新消息的阻塞上限，也是停机信号的响应粒度。
	readBlock = 2 * time.Second
	// userLockTTL 是按用户加的持久化锁的 TTL。
	userLockTTL = 10 * time.Second
	// lockRetries 次拿不到用户锁就放弃本条记录，不 ACK，留给下一轮恢复。
	lockRetries    = 3
	lockRetryDelay = 50 * time.Millisecond
)

var (
	ordersPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_orders_persisted_total",
		Help: "Orders written to durable storage, by outcome.",
	}, []string{"outcome"})
	recoveryPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seckill_consumer_recovery_passes_total",
		Help: "Times the consumer fell back to draining its pending list.",
	})
)

// OrderConsumer 是订单流的后台消费者，进程内只有一个长期 goroutine
//（同组可以横向加消费者实例竞争消费）。
//
// 每条记录：按用户加分布式锁、落库、ACK。处理中任何异常都会让它
// 切换到 pending 恢复：从自己 pending 列表的起点逐条重放直到清空，
// 再回到主循环读新消息。配合落库侧 (UserID, VoucherID) 唯一约束，
// 实现至少一次投递：记录可能被处理两次，但绝不会丢。
type OrderConsumer struct {
	queue       *OrderStreamQueue
	orderRepo   domain.OrderRepository
	redisClient *redispkg.Client
	notifier    domain.NotificationProducer // 可选

	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrderConsumer(
	queue *OrderStreamQueue,
	orderRepo domain.OrderRepository,
	redisClient *redispkg.Client,
	notifier domain.NotificationProducer,
) *OrderConsumer {
	return &OrderConsumer{
		queue:       queue,
		orderRepo:   orderRepo,
		redisClient: redisClient,
		notifier:    notifier,
		log:         logger.With("order-consumer"),
	}
}

// Start 启动消费循环。进程上次崩溃时可能留下未确认的记录，
// 所以先跑一遍 pending 恢复再读新消息。
func (c *OrderConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.log.Info().Msg("order consumer started")

		c.drainPending(ctx)

		for {
			if ctx.Err() != nil {
				c.log.Info().Msg("order consumer shutting down")
				return
			}

			record, err := c.queue.ReadNew(ctx, readBlock)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Error().Err(err).Msg("failed to read new order records")
				time.Sleep(time.Second) // 避免连接故障时空转
				continue
			}
			if record == nil {
				// 阻塞超时，无新消息
				continue
			}

			if err := c.handleOrder(ctx, record.Order); err != nil {
				c.log.Error().Err(err).Int64("order_id", record.Order.ID).Msg("failed to process order record")
				// 不 ACK，记录留在 pending 列表里，转入恢复流程
				c.drainPending(ctx)
				continue
			}
			if err := c.queue.Ack(ctx, record.StreamID); err != nil {
				c.log.Error().Err(err).Str("stream_id", record.StreamID).Msg("failed to ack order record")
			}
		}
	}()
}

// Stop 请求退出并等待消费 goroutine 结束。
// 阻塞读最多 readBlock 后就会观察到取消。
func (c *OrderConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Info().Msg("order consumer stopped")
}

// drainPending 从自己 pending 列表的起点逐条重放，直到清空。
// 单条失败只打日志并短暂退避，继续重试——记录绝不丢弃。
func (c *OrderConsumer) drainPending(ctx context.Context) {
	recoveryPasses.Inc()
	for {
		if ctx.Err() != nil {
			return
		}

		record, err := c.queue.ReadPending(ctx)
		if err != nil {
			c.log.Error().Err(err).Msg("failed to read pending order records")
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if record == nil {
			// pending 列表已清空
			return
		}

		if err := c.handleOrder(ctx, record.Order); err != nil {
			c.log.Error().Err(err).Int64("order_id", record.Order.ID).Msg("failed to reprocess pending order")
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if err := c.queue.Ack(ctx, record.StreamID); err != nil {
			c.log.Error().Err(err).Str("stream_id", record.StreamID).Msg("failed to ack pending order")
			time.Sleep(20 * time.Millisecond)
		}
	}
}

// handleOrder 持久化一条订单。
// 按用户加分布式锁是对重复投递的双保险：唯一约束兜底，锁避免并发
// 重复投递同时打进存储层。
func (c *OrderConsumer) handleOrder(ctx context.Context, order *domain.VoucherOrder) error {
	tracer := otel.Tracer("seckill-service")
	ctx, span := tracer.Start(ctx, "consumer.HandleOrder", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	userLock := lock.NewRedisLock(c.redisClient, "order:"+formatUserID(order.UserID))

	acquired := false
	for i := 0; i < lockRetries; i++ {
		ok, err := userLock.TryLock(ctx, userLockTTL)
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(lockRetryDelay)
	}
	if !acquired {
		// 拿不到锁就把记录留在 pending 列表，等下一轮恢复再处理
		return errors.Errorf("could not acquire per-user lock for user %d", order.UserID)
	}
	defer func() {
		if err := userLock.Unlock(context.WithoutCancel(ctx)); err != nil {
			c.log.Error().Err(err).Int64("user_id", order.UserID).Msg("failed to release per-user lock")
		}
	}()

	inserted, err := c.orderRepo.InsertIfAbsent(ctx, order)
	if err != nil {
		return err
	}
	if !inserted {
		// 重复投递：唯一约束挡下了二次插入，按成功处理
		ordersPersisted.WithLabelValues("duplicate").Inc()
		c.log.Debug().Int64("order_id", order.ID).Msg("duplicate order delivery, already persisted")
		return nil
	}
	ordersPersisted.WithLabelValues("inserted").Inc()

	if c.notifier != nil {
		if err := c.notifier.NotifyOrderCreated(ctx, order); err != nil {
			// 通知是尽力而为，失败不影响订单处理
			c.log.Warn().Err(err).Int64("order_id", order.ID).Msg("failed to publish order notification")
		}
	}
	return nil
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
