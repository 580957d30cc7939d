// internal/service/seckill/infrastructure/stream_queue.go
package infrastructure

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	redispkg "dianping/internal/pkg/redis"
	"dianping/internal/service/seckill/domain"
)

// OrderRecord 是消息流里的一条订单记录及其流内位置。
// ACK 用 StreamID 定位；记录本身留在流里供审计回放，只从 pending 集合移除。
type OrderRecord struct {
	StreamID string
	Order    *domain.VoucherOrder
}

// OrderStreamQueue 包装 Redis Stream 的消费组语义：
// 阻塞读新消息、读本消费者的 pending 列表、ACK。
// 生产端不在这里——订单记录由秒杀脚本在 Redis 内原子写入。
type OrderStreamQueue struct {
	client   *redispkg.Client
	stream   string
	group    string
	consumer string
}

func NewOrderStreamQueue(client *redispkg.Client, stream, group, consumer string) *OrderStreamQueue {
	return &OrderStreamQueue{client: client, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup 创建消费组（流不存在时一并创建）。组已存在不算错。
func (q *OrderStreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.GetClient().XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrapf(err, "failed to create consumer group %q on %q", q.group, q.stream)
	}
	return nil
}

// ReadNew 阻塞至多 block 时长，读取一条尚未投递过的记录。
// 没有新记录时返回 (nil, nil)，调用方循环重试并借机检查退出条件。
func (q *OrderStreamQueue) ReadNew(ctx context.Context, block time.Duration) (*OrderRecord, error) {
	return q.readOne(ctx, ">", block)
}

// ReadPending 从本消费者 pending 列表的起点读取一条已投递未确认的记录。
// pending 为空时返回 (nil, nil)。
func (q *OrderStreamQueue) ReadPending(ctx context.Context) (*OrderRecord, error) {
	return q.readOne(ctx, "0", 0)
}

// Ack 确认一条记录：从 pending 集合移除，流内原始条目保留。
func (q *OrderStreamQueue) Ack(ctx context.Context, streamID string) error {
	if err := q.client.GetClient().XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return errors.Wrapf(err, "failed to ack stream record %s", streamID)
	}
	return nil
}

func (q *OrderStreamQueue) readOne(ctx context.Context, offset string, block time.Duration) (*OrderRecord, error) {
	args := &goredis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, offset},
		Count:    1,
	}
	if block > 0 {
		args.Block = block
	} else {
		args.Block = -1 // go-redis 里负值表示不带 BLOCK 参数
	}

	streams, err := q.client.GetClient().XReadGroup(ctx, args).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read from order stream")
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	order, err := orderFromValues(msg.Values)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed order record %s", msg.ID)
	}
	return &OrderRecord{StreamID: msg.ID, Order: order}, nil
}

// orderFromValues 把 stream 条目的字段表还原成订单实体。
func orderFromValues(values map[string]interface{}) (*domain.VoucherOrder, error) {
	id, err := int64Field(values, "id")
	if err != nil {
		return nil, err
	}
	userID, err := int64Field(values, "userId")
	if err != nil {
		return nil, err
	}
	voucherID, err := int64Field(values, "voucherId")
	if err != nil {
		return nil, err
	}
	return domain.NewVoucherOrder(id, userID, voucherID)
}

func int64Field(values map[string]interface{}, field string) (int64, error) {
	raw, ok := values[field]
	if !ok {
		return 0, errors.Errorf("missing field %q", field)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, errors.Errorf("field %q has unexpected type %T", field, raw)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "field %q is not an int64", field)
	}
	return v, nil
}
