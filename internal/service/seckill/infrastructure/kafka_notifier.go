// internal/service/seckill/infrastructure/kafka_notifier.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"dianping/internal/service/seckill/domain"
)

// orderCreatedEvent 是发往通知 topic 的消息体。
type orderCreatedEvent struct {
	OrderID   int64 `json:"orderId"`
	UserID    int64 `json:"userId"`
	VoucherID int64 `json:"voucherId"`
	CreatedAt int64 `json:"createdAt"`
}

// KafkaOrderNotifier 在订单落库后向 Kafka 发布 order-created 事件，
// 下游（通知、积分之类）各自消费。
type KafkaOrderNotifier struct {
	writer *kafka.Writer
}

func NewKafkaOrderNotifier(writer *kafka.Writer) *KafkaOrderNotifier {
	return &KafkaOrderNotifier{writer: writer}
}

func (n *KafkaOrderNotifier) NotifyOrderCreated(ctx context.Context, order *domain.VoucherOrder) error {
	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		VoucherID: order.VoucherID,
		CreatedAt: order.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}
	// 按用户分区，同一用户的事件保序
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(order.UserID, 10)),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to write order-created event")
	}
	return nil
}
