package domain

import "context"

// OrderRepository 定义了订单数据的持久化接口
// 这是领域层与基础设施层之间的“插座”
type OrderRepository interface {
	// InsertIfAbsent 插入订单；(UserID, VoucherID) 已存在时返回 inserted=false
	// 且不报错。消费者是至少一次投递，重复插入必须被当成成功。
	InsertIfAbsent(ctx context.Context, order *VoucherOrder) (inserted bool, err error)
}

// VoucherRepository 定义了抢购券数据的读取接口。
type VoucherRepository interface {
	// FindByID 查找抢购券，不存在时返回 (nil, nil)。
	FindByID(ctx context.Context, id int64) (*SeckillVoucher, error)
}

// NotificationProducer 在订单落库后对外发布通知事件。
// 发布失败只记日志，不影响订单处理主流程。
type NotificationProducer interface {
	NotifyOrderCreated(ctx context.Context, order *VoucherOrder) error
}
