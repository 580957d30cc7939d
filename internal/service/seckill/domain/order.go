package domain

import (
	"errors"
	"time"
)

// VoucherOrder 是订单聚合的根实体。
// 一个用户对同一张券至多存在一单，(UserID, VoucherID) 在存储层有唯一约束。
type VoucherOrder struct {
	ID        int64
	UserID    int64
	VoucherID int64
	CreatedAt time.Time
}

// 工厂函数: NewVoucherOrder 用于创建一个新的订单实例
func NewVoucherOrder(id, userID, voucherID int64) (*VoucherOrder, error) {
	if id == 0 || userID == 0 || voucherID == 0 {
		return nil, errors.New("cannot create voucher order with empty required fields")
	}
	return &VoucherOrder{
		ID:        id,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: time.Now(),
	}, nil
}
