// internal/service/seckill/infrastructure/models.go
package infrastructure

import "time"

// VoucherOrderModel 对应数据库中的 tb_voucher_order 表。
// (user_id, voucher_id) 上的唯一索引是一人一单的最终防线。
type VoucherOrderModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64     `gorm:"uniqueIndex:idx_user_voucher"`
	VoucherID int64     `gorm:"uniqueIndex:idx_user_voucher"`
	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (VoucherOrderModel) TableName() string {
	return "tb_voucher_order"
}

// SeckillVoucherModel 对应数据库中的 tb_seckill_voucher 表
type SeckillVoucherModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	ShopID    int64
	Title     string
	Stock     int
	BeginTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (SeckillVoucherModel) TableName() string {
	return "tb_seckill_voucher"
}
