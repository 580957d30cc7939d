// internal/service/seckill/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dianping/internal/service/seckill/domain"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// InsertIfAbsent 插入订单，(user_id, voucher_id) 冲突时什么都不做。
// 消费者可能把同一条记录投递两次，重复在这里被吸收成 inserted=false。
func (r *GormOrderRepository) InsertIfAbsent(ctx context.Context, order *domain.VoucherOrder) (bool, error) {
	model := FromDomainOrder(order)
	// INSERT ... ON DUPLICATE KEY UPDATE id=id（DoNothing 在 MySQL 下的等价形式）
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	// RowsAffected == 0 表示撞上了唯一约束，订单早已存在
	return result.RowsAffected > 0, nil
}

// GormVoucherRepository 是 VoucherRepository 的 GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

func NewGormVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// FindByID 查找抢购券，不存在时返回 (nil, nil) 以便上层写缓存空值标记。
func (r *GormVoucherRepository) FindByID(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	var model SeckillVoucherModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ToDomainVoucher(&model), nil
}

// Save 上架或更新一张抢购券。
func (r *GormVoucherRepository) Save(ctx context.Context, voucher *domain.SeckillVoucher) error {
	model := &SeckillVoucherModel{
		ID:        voucher.ID,
		ShopID:    voucher.ShopID,
		Title:     voucher.Title,
		Stock:     voucher.Stock,
		BeginTime: voucher.BeginTime,
		EndTime:   voucher.EndTime,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
}
