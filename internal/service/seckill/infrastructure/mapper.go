// internal/service/seckill/infrastructure/mapper.go
package infrastructure

import "dianping/internal/service/seckill/domain"

// ToDomainVoucher 将数据库模型转换为领域模型
func ToDomainVoucher(model *SeckillVoucherModel) *domain.SeckillVoucher {
	if model == nil {
		return nil
	}
	return &domain.SeckillVoucher{
		ID:        model.ID,
		ShopID:    model.ShopID,
		Title:     model.Title,
		Stock:     model.Stock,
		BeginTime: model.BeginTime,
		EndTime:   model.EndTime,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型 (用于插入)
func FromDomainOrder(order *domain.VoucherOrder) *VoucherOrderModel {
	if order == nil {
		return nil
	}
	return &VoucherOrderModel{
		ID:        order.ID,
		UserID:    order.UserID,
		VoucherID: order.VoucherID,
		CreatedAt: order.CreatedAt,
	}
}

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *VoucherOrderModel) *domain.VoucherOrder {
	if model == nil {
		return nil
	}
	return &domain.VoucherOrder{
		ID:        model.ID,
		UserID:    model.UserID,
		VoucherID: model.VoucherID,
		CreatedAt: model.CreatedAt,
	}
}
