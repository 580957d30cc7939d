// internal/service/catalog/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"dianping/internal/service/catalog/domain"
)

// ShopModel 对应数据库中的 tb_shop 表
type ShopModel struct {
	ID        int64 `gorm:"primaryKey"`
	Name      string
	TypeID    int64
	Area      string
	Address   string
	AvgPrice  int64
	Score     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ShopModel) TableName() string {
	return "tb_shop"
}

// ToDomainShop 将数据库模型转换为领域模型
func ToDomainShop(model *ShopModel) *domain.Shop {
	if model == nil {
		return nil
	}
	return &domain.Shop{
		ID:       model.ID,
		Name:     model.Name,
		TypeID:   model.TypeID,
		Area:     model.Area,
		Address:  model.Address,
		AvgPrice: model.AvgPrice,
		Score:    model.Score,
	}
}

// GormShopRepository 是 ShopRepository 的 GORM 实现
type GormShopRepository struct {
	db *gorm.DB
}

func NewGormShopRepository(db *gorm.DB) *GormShopRepository {
	return &GormShopRepository{db: db}
}

func (r *GormShopRepository) FindByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var model ShopModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ToDomainShop(&model), nil
}

func (r *GormShopRepository) Update(ctx context.Context, shop *domain.Shop) error {
	updateData := map[string]interface{}{
		"name":      shop.Name,
		"type_id":   shop.TypeID,
		"area":      shop.Area,
		"address":   shop.Address,
		"avg_price": shop.AvgPrice,
		"score":     shop.Score,
	}
	return r.db.WithContext(ctx).Model(&ShopModel{}).Where("id = ?", shop.ID).Updates(updateData).Error
}
