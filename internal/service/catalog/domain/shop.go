package domain

import (
	"context"
	"errors"
)

// Shop 是商铺档案，读多写少，绝大多数读流量由缓存挡住。
type Shop struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TypeID   int64  `json:"typeId"`
	Area     string `json:"area"`
	Address  string `json:"address"`
	AvgPrice int64  `json:"avgPrice"`
	Score    int    `json:"score"`
}

var ErrShopNotFound = errors.New("catalog: shop not found")

// ShopRepository 定义了商铺数据的持久化接口
type ShopRepository interface {
	// FindByID 查找商铺，不存在时返回 (nil, nil)。
	FindByID(ctx context.Context, id int64) (*Shop, error)
	Update(ctx context.Context, shop *Shop) error
}
