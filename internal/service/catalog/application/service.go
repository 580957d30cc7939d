// internal/service/catalog/application/service.go
package application

import (
	"context"
	"errors"
	"strconv"
	"time"

	"dianping/internal/pkg/cache"
	"dianping/internal/service/catalog/domain"
)

const (
	shopKeyPrefix = "cache:shop:"
	// 热点商铺用逻辑过期形态，和普通商铺 key 分开：
	// 两种形态的存储布局不同，不能共用前缀
	hotShopKeyPrefix = "cache:shop:hot:"

	shopCacheTTL    = 30 * time.Minute
	hotShopCacheTTL = 30 * time.Second
)

// ShopService 是商铺读路径的应用服务。
// 普通商铺走旁路缓存（防穿透），运营位的热点商铺走逻辑过期（防击穿）。
type ShopService struct {
	cacheClient *cache.Client
	shopRepo    domain.ShopRepository
}

func NewShopService(cacheClient *cache.Client, shopRepo domain.ShopRepository) *ShopService {
	return &ShopService{cacheClient: cacheClient, shopRepo: shopRepo}
}

// QueryShopByID 旁路缓存读取商铺。
// 不存在的 id 会被空值标记挡住，短时间内的重复查询不会穿透到数据库。
func (s *ShopService) QueryShopByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var shop domain.Shop
	err := s.cacheClient.QueryWithPassThrough(ctx, shopKeyPrefix, formatID(id), &shop, s.loader, shopCacheTTL)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, domain.ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// QueryHotShopByID 逻辑过期读取热点商铺。
// 前提是数据已经 WarmHotShop 预热过；返回的可能是陈旧几十毫秒的数据，
// 过期后的重建在后台进行，本次调用不会因此变慢。
func (s *ShopService) QueryHotShopByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var shop domain.Shop
	err := s.cacheClient.QueryWithLogicalExpire(ctx, hotShopKeyPrefix, formatID(id), &shop, s.loader, hotShopCacheTTL)
	if errors.Is(err, cache.ErrCacheMiss) {
		// 未预热：这是运维问题而不是普通的 cache miss，调用方自己决定兜底
		return nil, domain.ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// WarmHotShop 把商铺写入热点缓存，上活动前调用。
func (s *ShopService) WarmHotShop(ctx context.Context, id int64) error {
	shop, err := s.shopRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if shop == nil {
		return domain.ErrShopNotFound
	}
	return s.cacheClient.SetWithLogicalExpire(ctx, hotShopKeyPrefix+formatID(id), shop, hotShopCacheTTL)
}

// UpdateShop 先写库再删缓存（cache-aside 写路径），
// 下一次读会重新回填。
func (s *ShopService) UpdateShop(ctx context.Context, shop *domain.Shop) error {
	if shop.ID == 0 {
		return errors.New("shop id is required")
	}
	if err := s.shopRepo.Update(ctx, shop); err != nil {
		return err
	}
	return s.cacheClient.Delete(ctx, shopKeyPrefix+formatID(shop.ID))
}

func (s *ShopService) loader(ctx context.Context, id string) (interface{}, error) {
	shopID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	shop, err := s.shopRepo.FindByID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, nil
	}
	return shop, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
