package domain

import "time"

// SeckillVoucher 是限量抢购券，库存和抢购窗口都归属于它。
// 库存的真实扣减只发生在 Redis 的原子脚本里，这里的 Stock 是
// 数据库侧的副本，用于预热和展示。
type SeckillVoucher struct {
	ID        int64
	ShopID    int64
	Title     string
	Stock     int
	BeginTime time.Time
	EndTime   time.Time
}

// InSaleWindow 判断 now 是否落在抢购窗口内。
func (v *SeckillVoucher) InSaleWindow(now time.Time) error {
	if now.Before(v.BeginTime) {
		return ErrSaleNotStarted
	}
	if now.After(v.EndTime) {
		return ErrSaleEnded
	}
	return nil
}
