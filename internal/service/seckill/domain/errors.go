package domain

import "errors"

// 业务结果型错误：这些是高并发抢购下的稳态信号，不是故障。
// 调用方把它们翻译成用户可见的提示，绝不自动重试。
var (
	ErrStockExhausted   = errors.New("seckill: stock exhausted")
	ErrAlreadyPurchased = errors.New("seckill: user already purchased this voucher")
	ErrSaleNotStarted   = errors.New("seckill: sale has not started yet")
	ErrSaleEnded        = errors.New("seckill: sale has already ended")
	ErrVoucherNotFound  = errors.New("seckill: voucher not found")
)
