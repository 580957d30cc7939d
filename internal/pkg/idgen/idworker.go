// internal/pkg/idgen/idworker.go
package idgen

import (
	"context"
	"time"

	"github.com/pkg/errors"

	redispkg "dianping/internal/pkg/redis"
)

// beginTimestamp 是 2022-01-01T00:00:00Z 的秒级时间戳，作为 ID 的纪元起点。
const beginTimestamp int64 = 1640995200

// countBits 是序列号占用的位数，时间戳左移这么多位后与序列号拼接。
const countBits = 32

// Worker 基于 Redis 生成全局唯一 ID。
//
// 64 位布局：最高位恒为 0（保证是正数），接下来 31 位是相对纪元的秒数，
// 最低 32 位是当天内的自增序列号。序列号按天滚动 key，单日 32 位的容量
// 在实际业务里不可能耗尽，同时也避免了单个计数器无限增长。
type Worker struct {
	client *redispkg.Client
}

func NewWorker(client *redispkg.Client) *Worker {
	return &Worker{client: client}
}

// NextID 为给定业务前缀生成下一个 ID。
// INCR 失败时必须返回 error：静默降级可能发出重复 ID。
func (w *Worker) NextID(ctx context.Context, scope string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - beginTimestamp

	// 每天一个计数器 key，例如 icr:order:2026:08:29
	date := now.Format("2006:01:02")
	seq, err := w.client.GetClient().Incr(ctx, "icr:"+scope+":"+date).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to increment id counter for scope %q", scope)
	}

	return timestamp<<countBits | seq, nil
}
