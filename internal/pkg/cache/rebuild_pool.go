// internal/pkg/cache/rebuild_pool.go
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// RebuildPool 是缓存重建专用的有界工作池。
// 它由组装根显式创建并注入 Client，关停时先排空在途的重建任务。
type RebuildPool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRebuildPool 创建一个最多允许 size 个并发重建任务的工作池。
func NewRebuildPool(size int64) *RebuildPool {
	if size <= 0 {
		size = 10
	}
	return &RebuildPool{sem: semaphore.NewWeighted(size)}
}

// TrySubmit 尝试提交一个任务。池已满或已关停时返回 false，
// 任务被放弃——重建是尽力而为的，放弃一次只意味着数据多保持一会儿陈旧。
func (p *RebuildPool) TrySubmit(task func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if !p.sem.TryAcquire(1) {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return true
}

// Shutdown 拒绝新任务并等待在途任务完成，或 ctx 先超时。
func (p *RebuildPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
