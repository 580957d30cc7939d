// internal/pkg/lock/redis_lock.go
package lock

import (
	"context"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	redispkg "dianping/internal/pkg/redis"
)

const keyPrefix = "lock:"

// idPrefix 在进程启动时生成一次，锁的 value = idPrefix + 实例编号。
// 两段拼起来唯一标识一次持有（进程 + 持有者），TTL 过期后别的持有者
// 拿到同名锁时 value 不同，旧持有者无法误删。
var idPrefix = uuid.New().String() + "-"

//go:embed unlock.lua
var unlockScript string

const unlockScriptName = "unlock"

// RedisLock 是针对单个资源名的分布式互斥锁。
// TryLock 不阻塞也不重试，拿不到锁表示有竞争，由调用方决定快速失败还是稍后再试。
type RedisLock struct {
	client *redispkg.Client
	name   string
	token  string
}

// NewRedisLock 创建一把针对 name 的锁。每个实例持有自己的 token，
// 同一把 RedisLock 值不能被多个 goroutine 并发复用。
func NewRedisLock(client *redispkg.Client, name string) *RedisLock {
	client.LoadScript(unlockScriptName, unlockScript)
	return &RedisLock{
		client: client,
		name:   name,
		token:  idPrefix + uuid.New().String(),
	}
}

// TryLock 尝试获取锁。SET NX EX 一条命令完成写入和 TTL，
// 持有者崩溃后锁最多存活 ttl，不会永久泄漏。
// 返回 false 不是 error，表示锁被别人持有。
func (l *RedisLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.GetClient().SetNX(ctx, keyPrefix+l.name, l.token, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire lock %q", l.name)
	}
	return ok, nil
}

// Unlock 释放锁。比较 token 和删除在 Lua 脚本里原子执行：
// 若 TTL 已过期且锁已被别人重新获取，这里会是 no-op。
func (l *RedisLock) Unlock(ctx context.Context) error {
	_, err := l.client.RunScript(ctx, unlockScriptName, []string{keyPrefix + l.name}, l.token)
	if err != nil {
		return errors.Wrapf(err, "failed to release lock %q", l.name)
	}
	return nil
}
