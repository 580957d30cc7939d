// internal/pkg/cache/client.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"dianping/internal/pkg/lock"
	redispkg "dianping/internal/pkg/redis"
)

var (
	// ErrNotFound 表示后端确认不存在（包括命中空值标记的情况）。
	ErrNotFound = errors.New("cache: entity not found")
	// ErrCacheMiss 只在逻辑过期模式下出现：key 整个不在缓存里。
	// 逻辑过期模式假设数据已预热，缓存缺失是需要调用方单独处理的异常情况，
	// 不会退化成同步查库。
	ErrCacheMiss = errors.New("cache: key missing, expected pre-warmed entry")
)

const (
	// nullTTL 限制了空值标记的存活时间：恶意刷不存在的 id 最多让
	// 这个标记续命，不会一直打到数据库。
	nullTTL = 2 * time.Minute
	// rebuildTimeout 是单次后台重建允许的最长时间。
	rebuildTimeout = 10 * time.Second
	// rebuildLockTTL 是重建互斥锁的 TTL，重建方崩溃后锁自动释放。
	rebuildLockTTL = 10 * time.Second
)

// Loader 从后端加载实体，返回 (nil, nil) 表示后端也不存在。
type Loader func(ctx context.Context, id string) (interface{}, error)

// redisData 是逻辑过期模式的存储形态：过期时间写在 value 里，
// 过不过期由 ExpireAt 判断，和 Redis 自身的 TTL 淘汰无关。
type redisData struct {
	ExpireAt time.Time       `json:"expireAt"`
	Data     json.RawMessage `json:"data"`
}

// Client 封装两种缓存读写模式：
// 旁路缓存 + 空值标记（防穿透），逻辑过期 + 互斥重建（防击穿）。
type Client struct {
	client *redispkg.Client
	pool   *RebuildPool
}

func NewClient(client *redispkg.Client, pool *RebuildPool) *Client {
	return &Client{client: client, pool: pool}
}

// Set 序列化后写入缓存并设置物理 TTL。
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.GetClient().Set(ctx, key, data, ttl).Err()
}

// SetWithLogicalExpire 以逻辑过期形态写入，不设置物理 TTL。
// 预热热点数据时使用。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	wrapped, err := json.Marshal(redisData{
		ExpireAt: time.Now().Add(ttl),
		Data:     data,
	})
	if err != nil {
		return err
	}
	return c.client.GetClient().Set(ctx, key, wrapped, 0).Err()
}

// Delete 删除一个缓存 key，更新数据库后用来做旁路失效。
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.client.GetClient().Del(ctx, key).Err()
}

// QueryWithPassThrough 旁路缓存读取，空值标记防穿透。
//
// 命中且非空 -> 反序列化进 dest；命中空值标记 -> ErrNotFound（不碰后端）；
// 未命中 -> 调 loader：后端也没有就写入空值标记（短 TTL）并返回 ErrNotFound，
// 否则回填缓存并返回数据。
func (c *Client) QueryWithPassThrough(
	ctx context.Context, keyPrefix, id string, dest interface{}, loader Loader, ttl time.Duration,
) error {
	key := keyPrefix + id
	raw, err := c.client.GetClient().Get(ctx, key).Result()
	if err == nil {
		if raw == "" {
			// 空值标记：之前已经确认过后端不存在
			return ErrNotFound
		}
		return json.Unmarshal([]byte(raw), dest)
	}
	if !errors.Is(err, goredis.Nil) {
		return err
	}

	// 缓存未命中，回源
	value, err := loader(ctx, id)
	if err != nil {
		return err
	}
	if value == nil {
		// 后端也不存在：缓存空字符串，防止同一个不存在的 id 反复穿透
		if err := c.client.GetClient().Set(ctx, key, "", nullTTL).Err(); err != nil {
			return err
		}
		return ErrNotFound
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// QueryWithLogicalExpire 逻辑过期读取，互斥重建防击穿。
//
// key 缺失 -> ErrCacheMiss（该模式假设数据已预热）；
// 未过期 -> 直接返回；
// 已过期 -> 尝试获取该 key 的重建锁，拿到后二次检查（别的持有者可能刚重建完），
// 仍过期则把 loader 丢进有界工作池异步执行，锁在重建结束后统一释放。
// 无论是否拿到锁，本次调用都立刻返回手里的陈旧值：高并发下宁可短暂陈旧，
// 也不让请求排队等重建。
func (c *Client) QueryWithLogicalExpire(
	ctx context.Context, keyPrefix, id string, dest interface{}, loader Loader, ttl time.Duration,
) error {
	key := keyPrefix + id
	raw, err := c.client.GetClient().Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	var wrapped redisData
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return err
	}
	if wrapped.ExpireAt.After(time.Now()) {
		// 未过期，直接返回
		return json.Unmarshal(wrapped.Data, dest)
	}

	// 已过期，竞争重建权
	rebuildLock := lock.NewRedisLock(c.client, "cache:"+key)
	acquired, err := rebuildLock.TryLock(ctx, rebuildLockTTL)
	if err != nil {
		// 锁服务异常时放弃重建，仍然返回陈旧值
		log.Warn().Err(err).Str("key", key).Msg("failed to contend for cache rebuild lock")
		acquired = false
	}
	if acquired {
		c.scheduleRebuild(key, id, rebuildLock, loader, ttl)
	}

	// 拿没拿到锁都不等重建，直接返回陈旧值
	return json.Unmarshal(wrapped.Data, dest)
}

// scheduleRebuild 持有重建锁的前提下，二次检查后把重建任务交给工作池。
// 不管 loader 成功与否，锁都会在清理路径里释放。
func (c *Client) scheduleRebuild(key, id string, rebuildLock *lock.RedisLock, loader Loader, ttl time.Duration) {
	submitted := c.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		defer func() {
			if err := rebuildLock.Unlock(ctx); err != nil {
				log.Error().Err(err).Str("key", key).Msg("failed to release cache rebuild lock")
			}
		}()

		// 拿到锁之后重新读一遍：上一个持有者可能已经重建完了
		raw, err := c.client.GetClient().Get(ctx, key).Result()
		if err == nil {
			var current redisData
			if json.Unmarshal([]byte(raw), &current) == nil && current.ExpireAt.After(time.Now()) {
				return
			}
		}

		value, err := loader(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("cache rebuild loader failed")
			return
		}
		if err := c.SetWithLogicalExpire(ctx, key, value, ttl); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to write rebuilt cache entry")
		}
	})
	if !submitted {
		// 工作池满：放弃这次重建并立刻还锁，让下一个发现过期的请求再试
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rebuildLock.Unlock(ctx); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to release cache rebuild lock")
		}
	}
}
