// internal/pkg/redis/client.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client 是对 go-redis 的一层薄封装，附带一个命名的 Lua 脚本注册表。
// 业务方在初始化时注册脚本，之后通过名字执行，脚本内容和调用点解耦。
type Client struct {
	rdb *redis.Client

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建一个新的 Redis 客户端并验证连接。
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return Wrap(rdb), nil
}

// Wrap 直接包装一个已有连接，测试里配合 miniredis 使用。
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}
}

// GetClient 暴露底层连接，供需要原生命令的调用方使用。
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// LoadScript 以给定名字注册一段 Lua 脚本内容。
// go-redis 的 Script 会优先走 EVALSHA，NOSCRIPT 时自动回退 EVAL。
func (c *Client) LoadScript(name, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(source)
}

// RunScript 执行之前注册的脚本。脚本未注册是编程错误，直接返回 error。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("redis script %q is not registered", name)
	}

	result, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run script %q", name)
	}
	return result, nil
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
