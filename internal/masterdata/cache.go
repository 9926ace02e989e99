package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/mtgview/internal/domain"
)

const DefaultTTL = 24 * time.Hour

// Cache 是 master data 的显式缓存对象（每个应用实例构造一次，按引用传递）。
//
// 读取顺序：
// 1) 进程内存
// 2) 持久化层（写入时间距今 < TTL）
// 3) 网络
//
// 规则：
// - 同一资源的并发首次读取只会触发一次网络请求（single-flight）
// - 持久化层任何失败都按未命中处理，只记日志
// - 网络失败直接返回错误，不做自动重试
type Cache struct {
	fetcher Fetcher
	store   *Store
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	characters []domain.Character
	scenes     []domain.Scene
}

type CacheOptions struct {
	// Store 为 nil 表示只用内存缓存。
	Store *Store
	TTL   time.Duration
	Log   *zap.Logger
}

func NewCache(fetcher Fetcher, opts CacheOptions) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		store:   opts.Store,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

func (c *Cache) Characters(ctx context.Context) ([]domain.Character, error) {
	if v := c.memCharacters(); v != nil {
		return v, nil
	}
	v, err := c.do(ctx, KindCharacters, func(ctx context.Context) (any, error) {
		if v := c.memCharacters(); v != nil {
			return v, nil
		}
		var out []domain.Character
		if err := c.load(ctx, KindCharacters, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []domain.Character{}
		}
		c.mu.Lock()
		c.characters = out
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Character), nil
}

func (c *Cache) Scenes(ctx context.Context) ([]domain.Scene, error) {
	if v := c.memScenes(); v != nil {
		return v, nil
	}
	v, err := c.do(ctx, KindScenes, func(ctx context.Context) (any, error) {
		if v := c.memScenes(); v != nil {
			return v, nil
		}
		var out []domain.Scene
		if err := c.load(ctx, KindScenes, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []domain.Scene{}
		}
		c.mu.Lock()
		c.scenes = out
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Scene), nil
}

// do 以 kind 为键合并并发加载。
//
// 规则：
// - 加载使用脱离取消的 ctx：发起者取消不影响其他等待者
// - 每个调用方只按自己的 ctx 放弃等待；加载本身继续，结果仍写入内存
func (c *Cache) do(ctx context.Context, kind Kind, fn func(context.Context) (any, error)) (any, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(kind), func() (any, error) { return fn(loadCtx) })
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear 清空内存与持久化缓存；持久化失败会返回错误（内存已清空）。
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.characters = nil
	c.scenes = nil
	c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Clear(ctx)
}

func (c *Cache) memCharacters() []domain.Character {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.characters
}

func (c *Cache) memScenes() []domain.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scenes
}

// fresh：写入时间不晚于当前时间且距今小于 TTL（未来时间视为过期）。
func (c *Cache) fresh(savedAt time.Time) bool {
	now := c.now()
	return !savedAt.After(now) && now.Sub(savedAt) < c.ttl
}

// load 依次尝试持久化层与网络，并把结果解码到 dst。
func (c *Cache) load(ctx context.Context, kind Kind, dst any) error {
	if c.store != nil {
		data, savedAt, ok, err := c.store.Load(ctx, kind)
		switch {
		case err != nil:
			c.log.Warn("master data 持久化读取失败，按未命中处理", zap.String("kind", string(kind)), zap.Error(err))
		case ok && c.fresh(savedAt):
			err := json.Unmarshal(data, dst)
			if err == nil {
				c.log.Debug("master data 命中持久化缓存", zap.String("kind", string(kind)), zap.Time("saved_at", savedAt))
				return nil
			}
			c.log.Warn("master data 持久化内容损坏，重新拉取", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	if c.fetcher == nil {
		return fmt.Errorf("未配置 master data fetcher")
	}
	data, err := c.fetcher.Fetch(ctx, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("解析 %s JSON 失败：%w", kind, err)
	}

	if c.store != nil {
		if err := c.store.Save(ctx, kind, data, c.now()); err != nil {
			c.log.Warn("master data 持久化写入失败", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return nil
}
