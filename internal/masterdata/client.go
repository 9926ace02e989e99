// Package masterdata 负责获取并缓存 master data（角色 / scene 列表）。
package masterdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/infra/httpx"
)

// Kind 是 master data 资源名；同时作为单飞（single-flight）与持久化的 key。
type Kind string

const (
	KindCharacters Kind = "characters"
	KindScenes     Kind = "scenes"
)

func (k Kind) valid() bool {
	return k == KindCharacters || k == KindScenes
}

// Fetcher 抽象“拉取某类 master data 的原始 JSON”。
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind) ([]byte, error)
}

// Client 从固定的 master data URL 拉取 JSON 数组。
type Client struct {
	HTTP          *http.Client
	CharactersURL string
	ScenesURL     string
	Log           *zap.Logger
}

func (c *Client) url(kind Kind) string {
	switch kind {
	case KindCharacters:
		return strings.TrimSpace(c.CharactersURL)
	case KindScenes:
		return strings.TrimSpace(c.ScenesURL)
	default:
		return ""
	}
}

// Fetch 拉取原始 JSON；失败先记日志再返回（调用方必须处理）。
func (c *Client) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	u := c.url(kind)
	if u == "" {
		return nil, fmt.Errorf("未配置 %s 的 master data URL", kind)
	}
	b, err := httpx.Get(ctx, c.HTTP, u)
	if err != nil {
		log.Error("master data 拉取失败", zap.String("kind", string(kind)), zap.String("url", u), zap.Error(err))
		return nil, fmt.Errorf("拉取 %s 失败：%w", kind, err)
	}
	log.Debug("master data 拉取完成", zap.String("kind", string(kind)), zap.Int("bytes", len(b)))
	return b, nil
}
