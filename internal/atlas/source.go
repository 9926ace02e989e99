// Package atlas 负责图集（characterExScenario-<i>.plist/.png）的获取、探测与批量预览提取。
package atlas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/mtgview/internal/infra/httpx"
	"github.com/John-Robertt/mtgview/internal/infra/imgx"
	"github.com/John-Robertt/mtgview/internal/plist"
)

const DefaultPrefix = "characterExScenario"

const (
	KindPlist = "plist"
	KindImage = "image"
)

// FetchError 表示某个图集序号的 plist 或图片无法获取。
type FetchError struct {
	Index int
	Kind  string
	Err   error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "atlas fetch error"
	}
	return fmt.Sprintf("图集 %d 的 %s 获取失败：%v", e.Index, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Source 描述图集端点：<BaseURL>/<Prefix>-<i>.plist 与 .png。
type Source struct {
	HTTP    *http.Client
	BaseURL string
	Prefix  string
}

func (s *Source) prefix() string {
	if p := strings.TrimSpace(s.Prefix); p != "" {
		return p
	}
	return DefaultPrefix
}

func (s *Source) url(i int, ext string) string {
	return fmt.Sprintf("%s/%s-%d.%s", strings.TrimRight(s.BaseURL, "/"), s.prefix(), i, ext)
}

func (s *Source) PlistURL(i int) string { return s.url(i, "plist") }
func (s *Source) ImageURL(i int) string { return s.url(i, "png") }

// FetchAtlas 下载并解析 plist（保留 frame 顺序）。
// 网络失败返回 *FetchError；结构错误返回 *plist.MalformedError。
func (s *Source) FetchAtlas(ctx context.Context, i int) (plist.Atlas, error) {
	b, err := httpx.Get(ctx, s.HTTP, s.PlistURL(i))
	if err != nil {
		return plist.Atlas{}, &FetchError{Index: i, Kind: KindPlist, Err: err}
	}
	return plist.ParseAtlas(string(b))
}

func (s *Source) FetchImage(ctx context.Context, i int) ([]byte, error) {
	b, err := httpx.Get(ctx, s.HTTP, s.ImageURL(i))
	if err != nil {
		return nil, &FetchError{Index: i, Kind: KindImage, Err: err}
	}
	return b, nil
}

// Exists 用 HEAD 探测图集 plist 是否存在（不靠下载失败判断）。
func (s *Source) Exists(ctx context.Context, i int) (bool, error) {
	return httpx.Exists(ctx, s.HTTP, s.PlistURL(i))
}

// Discover 从 1 开始逐个探测，返回连续存在的最大序号（0 表示一个都没有）。
//
// 规则：
// - 遇到第一个不存在的序号即停止
// - limit > 0 时最多探测 limit 个
// - 网络错误：返回已确认的序号与错误
func (s *Source) Discover(ctx context.Context, limit int) (int, error) {
	found := 0
	for i := 1; limit <= 0 || i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		ok, err := s.Exists(ctx, i)
		if err != nil {
			return found, &FetchError{Index: i, Kind: KindPlist, Err: err}
		}
		if !ok {
			break
		}
		found = i
	}
	return found, nil
}

// ExtractFrame 提取单个 frame 的预览 data URI（会下载整张图集，批量场景请用 Processor）。
func (s *Source) ExtractFrame(ctx context.Context, i int, frameID string) (string, error) {
	a, err := s.FetchAtlas(ctx, i)
	if err != nil {
		return "", err
	}
	f, ok := a.Frames[frameID]
	if !ok {
		return "", fmt.Errorf("图集 %d 中不存在 frame %q", i, frameID)
	}
	img, err := s.FetchImage(ctx, i)
	if err != nil {
		return "", err
	}
	return imgx.ExtractDataURI(img, f)
}

// IsAbsent 判断 err 是否表示图集不存在（404/403）。
func IsAbsent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && httpx.IsNotFound(fe.Err)
}
