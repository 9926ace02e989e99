package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
type StatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d location=%s: %s", e.StatusCode, loc, e.URL)
}

// IsNotFound 判断 err 是否表示“资源不存在”。
// 静态资源 CDN（S3/CloudFront）对不存在的对象常返回 403，这里一并视为不存在。
func IsNotFound(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusForbidden
}

// Get 下载 u 的完整内容；非 2xx 返回 *StatusError。
func Get(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(resp.Body)
}

// Exists 用 HEAD 探测资源是否存在，不下载内容。
//
// - 2xx：true
// - 403/404：false（不算错误）
// - 405：服务端不支持 HEAD，退回 GET 并丢弃响应体
// - 其他状态码 / 网络错误：返回错误
func Exists(ctx context.Context, c *http.Client, u string) (bool, error) {
	if c == nil {
		return false, errors.New("http client 为空")
	}
	ok, status, err := probe(ctx, c, http.MethodHead, u)
	if err == nil && status == http.StatusMethodNotAllowed {
		ok, status, err = probe(ctx, c, http.MethodGet, u)
	}
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	se := &StatusError{URL: u, StatusCode: status}
	if IsNotFound(se) {
		return false, nil
	}
	return false, se
}

func probe(ctx context.Context, c *http.Client, method, u string) (bool, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return false, 0, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return false, 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode, nil
}
