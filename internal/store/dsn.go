package store

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const scheme = "sqlite://"

// DSNForPath 把本地文件路径包装成 sqlite:// DSN。
func DSNForPath(path string) string {
	return scheme + path
}

func parseDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, scheme) {
		return "", fmt.Errorf("无效的 sqlite DSN，期望以 %s 开头", scheme)
	}
	rest := strings.TrimPrefix(dsn, scheme)
	if rest == "" {
		return "", fmt.Errorf("sqlite DSN 缺少路径")
	}
	if rest == ":memory:" {
		return rest, nil
	}

	path, query, hasQuery := strings.Cut(rest, "?")
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("路径反转义失败：%w", err)
	}
	path = unescaped
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	if hasQuery {
		return path + "?" + query, nil
	}
	return path, nil
}
