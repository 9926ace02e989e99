package bundle

import (
	"bufio"
	"io"
	"path"
	"regexp"
	"strings"
)

// ParseAtlasPages 读取 Spine .atlas 文本中的页面图片名（去掉目录部分，按出现顺序）。
func ParseAtlasPages(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var pages []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.Contains(line, ":") {
			continue
		}
		switch strings.ToLower(path.Ext(line)) {
		case ".png", ".jpg", ".jpeg", ".webp":
			pages = append(pages, path.Base(strings.ReplaceAll(line, "\\", "/")))
		}
	}
	return pages, sc.Err()
}

var versionRE = regexp.MustCompile(`\d\.\d\.\d{1,2}`)

// 版本号位于骨骼文件头部（二进制 skel 的 hash 之后 / json 的 "spine" 字段）。
const versionScanBytes = 256

// SkeletonVersion 从骨骼文件头部嗅探 x.y.z 版本号；找不到返回空串。
func SkeletonVersion(b []byte) string {
	if len(b) > versionScanBytes {
		b = b[:versionScanBytes]
	}
	return string(versionRE.Find(b))
}
