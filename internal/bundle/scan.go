package bundle

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 元数据文件（atlas / skel 头部）读取上限；atlas 文本通常只有几十 KB。
const maxMetaBytes = 4 << 20

// ScanDir 扫描 root 下的资源文件，返回可直接交给 Classify 的列表。
//
// 规则：
// - 跳过以 '.' 开头的目录与文件（包括原子写入遗留的临时文件）
// - 只有 .atlas / .skel / .json 会读取内容，其余只做 stat
// - 输出按 RelPath 排序
func ScanDir(root string) ([]File, error) {
	root = filepath.Clean(root)

	files := make([]File, 0, 32)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		f := File{RelPath: filepath.ToSlash(rel), Size: info.Size()}

		switch f.ext() {
		case "atlas", "skel", "json":
			b, err := readHead(p, maxMetaBytes)
			if err != nil {
				return err
			}
			f.Data = b
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func readHead(p string, limit int64) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}
