package previews

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/infra/fsx"
	"github.com/John-Robertt/mtgview/internal/infra/imgx"
	"github.com/John-Robertt/mtgview/internal/preview"
)

// 每批从缓存读取的条目数；data URI 较大，避免一次性全部载入内存。
const exportBatch = 200

// ExportResult 是一次导出的统计。
type ExportResult struct {
	Dir      string   `json:"dir"`
	Written  int      `json:"written"`
	Existing int      `json:"existing"`
	Failed   []string `json:"failed"`
}

// Export 把缓存中的预览逐个写为图片文件：<dir>/<frame 名>（扩展名按图片类型，见 safeName）。
//
// 规则：
// - overwrite=false 时已存在的同名文件保持不变（计入 Existing）
// - 单个条目解码/写入失败只记录，不中止导出
func Export(ctx context.Context, st *preview.Store, dir string, overwrite bool, log *zap.Logger) (ExportResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	res := ExportResult{Dir: dir, Failed: []string{}}

	keys, err := st.Keys(ctx)
	if err != nil {
		return res, err
	}
	for start := 0; start < len(keys); start += exportBatch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunk := keys[start:min(start+exportBatch, len(keys))]
		uris, err := st.GetBatch(ctx, chunk)
		if err != nil {
			return res, err
		}
		for _, k := range chunk {
			uri, ok := uris[k]
			if !ok {
				continue
			}
			name, data, err := exportFile(k, uri)
			if err == nil {
				if overwrite {
					err = fsx.WriteFileAtomic(dir, name, data)
				} else {
					err = fsx.WriteFileAtomicNoOverwrite(dir, name, data)
				}
			}
			switch {
			case err == nil:
				res.Written++
			case errors.Is(err, os.ErrExist):
				res.Existing++
			default:
				log.Warn("导出预览失败", zap.String("key", k), zap.Error(err))
				res.Failed = append(res.Failed, k)
			}
		}
	}
	return res, nil
}

func exportFile(key, uri string) (string, []byte, error) {
	mime, data, err := imgx.DecodeDataURI(uri)
	if err != nil {
		return "", nil, err
	}
	ext := ".png"
	switch mime {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return safeName(key, ext), data, nil
}

// safeName 把 key 转为 <dir> 下的文件名，结果以 ext 结尾。
//
// 规则：
//   - 去掉目录部分，替换文件系统不安全的字符
//   - key 的扩展名与 ext 相同（不区分大小写）时直接复用；否则保留原扩展名再追加 ext，
//     避免 "x.png" 与 "x.jpg" 落到同一个文件
func safeName(key, ext string) string {
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	if strings.EqualFold(path.Ext(base), ext) {
		base = base[:len(base)-len(ext)]
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "_"
	}
	return base + ext
}
