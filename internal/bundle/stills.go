package bundle

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/infra/fsx"
	"github.com/John-Robertt/mtgview/internal/infra/httpx"
)

// 立绘资源的扩展名，按探测顺序。
var stillExts = []string{"skel", "atlas", "png"}

// 防止服务端对任意路径都返回 200 时无限探测。
const defaultMaxStillIndex = 64

// StillFile 是某个序号下存在的单个远端文件。
type StillFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// StillSet 是一个序号对应的一组文件（例如 1.skel / 1.atlas / 1.png）。
type StillSet struct {
	Index int         `json:"index"`
	Stem  string      `json:"stem"`
	Files []StillFile `json:"files"`
}

// StillLocator 在立绘 CDN 上定位某个 frame 的全部骨骼资源。
type StillLocator struct {
	HTTP    *http.Client
	BaseURL string
	// MaxIndex <= 0 时使用默认上限。
	MaxIndex int
	Log      *zap.Logger
}

// Dir 返回 frame 的资源目录：<BaseURL>/<frameID[1:4]>/<frameID>。
func (l *StillLocator) Dir(frameID string) (string, error) {
	frameID = strings.TrimSpace(frameID)
	if len(frameID) < 4 {
		return "", fmt.Errorf("frame id 过短：%q", frameID)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(l.BaseURL, "/"), frameID[1:4], frameID), nil
}

// Locate 从序号 1 开始逐个探测，直到某个序号下一个文件都没有。
//
// 规则：
// - 偶数序号优先尝试 "<i>m"，奇数优先 "<i>"；首选全部缺失时再尝试另一种后缀
// - 每个序号按 skel, atlas, png 顺序探测，存在即收录
// - 探测本身出错（非 404/403）时返回已收集的结果与错误
func (l *StillLocator) Locate(ctx context.Context, frameID string) ([]StillSet, error) {
	dir, err := l.Dir(frameID)
	if err != nil {
		return nil, err
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	limit := l.MaxIndex
	if limit <= 0 {
		limit = defaultMaxStillIndex
	}

	var out []StillSet
	for i := 1; i <= limit; i++ {
		primary, alternate := stillStems(i)

		files, err := l.probe(ctx, dir, primary)
		if err != nil {
			return out, err
		}
		stem := primary
		if len(files) == 0 {
			files, err = l.probe(ctx, dir, alternate)
			if err != nil {
				return out, err
			}
			stem = alternate
		}
		if len(files) == 0 {
			log.Debug("立绘序号不存在，停止探测", zap.String("frame", frameID), zap.Int("index", i))
			break
		}
		out = append(out, StillSet{Index: i, Stem: stem, Files: files})
	}
	return out, nil
}

func stillStems(i int) (primary, alternate string) {
	n := strconv.Itoa(i)
	if i%2 == 0 {
		return n + "m", n
	}
	return n, n + "m"
}

func (l *StillLocator) probe(ctx context.Context, dir, stem string) ([]StillFile, error) {
	var files []StillFile
	for _, ext := range stillExts {
		name := stem + "." + ext
		u := dir + "/" + name
		ok, err := httpx.Exists(ctx, l.HTTP, u)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, StillFile{Name: name, URL: u})
		}
	}
	return files, nil
}

// Download 把定位到的文件原子写入 dir，并返回可交给 Classify 的文件列表。
func (l *StillLocator) Download(ctx context.Context, sets []StillSet, dir string) ([]File, error) {
	var out []File
	for _, s := range sets {
		for _, sf := range s.Files {
			b, err := httpx.Get(ctx, l.HTTP, sf.URL)
			if err != nil {
				return out, err
			}
			if err := fsx.WriteFileAtomic(dir, sf.Name, b); err != nil {
				return out, err
			}
			f := File{RelPath: sf.Name, Size: int64(len(b))}
			switch f.ext() {
			case "atlas", "skel", "json":
				f.Data = b
			}
			out = append(out, f)
		}
	}
	return out, nil
}
