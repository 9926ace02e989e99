// Package previews 编排一次完整的图集预览同步：探测图集数量、批量提取、生成报告。
package previews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/atlas"
	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/domain"
	"github.com/John-Robertt/mtgview/internal/infra/fsx"
	"github.com/John-Robertt/mtgview/internal/infra/httpx"
	"github.com/John-Robertt/mtgview/internal/preview"
	"github.com/John-Robertt/mtgview/internal/store"
)

// ReportFile 是写入 data_dir 的报告文件名。
const ReportFile = "report.json"

// Deps 允许调用方注入已构造好的依赖；为空的字段按 eff 现场构造。
type Deps struct {
	HTTP *http.Client
	DB   *store.Lazy
	Log  *zap.Logger
}

// Options 控制报告内容。
type Options struct {
	// WithRecords 为 true 时报告包含每个 frame 的记录（含 data URI，体积较大）。
	WithRecords bool
}

// NewHTTPClient 按生效配置构造访问 CDN 的 client。
func NewHTTPClient(eff config.EffectiveConfig) (*http.Client, error) {
	return httpx.NewClient(httpx.Options{
		ProxyURL:          eff.ProxyURL,
		RequestsPerSecond: eff.RequestsPerSecond,
		Burst:             eff.Burst,
		RetryMax:          eff.RetryMax,
	})
}

// Sync 执行一次同步并返回对外稳定的 SyncReport。
//
// 规则：
// - 单个图集失败只体现在 report.atlases 中，不返回错误
// - 返回错误的情况：配置缺失、探测出错且一个图集都没确认、ctx 取消（此时报告包含部分结果）
// - 报告写入 <data_dir>/report.json（写入失败只记日志）
func Sync(ctx context.Context, eff config.EffectiveConfig, deps Deps, opts Options, obs Observer) (domain.SyncReport, error) {
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(eff)
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	rr := domain.SyncReport{
		MaxAtlas:  eff.MaxAtlas,
		StartedAt: started,
		Atlases:   make([]domain.AtlasResult, 0, 32),
	}
	finish := func(err error) (domain.SyncReport, error) {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, err
	}

	if eff.AtlasBaseURL == "" {
		return finish(&config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigFile, Err: errors.New("atlas_base_url 未配置")})
	}

	client := deps.HTTP
	if client == nil {
		c, err := NewHTTPClient(eff)
		if err != nil {
			return finish(&config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigFile, Err: fmt.Errorf("proxy.url 无效：%w", err)})
		}
		client = c
	}

	db := deps.DB
	if db == nil {
		db = store.NewLazy(store.DSNForPath(eff.DBPath()))
		defer db.Close()
		if err := os.MkdirAll(eff.DataDir, 0o755); err != nil {
			log.Warn("创建数据目录失败，预览缓存将不可用", zap.String("dir", eff.DataDir), zap.Error(err))
		}
	}

	src := &atlas.Source{HTTP: client, BaseURL: eff.AtlasBaseURL, Prefix: eff.AtlasPrefix}

	maxAtlas := eff.MaxAtlas
	if maxAtlas == 0 {
		probeStarted := time.Now()
		n, err := src.Discover(ctx, eff.ProbeLimit)
		if err != nil {
			log.Warn("图集探测中断", zap.Int("found", n), zap.Error(err))
			if n == 0 {
				return finish(err)
			}
		}
		maxAtlas = n
		if obs != nil {
			obs.OnPhaseDone("probe", map[string]any{
				"max_atlas": n,
				"limit":     eff.ProbeLimit,
			}, time.Since(probeStarted))
		}
	}
	rr.MaxAtlas = maxAtlas

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{"max_atlas": maxAtlas}, 0)
	}

	proc := &atlas.Processor{Fetcher: src, Cache: preview.New(db), Log: log}
	done := 0
	recs, results, runErr := proc.Process(ctx, maxAtlas, atlas.Hooks{
		OnAtlas: func(res domain.AtlasResult, dur time.Duration) {
			done++
			if obs != nil {
				obs.OnAtlasDone(done, maxAtlas, res, dur)
			}
		},
	})
	rr.Atlases = append(rr.Atlases, results...)
	if opts.WithRecords {
		rr.Records = recs
	}

	rr, _ = finish(nil)
	reportStarted := time.Now()
	if err := writeReport(eff.DataDir, rr); err != nil {
		log.Warn("写入报告失败", zap.String("dir", eff.DataDir), zap.Error(err))
	} else if obs != nil {
		obs.OnPhaseDone("report", map[string]any{"path": filepath.Join(eff.DataDir, ReportFile)}, time.Since(reportStarted))
	}
	return rr, runErr
}

func writeReport(dir string, rr domain.SyncReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, ReportFile, append(b, '\n'))
}
