package atlas

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/mtgview/internal/domain"
	"github.com/John-Robertt/mtgview/internal/infra/imgx"
	"github.com/John-Robertt/mtgview/internal/plist"
	"github.com/John-Robertt/mtgview/internal/preview"
)

// AtlasFetcher 抽象单个图集序号的 plist 与图片获取（Source 即其实现）。
type AtlasFetcher interface {
	FetchAtlas(ctx context.Context, i int) (plist.Atlas, error)
	FetchImage(ctx context.Context, i int) ([]byte, error)
}

// PreviewCache 是批处理所需的预览缓存能力（preview.Store 即其实现）。
type PreviewCache interface {
	GetBatch(ctx context.Context, keys []string) (map[string]string, error)
	PutBatch(ctx context.Context, entries []preview.Entry) error
}

// Hooks 是批处理的可选回调；均在驱动 goroutine 上同步调用。
type Hooks struct {
	// OnProgress 在每个图集处理完成后调用（无论成功或跳过）。
	OnProgress func(done, total int)
	// OnAtlas 携带单个图集的处理结果与耗时。
	OnAtlas func(res domain.AtlasResult, dur time.Duration)
}

// Processor 按图集序号 1..max 批量提取 frame 预览。
//
// 约束：
// - 每个序号的 plist 与图片并发获取，图片只解码一次
// - frame id 在整个批次内去重（先处理的图集优先）
// - 每个图集只做一次批量缓存读取与一次批量缓存写入
// - 单个 frame / 单个图集失败只降级，不中止批次
type Processor struct {
	Fetcher AtlasFetcher
	// Cache 为 nil 表示不使用缓存（每个 frame 都现场提取）。
	Cache PreviewCache
	Log   *zap.Logger
}

// ProcessAll 返回每个 frame 一条记录；提取失败的记录 PreviewURI 为空。
func (p *Processor) ProcessAll(ctx context.Context, maxAtlasIndex int, onProgress func(done, total int)) ([]domain.PreviewRecord, error) {
	recs, _, err := p.Process(ctx, maxAtlasIndex, Hooks{OnProgress: onProgress})
	return recs, err
}

// Process 与 ProcessAll 相同，但额外返回每个图集的处理结果。
// ctx 取消时返回已完成图集的部分结果与 ctx.Err()；获取中被打断的图集不计入结果。
func (p *Processor) Process(ctx context.Context, maxAtlasIndex int, hooks Hooks) ([]domain.PreviewRecord, []domain.AtlasResult, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	records := make([]domain.PreviewRecord, 0, 256)
	results := make([]domain.AtlasResult, 0, max(maxAtlasIndex, 0))
	emitted := make(map[string]struct{}, 256)

	for i := 1; i <= maxAtlasIndex; i++ {
		if err := ctx.Err(); err != nil {
			return records, results, err
		}

		started := time.Now()
		recs, res, err := p.processOne(ctx, log, i, emitted)
		if err != nil {
			return records, results, err
		}
		records = append(records, recs...)
		results = append(results, res)

		if hooks.OnAtlas != nil {
			hooks.OnAtlas(res, time.Since(started))
		}
		if hooks.OnProgress != nil {
			hooks.OnProgress(i, maxAtlasIndex)
		}
	}
	return records, results, nil
}

// processOne 处理单个图集序号。
// 获取阶段被 ctx 取消时返回 ctx 错误，该图集不计入结果（既不算跳过也不算失败）。
func (p *Processor) processOne(ctx context.Context, log *zap.Logger, idx int, emitted map[string]struct{}) ([]domain.PreviewRecord, domain.AtlasResult, error) {
	res := domain.AtlasResult{Index: idx}
	log = log.With(zap.Int("atlas", idx))

	var (
		atl      plist.Atlas
		imgBytes []byte
		plistErr error
		imgErr   error
	)
	// 两个请求各自记录错误，互不取消：结果分类不能依赖哪一个先失败。
	var g errgroup.Group
	g.Go(func() error {
		atl, plistErr = p.Fetcher.FetchAtlas(ctx, idx)
		return nil
	})
	g.Go(func() error {
		imgBytes, imgErr = p.Fetcher.FetchImage(ctx, idx)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil && (plistErr != nil || imgErr != nil) {
		return nil, res, err
	}
	switch {
	case imgErr != nil:
		res.Status = domain.AtlasStatusSkipped
		res.ErrorCode = domain.ErrCodeFetchFailed
		res.ErrorMsg = imgErr.Error()
		log.Info("图集图片获取失败，跳过", zap.Error(imgErr))
		return nil, res, nil
	case errors.Is(plistErr, plist.ErrMalformed):
		res.Status = domain.AtlasStatusFailed
		res.ErrorCode = domain.ErrCodeMalformedPlist
		res.ErrorMsg = plistErr.Error()
		log.Warn("图集 plist 无效，跳过", zap.Error(plistErr))
		return nil, res, nil
	case plistErr != nil:
		res.Status = domain.AtlasStatusSkipped
		res.ErrorCode = domain.ErrCodeFetchFailed
		res.ErrorMsg = plistErr.Error()
		log.Info("图集 plist 获取失败，跳过", zap.Error(plistErr))
		return nil, res, nil
	}

	// 整张图集只解码一次；失败时缓存命中的 frame 仍然输出。
	bitmap, decodeErr := imgx.Decode(imgBytes)
	if decodeErr != nil {
		log.Warn("图集图片解码失败", zap.Error(decodeErr))
	}

	res.Frames = len(atl.Order)
	fresh := make([]string, 0, len(atl.Order))
	for _, id := range atl.Order {
		if _, ok := emitted[id]; ok {
			res.Duplicate++
			continue
		}
		emitted[id] = struct{}{}
		fresh = append(fresh, id)
	}

	cached := map[string]string{}
	if p.Cache != nil && len(fresh) > 0 {
		got, err := p.Cache.GetBatch(ctx, fresh)
		if err != nil {
			log.Warn("预览缓存读取失败，按未命中处理", zap.Error(err))
		} else {
			cached = got
		}
	}

	recs := make([]domain.PreviewRecord, 0, len(fresh))
	var toStore []preview.Entry
	var rasterErr error
	for _, id := range fresh {
		rec := domain.PreviewRecord{FrameID: id, SceneID: domain.SceneIDFromFrame(id), Atlas: idx}
		if uri, ok := cached[id]; ok {
			rec.PreviewURI = uri
			rec.Cached = true
			res.Cached++
			recs = append(recs, rec)
			continue
		}

		uri, err := extract(bitmap, decodeErr, atl.Frames[id])
		if err != nil {
			var rce *imgx.RasterContextError
			if errors.As(err, &rce) {
				rasterErr = err
			}
			res.Failed++
			log.Debug("frame 提取失败", zap.String("frame", id), zap.Error(err))
		} else {
			rec.PreviewURI = uri
			res.Extracted++
			toStore = append(toStore, preview.Entry{Key: id, DataURI: uri})
		}
		recs = append(recs, rec)
	}

	if p.Cache != nil && len(toStore) > 0 {
		if err := p.Cache.PutBatch(ctx, toStore); err != nil {
			log.Warn("预览缓存写入失败", zap.Int("entries", len(toStore)), zap.Error(err))
		}
	}

	switch {
	case decodeErr != nil && res.Failed > 0:
		res.Status = domain.AtlasStatusFailed
		res.ErrorCode = domain.ErrCodeDecodeFailed
		res.ErrorMsg = decodeErr.Error()
	default:
		res.Status = domain.AtlasStatusProcessed
		if rasterErr != nil {
			res.ErrorCode = domain.ErrCodeRasterContext
			res.ErrorMsg = rasterErr.Error()
		}
	}
	log.Debug("图集处理完成",
		zap.Int("frames", res.Frames),
		zap.Int("cached", res.Cached),
		zap.Int("extracted", res.Extracted),
		zap.Int("failed", res.Failed),
	)
	return recs, res, nil
}

func extract(bitmap *image.NRGBA, decodeErr error, f domain.FrameGeometry) (string, error) {
	if decodeErr != nil {
		return "", decodeErr
	}
	sprite, err := imgx.ExtractSprite(bitmap, f)
	if err != nil {
		return "", err
	}
	return imgx.EncodeDataURI(sprite)
}
