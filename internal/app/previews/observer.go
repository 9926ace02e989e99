package previews

import (
	"time"

	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/domain"
)

// Observer 把“运行进度/阶段/图集结果”从核心流程中解耦出来。
//
// 约束：
// - previews 包只发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件都在驱动 goroutine 上同步发出；实现若另起 goroutine 需自行加锁
type Observer interface {
	// OnStart 在 Sync 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（probe / exec / report）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnAtlasDone 在每个图集序号处理完成后调用。
	OnAtlasDone(done, total int, res domain.AtlasResult, dur time.Duration)
}
