package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	AtlasStatusProcessed = "processed"
	AtlasStatusSkipped   = "skipped"
	AtlasStatusFailed    = "failed"
)

const (
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeMalformedPlist = "malformed_plist"
	ErrCodeDecodeFailed   = "decode_failed"
	ErrCodeRasterContext  = "raster_context"
	ErrCodeStoreFailed    = "store_failed"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// PreviewRecord 是批处理对每个 frame 的输出。
// PreviewURI 为空表示提取失败（JSON 输出为 null）。
type PreviewRecord struct {
	FrameID    string `json:"frame_id"`
	SceneID    string `json:"scene_id"`
	Atlas      int    `json:"atlas"`
	PreviewURI string `json:"-"`
	Cached     bool   `json:"cached"`
}

func (r PreviewRecord) HasPreview() bool { return r.PreviewURI != "" }

func (r PreviewRecord) MarshalJSON() ([]byte, error) {
	type Alias PreviewRecord
	var uri *string
	if r.PreviewURI != "" {
		u := r.PreviewURI
		uri = &u
	}
	return json.Marshal(struct {
		Alias
		PreviewURI *string `json:"preview_uri"`
	}{Alias: Alias(r), PreviewURI: uri})
}

// AtlasResult 记录单个图集序号的处理结果（单个图集失败不影响其它图集）。
type AtlasResult struct {
	Index     int    `json:"index"`
	Status    string `json:"status"`
	Frames    int    `json:"frames"`
	Duplicate int    `json:"duplicate"`
	Cached    int    `json:"cached"`
	Extracted int    `json:"extracted"`
	Failed    int    `json:"failed"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// SyncReport 是 sync 命令对外稳定输出（report.json / stdout JSON）的结构。
type SyncReport struct {
	MaxAtlas int `json:"max_atlas"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary SyncSummary     `json:"summary"`
	Atlases []AtlasResult   `json:"atlases"`
	Records []PreviewRecord `json:"records,omitempty"`
}

type SyncSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Frames    int `json:"frames"`
	Cached    int `json:"cached"`
	Extracted int `json:"extracted"`
	Missing   int `json:"missing"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) atlases 按 index 稳定排序（records 保持处理顺序，不重排）
// 3) summary 由 atlases 计算得出
func (r *SyncReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Atlases, func(i, j int) bool { return r.Atlases[i].Index < r.Atlases[j].Index })

	var s SyncSummary
	for _, a := range r.Atlases {
		switch a.Status {
		case AtlasStatusProcessed:
			s.Processed++
		case AtlasStatusSkipped:
			s.Skipped++
		case AtlasStatusFailed:
			s.Failed++
		}
		s.Frames += a.Frames - a.Duplicate
		s.Cached += a.Cached
		s.Extracted += a.Extracted
		s.Missing += a.Failed
	}
	r.Summary = s
}
