// Package scene 沿 NextMSceneId 解析角色的 scene 播放列表。
package scene

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/mtgview/internal/domain"
)

// ContinuationTitle 是“后续”场景的占位标题；展示时沿用上一条的标题。
const ContinuationTitle = "その後――"

var continuationNFC = norm.NFC.String(ContinuationTitle)

// Resolve 把角色的每个 scene 入口展开成播放列表。
//
// 规则：
// - 按 MCharacterScenes 的声明顺序展开；链内按遍历顺序，不重排
// - 每条链独立维护 visited 集合：重复 id 立即结束该链（防环），不报错
// - 链上缺失的 scene 视为正常结束
// - 标题等于 ContinuationTitle 时替换为同一条链上一条的展示标题；链首没有上一条时保留原标题
// - KizunaRank 继承自链入口
func Resolve(character domain.Character, allScenes []domain.Scene) []domain.PlaylistEntry {
	byID := make(map[int]domain.Scene, len(allScenes))
	for _, s := range allScenes {
		byID[s.ID] = s
	}

	out := make([]domain.PlaylistEntry, 0, len(character.Scenes))
	for _, link := range character.Scenes {
		visited := make(map[int]struct{})
		prevTitle := ""
		cur := &link.SceneID
		for cur != nil {
			id := *cur
			if _, seen := visited[id]; seen {
				break
			}
			visited[id] = struct{}{}

			s, ok := byID[id]
			if !ok {
				break
			}

			title := s.Title
			if isContinuation(title) && prevTitle != "" {
				title = prevTitle
			}
			prevTitle = title

			out = append(out, domain.PlaylistEntry{
				ID:         s.ID,
				Title:      title,
				KizunaRank: link.KizunaRank,
				IsAdult:    s.IsAdult,
			})
			cur = s.NextSceneID
		}
	}
	return out
}

// ResolveByID 在角色列表中按 id 查找并解析；找不到角色时 ok=false。
func ResolveByID(characters []domain.Character, characterID int, allScenes []domain.Scene) ([]domain.PlaylistEntry, bool) {
	for _, c := range characters {
		if c.ID == characterID {
			return Resolve(c, allScenes), true
		}
	}
	return nil, false
}

func isContinuation(title string) bool {
	return norm.NFC.String(strings.TrimSpace(title)) == continuationNFC
}
