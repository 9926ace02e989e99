package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/John-Robertt/mtgview/internal/domain"
	"github.com/John-Robertt/mtgview/internal/scene"
)

// ErrCharacterNotFound 表示 master data 中没有该角色。
var ErrCharacterNotFound = errors.New("角色不存在")

// DataSource 是 master data 的读取能力（masterdata.Cache 即其实现）。
type DataSource interface {
	Characters(ctx context.Context) ([]domain.Character, error)
	Scenes(ctx context.Context) ([]domain.Scene, error)
}

// Library 基于 master data 提供角色列表与播放列表查询。
type Library struct {
	Data           DataSource
	ProfileBaseURL string
}

// Characters 返回全部角色摘要，按 id 升序。
func (l *Library) Characters(ctx context.Context) ([]domain.CharacterSummary, error) {
	chars, err := l.Data.Characters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CharacterSummary, 0, len(chars))
	for _, c := range chars {
		out = append(out, domain.CharacterSummary{
			ID:              c.ID,
			Name:            c.DisplayName(),
			ProfileImageURL: c.ProfileImageURL(l.ProfileBaseURL),
			SceneLinks:      len(c.Scenes),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Playlist 解析角色的 scene 播放列表；includeAdult=false 时过滤成人场景（不改变其余顺序）。
func (l *Library) Playlist(ctx context.Context, characterID int, includeAdult bool) ([]domain.PlaylistEntry, error) {
	chars, err := l.Data.Characters(ctx)
	if err != nil {
		return nil, err
	}
	scenes, err := l.Data.Scenes(ctx)
	if err != nil {
		return nil, err
	}
	entries, ok := scene.ResolveByID(chars, characterID, scenes)
	if !ok {
		return nil, fmt.Errorf("%w：%d", ErrCharacterNotFound, characterID)
	}
	if includeAdult {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.IsAdult {
			out = append(out, e)
		}
	}
	return out, nil
}
