package domain

import (
	"fmt"
	"strings"
)

// Scene 对应 MSceneViewModel.json 的一条记录（只保留本项目消费的字段）。
//
// NextSceneID 构成单向链表；原始数据不保证无环。
type Scene struct {
	ID                   int    `json:"Id"`
	Title                string `json:"Title"`
	IsAdult              bool   `json:"IsAdult"`
	NextSceneID          *int   `json:"NextMSceneId"`
	SceneType            int    `json:"SceneType"`
	SceneStartEffectType int    `json:"SceneStartEffectType"`
}

// CharacterSceneLink 是某个羁绊等级（KizunaRank）对应的 scene 链入口。
type CharacterSceneLink struct {
	CharacterID int `json:"MCharacterId"`
	KizunaRank  int `json:"KizunaRank"`
	SceneID     int `json:"MSceneId"`
}

type CharacterBase struct {
	ID          int    `json:"Id"`
	Name        string `json:"Name"`
	KanaReading string `json:"KanaReading"`
	Country     string `json:"Country"`
	Birthday    string `json:"Birthday"`
	Profile     string `json:"Profile"`
	ModelID     int    `json:"ModelId"`
}

// Character 对应 MCharacterViewModel.json 的一条记录（只保留本项目消费的字段）。
type Character struct {
	ID              int                  `json:"Id"`
	Name            string               `json:"Name"`
	CharacterType   int                  `json:"CharacterType"`
	CharacterRarity int                  `json:"CharacterRarity"`
	Base            CharacterBase        `json:"MCharacterBase"`
	Scenes          []CharacterSceneLink `json:"MCharacterScenes"`
	ModelID         int                  `json:"ModelId"`
	Greeting        string               `json:"Greeting"`
}

// DisplayName 优先使用 MCharacterBase.Name（角色本名），缺失时退回卡面名。
func (c Character) DisplayName() string {
	if n := strings.TrimSpace(c.Base.Name); n != "" {
		return n
	}
	return c.Name
}

// ProfileImageURL 返回角色立绘台词图的地址：<base>/<id>.png。
func (c Character) ProfileImageURL(base string) string {
	return fmt.Sprintf("%s/%d.png", strings.TrimRight(base, "/"), c.ID)
}

// PlaylistEntry 是沿 scene 链解析后的一条播放项。
// KizunaRank 继承自链入口（CharacterSceneLink），而不是 scene 本身。
type PlaylistEntry struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	KizunaRank int    `json:"kizunaRank"`
	IsAdult    bool   `json:"isAdult"`
}

// CharacterSummary 是 characters 命令的输出行。
type CharacterSummary struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profileImageUrl"`
	SceneLinks      int    `json:"sceneLinks"`
}
