package domain

import (
	"path"
	"strings"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameGeometry 描述图集（atlas）中一个 frame 的几何信息。
//
// 约束：
//   - 所有字段按约定为非负整数；解析器不校验 TextureRect 是否落在图集范围内
//   - TextureRotated=true 时，图集中存放的是旋转后的内容（宽高互换）
type FrameGeometry struct {
	SpriteOffset     Point `json:"spriteOffset"`
	SpriteSize       Size  `json:"spriteSize"`
	SpriteSourceSize Size  `json:"spriteSourceSize"` // 仅供参考，提取时不使用
	TextureRect      Rect  `json:"textureRect"`
	TextureRotated   bool  `json:"textureRotated"`
}

// Frames 是 frame 名（例如 "s100101.png"）到几何信息的映射。
type Frames map[string]FrameGeometry

// SceneIDFromFrame 从 frame id 推导对外使用的 scene id。
//
// 规则：先去掉扩展名，再去掉首字符与末尾两个字符。
// 例如 "s10010101.png" -> "100101"。长度不足时返回空串。
func SceneIDFromFrame(frameID string) string {
	base := strings.TrimSuffix(frameID, path.Ext(frameID))
	r := []rune(base)
	if len(r) <= 3 {
		return ""
	}
	return string(r[1 : len(r)-2])
}
