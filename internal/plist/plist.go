// Package plist 把 TexturePacker（cocos2d 格式）导出的 .plist 解析为 frame 几何信息。
package plist

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mtgview/internal/domain"
)

// ErrMalformed 用于 errors.Is 判断；具体原因见 *MalformedError。
var ErrMalformed = errors.New("malformed plist")

// MalformedError 表示 plist 结构不符合预期（缺少根 dict / key / frames）。
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "plist 格式无效：" + e.Reason
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Atlas 是一份 plist 的完整解析结果。
type Atlas struct {
	Frames domain.Frames
	// Order 是 frame 在文档中出现的顺序（Frames 是 map，不保序）。
	Order []string

	TextureFileName string
	Size            domain.Size
	Format          int
}

// Parse 解析 plist 文本，返回 frame 名到几何信息的映射。
//
// 规则：
// - 缺少根 dict、根 dict 无 key、缺少 frames：返回 *MalformedError
// - 某个 frame 找不到对应的 dict：跳过该 frame
// - 坐标/尺寸文本不匹配 {a,b} / {{a,b},{c,d}}：按 0 处理（容忍残缺图集）
func Parse(xmlText string) (domain.Frames, error) {
	a, err := ParseAtlas(xmlText)
	if err != nil {
		return nil, err
	}
	return a.Frames, nil
}

// ParseAtlas 与 Parse 相同，但额外保留 frame 顺序与 metadata。
func ParseAtlas(xmlText string) (Atlas, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(expandSelfClosing(xmlText)))
	if err != nil {
		return Atlas{}, fmt.Errorf("读取 plist 失败：%w", err)
	}

	root := doc.Find("plist > dict").First()
	if root.Length() == 0 {
		return Atlas{}, &MalformedError{Reason: "缺少 plist > dict"}
	}
	if root.ChildrenFiltered("key").Length() == 0 {
		return Atlas{}, &MalformedError{Reason: "根 dict 中没有 key"}
	}

	framesDict, ok := valueOf(root, "frames")
	if !ok {
		return Atlas{}, &MalformedError{Reason: "缺少 frames"}
	}
	if goquery.NodeName(framesDict) != "dict" {
		return Atlas{}, &MalformedError{Reason: "frames 的值不是 dict"}
	}

	out := Atlas{Frames: domain.Frames{}}
	framesDict.ChildrenFiltered("key").Each(func(_ int, k *goquery.Selection) {
		name := strings.TrimSpace(k.Text())
		v := k.Next()
		if name == "" || goquery.NodeName(v) != "dict" {
			return
		}
		if _, dup := out.Frames[name]; !dup {
			out.Order = append(out.Order, name)
		}
		out.Frames[name] = parseFrame(v)
	})

	if meta, ok := valueOf(root, "metadata"); ok && goquery.NodeName(meta) == "dict" {
		fields := scalarFields(meta)
		out.TextureFileName = fields["textureFileName"]
		if out.TextureFileName == "" {
			out.TextureFileName = fields["realTextureFileName"]
		}
		out.Size = parseSize(fields["size"])
		out.Format, _ = strconv.Atoi(fields["format"])
	}
	return out, nil
}

// parseFrame 读取单个 frame dict。
// 值按 key 的下一个兄弟元素定位：string 为坐标文本，true/false 为旋转标记，array（aliases）忽略。
func parseFrame(dict *goquery.Selection) domain.FrameGeometry {
	fields := scalarFields(dict)
	return domain.FrameGeometry{
		SpriteOffset:     parsePoint(orDefault(fields["spriteOffset"], "{0,0}")),
		SpriteSize:       parseSize(orDefault(fields["spriteSize"], "{0,0}")),
		SpriteSourceSize: parseSize(orDefault(fields["spriteSourceSize"], "{0,0}")),
		TextureRect:      parseRect(orDefault(fields["textureRect"], "{{0,0},{0,0}}")),
		TextureRotated:   fields["textureRotated"] == "true",
	}
}

// scalarFields 把 dict 中的 key -> string/integer/true/false 收集为文本映射。
func scalarFields(dict *goquery.Selection) map[string]string {
	out := make(map[string]string, 8)
	dict.ChildrenFiltered("key").Each(func(_ int, k *goquery.Selection) {
		name := strings.TrimSpace(k.Text())
		v := k.Next()
		switch goquery.NodeName(v) {
		case "string", "integer", "real":
			out[name] = strings.TrimSpace(v.Text())
		case "true", "false":
			out[name] = goquery.NodeName(v)
		}
	})
	return out
}

func valueOf(dict *goquery.Selection, key string) (*goquery.Selection, bool) {
	var found *goquery.Selection
	dict.ChildrenFiltered("key").EachWithBreak(func(_ int, k *goquery.Selection) bool {
		if strings.TrimSpace(k.Text()) == key {
			found = k.Next()
			return false
		}
		return true
	})
	if found == nil || found.Length() == 0 {
		return nil, false
	}
	return found, true
}

// HTML 解析器会忽略非 void 元素上的自闭合标记（<true/> 会吞掉后续兄弟节点），
// 因此先把 <x/> 展开为 <x></x>。
var selfClosingRE = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9_-]*)\s*/>`)

func expandSelfClosing(s string) string {
	return selfClosingRE.ReplaceAllString(s, "<$1></$1>")
}

var (
	pairRE = regexp.MustCompile(`\{(\d+),(\d+)\}`)
	rectRE = regexp.MustCompile(`\{\{(\d+),(\d+)\},\{(\d+),(\d+)\}\}`)
)

func parsePoint(s string) domain.Point {
	m := pairRE.FindStringSubmatch(s)
	if m == nil {
		return domain.Point{}
	}
	return domain.Point{X: atoi(m[1]), Y: atoi(m[2])}
}

func parseSize(s string) domain.Size {
	m := pairRE.FindStringSubmatch(s)
	if m == nil {
		return domain.Size{}
	}
	return domain.Size{Width: atoi(m[1]), Height: atoi(m[2])}
}

func parseRect(s string) domain.Rect {
	m := rectRE.FindStringSubmatch(s)
	if m == nil {
		return domain.Rect{}
	}
	return domain.Rect{X: atoi(m[1]), Y: atoi(m[2]), Width: atoi(m[3]), Height: atoi(m[4])}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
