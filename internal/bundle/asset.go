// Package bundle 识别立绘（Spine still）资源包：按文件扩展名把文件归类为
// Spine 模型、语音集或背景图三种固定类型之一。
package bundle

import (
	"path"
	"sort"
	"strings"
)

type Kind string

const (
	KindSpine      Kind = "spine"
	KindAudio      Kind = "audio"
	KindBackground Kind = "background"
)

// File 是待分类的单个文件。
// Data 只对 .atlas / .skel / .json 有意义（读取页面列表与版本号），其余类型可为空。
type File struct {
	// RelPath 使用 '/' 分隔。
	RelPath string
	Size    int64
	Data    []byte
}

func (f File) base() string { return path.Base(f.RelPath) }

func (f File) ext() string { return strings.ToLower(strings.TrimPrefix(path.Ext(f.RelPath), ".")) }

// stem 返回去掉目录与最后一个扩展名的文件名。
func (f File) stem() string {
	b := f.base()
	return strings.TrimSuffix(b, path.Ext(b))
}

// Asset 是分类结果的封闭变体集合：*SpineModel、*AudioSet、*Background。
type Asset interface {
	Kind() Kind
	AssetName() string
	isAsset()
}

// SpineModel 是一个可交给动画运行时加载的骨骼模型。
type SpineModel struct {
	Name string
	// Skeleton 为 .skel（二进制）或 .json 文件的相对路径；缺失时为空。
	Skeleton     string
	SkeletonJSON bool
	Atlas        string
	// Textures 是 atlas 声明的页面图片名（与文件是否存在无关）。
	Textures []string
	Version  string
}

// AudioSet 是同一目录下的语音文件集合。
type AudioSet struct {
	Name  string
	Files []string
}

// Background 是未被任何 atlas 引用的独立贴图。
type Background struct {
	Name  string
	Image string
}

func (*SpineModel) Kind() Kind { return KindSpine }
func (*AudioSet) Kind() Kind   { return KindAudio }
func (*Background) Kind() Kind { return KindBackground }

func (m *SpineModel) AssetName() string { return m.Name }
func (a *AudioSet) AssetName() string   { return a.Name }
func (b *Background) AssetName() string { return b.Name }

func (*SpineModel) isAsset() {}
func (*AudioSet) isAsset()   {}
func (*Background) isAsset() {}

// Complete 判断模型是否同时具备骨骼与 atlas。
func (m *SpineModel) Complete() bool {
	return m.Skeleton != "" && m.Atlas != ""
}

func isAudioExt(ext string) bool {
	switch ext {
	case "ogg", "wav", "mp3", "m4a":
		return true
	}
	return false
}

func isTextureExt(ext string) bool {
	switch ext {
	case "png", "jpg", "jpeg", "webp":
		return true
	}
	return false
}

// Classify 把文件归类为资源变体。
//
// 规则：
// - .skel / .json / .atlas：按去扩展名后的文件名归入同一个 SpineModel
// - 音频：按所在目录归入 AudioSet（根目录名为 "untitled"）
// - 贴图：被任何 atlas 页面引用的归属于模型，其余各自成为 Background
// - 其它扩展名忽略
//
// 输出按 Kind（spine, audio, background）再按名称稳定排序。
func Classify(files []File) []Asset {
	models := map[string]*SpineModel{}
	audios := map[string]*AudioSet{}
	referenced := map[string]struct{}{}
	var textures []File

	model := func(name string) *SpineModel {
		m, ok := models[name]
		if !ok {
			m = &SpineModel{Name: name}
			models[name] = m
		}
		return m
	}

	for _, f := range files {
		ext := f.ext()
		switch {
		case ext == "skel" || ext == "json":
			m := model(f.stem())
			// 二进制与 json 同时存在时优先 json（与运行时加载顺序一致）。
			if m.Skeleton == "" || ext == "json" {
				m.Skeleton = f.RelPath
				m.SkeletonJSON = ext == "json"
			}
			if v := SkeletonVersion(f.Data); v != "" {
				m.Version = v
			}
		case ext == "atlas":
			m := model(f.stem())
			m.Atlas = f.RelPath
			pages, _ := ParseAtlasPages(strings.NewReader(string(f.Data)))
			m.Textures = pages
			for _, p := range pages {
				referenced[p] = struct{}{}
			}
		case isAudioExt(ext):
			dir := path.Dir(f.RelPath)
			name := path.Base(dir)
			if dir == "." || dir == "/" {
				name = "untitled"
			}
			a, ok := audios[dir]
			if !ok {
				a = &AudioSet{Name: name}
				audios[dir] = a
			}
			a.Files = append(a.Files, f.RelPath)
		case isTextureExt(ext):
			textures = append(textures, f)
		}
	}

	out := make([]Asset, 0, len(models)+len(audios)+len(textures))
	for _, m := range models {
		out = append(out, m)
	}
	for _, a := range audios {
		sort.Strings(a.Files)
		out = append(out, a)
	}
	for _, t := range textures {
		if _, ok := referenced[t.base()]; ok {
			continue
		}
		out = append(out, &Background{Name: t.stem(), Image: t.RelPath})
	}

	rank := map[Kind]int{KindSpine: 0, KindAudio: 1, KindBackground: 2}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank[out[i].Kind()], rank[out[j].Kind()]
		if ri != rj {
			return ri < rj
		}
		return out[i].AssetName() < out[j].AssetName()
	})
	return out
}
