package imgx

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // 注册 JPEG 解码器（部分贴图是 jpg）
	"image/png"
	"strings"

	_ "golang.org/x/image/webp" // 注册 WebP 解码器

	"github.com/John-Robertt/mtgview/internal/domain"
)

// MaxCanvasSide 是单个 sprite 画布允许的最大边长（像素）。
const MaxCanvasSide = 16384

const dataURIPrefixPNG = "data:image/png;base64,"

// RasterContextError 表示无法为 sprite 分配输出画布（尺寸非法或超限）。
type RasterContextError struct {
	Width  int
	Height int
}

func (e *RasterContextError) Error() string {
	return fmt.Sprintf("无法分配画布：%dx%d", e.Width, e.Height)
}

// Decode 把图集图片（PNG/JPEG/WebP）解码为 NRGBA 位图。
// 批处理中每个图集只调用一次，之后所有 frame 共享同一位图。
func Decode(b []byte) (*image.NRGBA, error) {
	if len(b) == 0 {
		return nil, errors.New("图片为空")
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if n, ok := img.(*image.NRGBA); ok {
		return n, nil
	}
	bnd := img.Bounds()
	if bnd.Dx() <= 0 || bnd.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	out := image.NewNRGBA(image.Rect(0, 0, bnd.Dx(), bnd.Dy()))
	draw.Draw(out, out.Bounds(), img, bnd.Min, draw.Src)
	return out, nil
}

// ExtractSprite 从图集位图中裁出单个 frame。
//
// 约定：
//   - 画布尺寸 = SpriteSize；内容绘制在 SpriteOffset 处
//   - 未旋转：TextureRect 区域原样复制
//   - 旋转：图集中的区域为 TextureRect.Height x TextureRect.Width，内容被顺时针转了 90°；
//     这里逆时针转回，即 dst(sx,sy) = src(x + h-1-sy, y + sx)
//   - 超出图集范围的像素保持透明
func ExtractSprite(atlas *image.NRGBA, f domain.FrameGeometry) (*image.NRGBA, error) {
	if atlas == nil {
		return nil, errors.New("图集位图为空")
	}
	cw, ch := f.SpriteSize.Width, f.SpriteSize.Height
	if cw <= 0 || ch <= 0 || cw > MaxCanvasSide || ch > MaxCanvasSide {
		return nil, &RasterContextError{Width: cw, Height: ch}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, cw, ch))

	r := f.TextureRect
	ox, oy := f.SpriteOffset.X, f.SpriteOffset.Y

	if !f.TextureRotated {
		dr := image.Rect(ox, oy, ox+r.Width, oy+r.Height)
		draw.Draw(dst, dr, atlas, image.Pt(atlas.Rect.Min.X+r.X, atlas.Rect.Min.Y+r.Y), draw.Src)
		return dst, nil
	}

	sb := atlas.Bounds()
	for sy := 0; sy < r.Height; sy++ {
		dy := oy + sy
		if dy < 0 || dy >= ch {
			continue
		}
		for sx := 0; sx < r.Width; sx++ {
			dx := ox + sx
			if dx < 0 || dx >= cw {
				continue
			}
			p := image.Pt(sb.Min.X+r.X+r.Height-1-sy, sb.Min.Y+r.Y+sx)
			if !p.In(sb) {
				continue
			}
			dst.SetNRGBA(dx, dy, atlas.NRGBAAt(p.X, p.Y))
		}
	}
	return dst, nil
}

// EncodeDataURI 把图片编码为 PNG（无损）并包装为 data URI。
func EncodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return dataURIPrefixPNG + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ExtractDataURI 是单次提取的便捷入口：解码图集、裁切 frame、编码为 data URI。
// 批量场景请使用 Decode + ExtractSprite，避免对同一图集重复解码。
func ExtractDataURI(atlasBytes []byte, f domain.FrameGeometry) (string, error) {
	atlas, err := Decode(atlasBytes)
	if err != nil {
		return "", err
	}
	sprite, err := ExtractSprite(atlas, f)
	if err != nil {
		return "", err
	}
	return EncodeDataURI(sprite)
}

// DecodeDataURI 解析 base64 data URI，返回 MIME 类型与原始字节。
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("不是 data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI 缺少逗号分隔")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("只支持 base64 data URI")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mime, data, nil
}
