package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/John-Robertt/mtgview/internal/domain"
)

var (
	cA = color.NRGBA{255, 0, 0, 255}
	cB = color.NRGBA{0, 255, 0, 255}
	cC = color.NRGBA{0, 0, 255, 255}
	cD = color.NRGBA{255, 255, 0, 255}
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	return buf.Bytes()
}

func decodeURI(t *testing.T, uri string) *image.NRGBA {
	t.Helper()
	mime, b, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI 失败：%v", err)
	}
	if mime != "image/png" {
		t.Fatalf("期望 image/png，实际 %q", mime)
	}
	img, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode 失败：%v", err)
	}
	return img
}

func TestExtractSprite_NotRotated_DimensionsAndPixels(t *testing.T) {
	atlas := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	// 区域 (2,3) 起 3x2：左上 A，右下 B。
	atlas.SetNRGBA(2, 3, cA)
	atlas.SetNRGBA(4, 4, cB)

	f := domain.FrameGeometry{
		SpriteSize:  domain.Size{Width: 3, Height: 2},
		TextureRect: domain.Rect{X: 2, Y: 3, Width: 3, Height: 2},
	}
	uri, err := ExtractDataURI(encodePNG(t, atlas), f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	got := decodeURI(t, uri)
	if got.Bounds().Dx() != f.TextureRect.Width || got.Bounds().Dy() != f.TextureRect.Height {
		t.Fatalf("尺寸不符合预期：got=%v want=%dx%d", got.Bounds(), f.TextureRect.Width, f.TextureRect.Height)
	}
	if got.NRGBAAt(0, 0) != cA || got.NRGBAAt(2, 1) != cB {
		t.Fatalf("像素不符合预期：(0,0)=%v (2,1)=%v", got.NRGBAAt(0, 0), got.NRGBAAt(2, 1))
	}
}

// 逻辑 sprite（2x2）：
//
//	A B
//	C D
//
// 顺时针转 90° 后存入图集：
//
//	C A
//	D B
func TestExtractSprite_Rotated_KnownFixture(t *testing.T) {
	atlas := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	atlas.SetNRGBA(3, 1, cC)
	atlas.SetNRGBA(4, 1, cA)
	atlas.SetNRGBA(3, 2, cD)
	atlas.SetNRGBA(4, 2, cB)

	f := domain.FrameGeometry{
		SpriteSize:     domain.Size{Width: 2, Height: 2},
		TextureRect:    domain.Rect{X: 3, Y: 1, Width: 2, Height: 2},
		TextureRotated: true,
	}
	got, err := ExtractSprite(atlas, f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := [2][2]color.NRGBA{{cA, cB}, {cC, cD}}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got.NRGBAAt(x, y) != want[y][x] {
				t.Fatalf("(%d,%d) got=%v want=%v", x, y, got.NRGBAAt(x, y), want[y][x])
			}
		}
	}
}

func TestExtractSprite_Rotated_NonSquareUsesSpriteSize(t *testing.T) {
	// 逻辑 sprite 3x1：A B C；图集中为 1x3 竖条（自上而下 A B C）。
	atlas := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	atlas.SetNRGBA(1, 0, cA)
	atlas.SetNRGBA(1, 1, cB)
	atlas.SetNRGBA(1, 2, cC)

	f := domain.FrameGeometry{
		SpriteSize:     domain.Size{Width: 3, Height: 1},
		TextureRect:    domain.Rect{X: 1, Y: 0, Width: 3, Height: 1},
		TextureRotated: true,
	}
	got, err := ExtractSprite(atlas, f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got.Bounds().Dx() != f.SpriteSize.Width || got.Bounds().Dy() != f.SpriteSize.Height {
		t.Fatalf("旋转 frame 输出尺寸应等于 spriteSize：got=%v", got.Bounds())
	}
	if got.NRGBAAt(0, 0) != cA || got.NRGBAAt(1, 0) != cB || got.NRGBAAt(2, 0) != cC {
		t.Fatalf("像素不符合预期：%v %v %v", got.NRGBAAt(0, 0), got.NRGBAAt(1, 0), got.NRGBAAt(2, 0))
	}
}

func TestExtractSprite_OffsetAndClipping(t *testing.T) {
	atlas := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	atlas.SetNRGBA(0, 0, cA)

	f := domain.FrameGeometry{
		SpriteOffset: domain.Point{X: 1, Y: 1},
		SpriteSize:   domain.Size{Width: 3, Height: 3},
		// 区域超出图集：越界像素保持透明。
		TextureRect: domain.Rect{X: 0, Y: 0, Width: 4, Height: 4},
	}
	got, err := ExtractSprite(atlas, f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got.NRGBAAt(1, 1) != cA {
		t.Fatalf("偏移后 (1,1) 应为 A，实际 %v", got.NRGBAAt(1, 1))
	}
	if got.NRGBAAt(0, 0).A != 0 {
		t.Fatalf("偏移区域外应透明，实际 %v", got.NRGBAAt(0, 0))
	}
}

func TestExtractSprite_RasterContextError(t *testing.T) {
	atlas := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	for _, sz := range []domain.Size{{}, {Width: 0, Height: 5}, {Width: MaxCanvasSide + 1, Height: 1}} {
		_, err := ExtractSprite(atlas, domain.FrameGeometry{SpriteSize: sz})
		var re *RasterContextError
		if !errors.As(err, &re) {
			t.Fatalf("size=%+v 期望 RasterContextError，实际 %v", sz, err)
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
	if _, err := ExtractDataURI(nil, domain.FrameGeometry{}); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
}

func TestDecode_ConvertsPalettedToNRGBA(t *testing.T) {
	p := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{color.Transparent, cB})
	p.SetColorIndex(1, 0, 1)
	got, err := Decode(encodePNG(t, p))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got.NRGBAAt(1, 0) != cB {
		t.Fatalf("调色板像素转换不正确：%v", got.NRGBAAt(1, 0))
	}
}

func TestEncodeDataURI_Prefix(t *testing.T) {
	uri, err := EncodeDataURI(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("data URI 前缀不正确：%q", uri[:30])
	}
}

func TestDecodeDataURI_Invalid(t *testing.T) {
	for _, s := range []string{"", "http://x", "data:image/png,plain", "data:image/png;base64"} {
		if _, _, err := DecodeDataURI(s); err == nil {
			t.Fatalf("%q 期望错误", s)
		}
	}
}
