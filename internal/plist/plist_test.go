package plist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/mtgview/internal/domain"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return string(b)
}

func TestParse_Fixture(t *testing.T) {
	frames, err := Parse(readFixture(t, "characterExScenario-1.plist"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	want := domain.Frames{
		"s10010101.png": {
			SpriteSize:       domain.Size{Width: 204, Height: 96},
			SpriteSourceSize: domain.Size{Width: 204, Height: 96},
			TextureRect:      domain.Rect{X: 1, Y: 1, Width: 204, Height: 96},
		},
		"s10010201.png": {
			SpriteSize:       domain.Size{Width: 204, Height: 96},
			SpriteSourceSize: domain.Size{Width: 204, Height: 96},
			TextureRect:      domain.Rect{X: 207, Y: 1, Width: 204, Height: 96},
			TextureRotated:   true,
		},
		// 负数偏移不匹配 {\d+,\d+}：按 0 处理。
		"s10010301.png": {
			SpriteSize:       domain.Size{Width: 12, Height: 8},
			SpriteSourceSize: domain.Size{Width: 16, Height: 16},
			TextureRect:      domain.Rect{X: 1, Y: 99, Width: 12, Height: 8},
		},
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Fatalf("frames 不符合预期 (-want +got):\n%s", diff)
	}
}

func TestParse_Idempotent(t *testing.T) {
	src := readFixture(t, "characterExScenario-1.plist")
	a, err := Parse(src)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := Parse(src)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("两次解析结果不一致 (-first +second):\n%s", diff)
	}
}

func TestParseAtlas_OrderAndMetadata(t *testing.T) {
	a, err := ParseAtlas(readFixture(t, "characterExScenario-1.plist"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	wantOrder := []string{"s10010101.png", "s10010201.png", "s10010301.png"}
	if diff := cmp.Diff(wantOrder, a.Order); diff != "" {
		t.Fatalf("顺序不符合预期 (-want +got):\n%s", diff)
	}
	if a.TextureFileName != "characterExScenario-1.png" {
		t.Fatalf("textureFileName=%q", a.TextureFileName)
	}
	if a.Size != (domain.Size{Width: 512, Height: 256}) || a.Format != 3 {
		t.Fatalf("metadata 不符合预期：size=%+v format=%d", a.Size, a.Format)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"无根 dict":    `<plist version="1.0"></plist>`,
		"无 key":      `<plist><dict></dict></plist>`,
		"无 frames":   `<plist><dict><key>metadata</key><dict></dict></dict></plist>`,
		"frames 非字典": `<plist><dict><key>frames</key><string>x</string></dict></plist>`,
		"空文本":        ``,
	}
	for name, src := range cases {
		_, err := Parse(src)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s：期望 ErrMalformed，实际 %v", name, err)
		}
		var me *MalformedError
		if !errors.As(err, &me) {
			t.Fatalf("%s：期望 *MalformedError，实际 %T", name, err)
		}
	}
}

func TestParse_BadCoordinatesFallbackToZero(t *testing.T) {
	src := `<plist><dict><key>frames</key><dict>
		<key>a.png</key><dict>
			<key>spriteSize</key><string>oops</string>
			<key>textureRect</key><string>{1,2}</string>
		</dict>
	</dict></dict></plist>`
	frames, err := Parse(src)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	got, ok := frames["a.png"]
	if !ok {
		t.Fatalf("期望解析出 a.png")
	}
	if got != (domain.FrameGeometry{}) {
		t.Fatalf("期望全零几何，实际 %+v", got)
	}
}

func TestParse_SelfClosingDoesNotSwallowSiblings(t *testing.T) {
	src := `<plist><dict><key>frames</key><dict>
		<key>r.png</key><dict>
			<key>textureRotated</key><true/>
			<key>spriteSize</key><string>{3,4}</string>
		</dict>
	</dict></dict></plist>`
	frames, err := Parse(src)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	f := frames["r.png"]
	if !f.TextureRotated || f.SpriteSize != (domain.Size{Width: 3, Height: 4}) {
		t.Fatalf("frame 解析不正确：%+v", f)
	}
}
