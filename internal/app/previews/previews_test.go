package previews

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/domain"
	"github.com/John-Robertt/mtgview/internal/preview"
	"github.com/John-Robertt/mtgview/internal/store"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	atlases    []int
}

func (o *recordObserver) OnStart(config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnAtlasDone(_, _ int, res domain.AtlasResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.atlases = append(o.atlases, res.Index)
}

const plistTmpl = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict><key>frames</key><dict>
<key>%s</key><dict>
<key>spriteOffset</key><string>{0,0}</string>
<key>spriteSize</key><string>{2,2}</string>
<key>spriteSourceSize</key><string>{2,2}</string>
<key>textureRect</key><string>{{0,0},{2,2}}</string>
<key>textureRotated</key><false/>
</dict></dict></dict></plist>`

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码 PNG 失败：%v", err)
	}
	return buf.Bytes()
}

func newCDN(t *testing.T) *httptest.Server {
	t.Helper()
	img := pngBytes(t)
	plists := map[string]string{
		"/cdn/characterExScenario-1.plist": fmt.Sprintf(plistTmpl, "s10010101.png"),
		"/cdn/characterExScenario-2.plist": fmt.Sprintf(plistTmpl, "s10020101.png"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := plists[r.URL.Path]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
		if strings.HasSuffix(r.URL.Path, ".png") {
			p := strings.TrimSuffix(r.URL.Path, ".png") + ".plist"
			if _, ok := plists[p]; ok {
				_, _ = w.Write(img)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSync_ProbeProcessAndReport(t *testing.T) {
	srv := newCDN(t)
	dataDir := t.TempDir()
	eff := config.EffectiveConfig{
		DataDir:      dataDir,
		AtlasBaseURL: srv.URL + "/cdn",
		AtlasPrefix:  config.DefaultAtlasPrefix,
		ProbeLimit:   10,
	}
	obs := &recordObserver{}

	rr, err := Sync(context.Background(), eff, Deps{HTTP: srv.Client()}, Options{WithRecords: true}, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.MaxAtlas != 2 || rr.Summary.Processed != 2 || rr.Summary.Extracted != 2 || rr.Summary.Cached != 0 {
		t.Fatalf("报告不正确：%+v", rr.Summary)
	}
	if len(rr.Records) != 2 || rr.Records[0].SceneID != "100101" {
		t.Fatalf("记录不正确：%+v", rr.Records)
	}
	if obs.startCalls != 1 || strings.Join(obs.phases, ",") != "probe,exec,report" || len(obs.atlases) != 2 {
		t.Fatalf("事件不正确：start=%d phases=%v atlases=%v", obs.startCalls, obs.phases, obs.atlases)
	}

	b, err := os.ReadFile(filepath.Join(dataDir, ReportFile))
	if err != nil {
		t.Fatalf("报告未写入：%v", err)
	}
	var onDisk domain.SyncReport
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("报告不是合法 JSON：%v", err)
	}
	if onDisk.Summary != rr.Summary {
		t.Fatalf("磁盘报告与返回值不一致：%+v vs %+v", onDisk.Summary, rr.Summary)
	}

	// 第二次：全部命中缓存，且不带 records。
	eff.MaxAtlas = 2
	rr, err = Sync(context.Background(), eff, Deps{HTTP: srv.Client()}, Options{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Cached != 2 || rr.Summary.Extracted != 0 || rr.Records != nil {
		t.Fatalf("第二次应全部命中缓存：%+v records=%d", rr.Summary, len(rr.Records))
	}
}

func TestSync_MissingAtlasBaseURL(t *testing.T) {
	_, err := Sync(context.Background(), config.EffectiveConfig{DataDir: t.TempDir()}, Deps{}, Options{}, nil)
	if config.Code(err) != config.ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 %v", config.ErrCodeInvalid, err)
	}
}

func TestSync_NothingDiscovered(t *testing.T) {
	srv := newCDN(t)
	eff := config.EffectiveConfig{
		DataDir:      t.TempDir(),
		AtlasBaseURL: srv.URL + "/elsewhere",
		ProbeLimit:   5,
	}
	rr, err := Sync(context.Background(), eff, Deps{HTTP: srv.Client()}, Options{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.MaxAtlas != 0 || len(rr.Atlases) != 0 {
		t.Fatalf("没有图集时报告应为空：%+v", rr)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	lazy := store.NewLazy(store.DSNForPath(filepath.Join(t.TempDir(), "p.db")))
	defer lazy.Close()
	st := preview.New(lazy)

	img := pngBytes(t)
	uri := "data:image/png;base64," + encodeBase64(img)
	if err := st.PutBatch(ctx, []preview.Entry{
		{Key: "s10010101.png", DataURI: uri},
		{Key: "broken:01.png", DataURI: "not a data uri"},
	}); err != nil {
		t.Fatalf("写入缓存失败：%v", err)
	}

	dir := t.TempDir()
	res, err := Export(ctx, st, dir, false, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Written != 1 || len(res.Failed) != 1 || res.Failed[0] != "broken:01.png" {
		t.Fatalf("导出结果不正确：%+v", res)
	}
	got, err := os.ReadFile(filepath.Join(dir, "s10010101.png"))
	if err != nil || !bytes.Equal(got, img) {
		t.Fatalf("导出文件内容不正确：%v", err)
	}

	res, err = Export(ctx, st, dir, false, nil)
	if err != nil || res.Existing != 1 || res.Written != 0 {
		t.Fatalf("不覆盖时应计入 Existing：%+v err=%v", res, err)
	}
	res, err = Export(ctx, st, dir, true, nil)
	if err != nil || res.Written != 1 {
		t.Fatalf("覆盖模式应重新写入：%+v err=%v", res, err)
	}
}

func TestSafeName(t *testing.T) {
	cases := []struct {
		key, ext, want string
	}{
		{"s10010101.png", ".png", "s10010101.png"},
		{"S1.PNG", ".png", "S1.png"},
		{"a/b/c.png", ".png", "c.png"},
		{`x:y?.png`, ".png", "x_y_.png"},
		{"x1.jpg", ".png", "x1.jpg.png"},
		{"noext", ".png", "noext.png"},
		{"..", ".png", "_.png"},
		{".png", ".png", "_.png"},
	}
	for _, c := range cases {
		if got := safeName(c.key, c.ext); got != c.want {
			t.Fatalf("safeName(%q, %q)=%q，期望 %q", c.key, c.ext, got, c.want)
		}
	}
}

func TestExport_KeysDifferingOnlyInExtension(t *testing.T) {
	ctx := context.Background()
	lazy := store.NewLazy(store.DSNForPath(filepath.Join(t.TempDir(), "p.db")))
	defer lazy.Close()
	st := preview.New(lazy)

	uri := "data:image/png;base64," + encodeBase64(pngBytes(t))
	if err := st.PutBatch(ctx, []preview.Entry{
		{Key: "x1.png", DataURI: uri},
		{Key: "x1.jpg", DataURI: uri},
	}); err != nil {
		t.Fatalf("写入缓存失败：%v", err)
	}

	dir := t.TempDir()
	res, err := Export(ctx, st, dir, false, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Written != 2 || res.Existing != 0 {
		t.Fatalf("两个 key 都应各自写出：%+v", res)
	}
	for _, name := range []string{"x1.png", "x1.jpg.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("缺少导出文件 %s：%v", name, err)
		}
	}
}

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
