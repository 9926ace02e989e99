package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/mtgview/internal/app/previews"
	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/domain"
)

var _ previews.Observer = (*progressUI)(nil)

// progressUI 是交互终端下 sync 的进度输出。
//
// 约束：
// - 只写到 w（stderr 或 fallback 的 stdout），stdout JSON 不受影响
// - 长时间没有图集完成时，ticker 定期补一行进度
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total     int
	done      int
	ok        int
	fail      int
	skip      int
	frames    int
	extracted int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] mtgview sync\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  data_dir: %s\n", eff.DataDir)
	fmt.Fprintf(p.w, "  atlas: %s/%s-<i>.plist\n", truncate(strings.TrimRight(eff.AtlasBaseURL, "/"), 100), eff.AtlasPrefix)
	if eff.MaxAtlas > 0 {
		fmt.Fprintf(p.w, "  max_atlas: %d\n", eff.MaxAtlas)
	} else {
		fmt.Fprintf(p.w, "  max_atlas: auto (probe_limit=%d)\n", eff.ProbeLimit)
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.RequestsPerSecond > 0 {
		fmt.Fprintf(p.w, "  rate: %.1f/s burst=%d\n", eff.RequestsPerSecond, eff.Burst)
	}
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "probe":
		fmt.Fprintf(p.w, "探测: max_atlas=%d (%s)\n", intField(fields, "max_atlas"), formatShortDuration(dur))
	case "exec":
		p.total = intField(fields, "max_atlas")
		fmt.Fprintf(p.w, "执行: atlases=%d\n\n", p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "report":
		fmt.Fprintf(p.w, "报告: %v\n", fields["path"])
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnAtlasDone(done, total int, res domain.AtlasResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	p.frames += res.Frames - res.Duplicate
	p.extracted += res.Extracted

	status := strings.ToUpper(res.Status)
	switch res.Status {
	case domain.AtlasStatusProcessed:
		p.ok++
		status = "OK"
	case domain.AtlasStatusSkipped:
		p.skip++
		status = "SKIP"
	case domain.AtlasStatusFailed:
		p.fail++
		status = "FAIL"
	}

	switch {
	case res.Status == domain.AtlasStatusProcessed && res.ErrorCode == "":
		fmt.Fprintf(p.w, "[%d/%d] atlas %d %s frames=%d dup=%d cached=%d extracted=%d (%s)\n",
			done, total, res.Index, status, res.Frames, res.Duplicate, res.Cached, res.Extracted, formatShortDuration(dur),
		)
	case res.Status == domain.AtlasStatusProcessed:
		fmt.Fprintf(p.w, "[%d/%d] atlas %d %s frames=%d extracted=%d missing=%d %s: %s (%s)\n",
			done, total, res.Index, status, res.Frames, res.Extracted, res.Failed, res.ErrorCode, truncate(res.ErrorMsg, 120), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] atlas %d %s %s: %s (%s)\n",
			done, total, res.Index, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()

	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive ticker；Sync 提前返回（取消/出错）时由调用方保证调用。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					p.printProgressLocked()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) printProgressLocked() {
	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d frames=%d extracted=%d elapsed=%s\n",
		p.done, p.total, p.ok, p.fail, p.skip, p.frames, p.extracted, formatElapsed(time.Since(p.startedAt)),
	)
	p.lastPrinted = time.Now()
}

// formatProxy 只展示 scheme/host 与是否带认证，不回显密码。
func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", max(d, 0).Seconds())
}

func formatElapsed(d time.Duration) string {
	sec := int(max(d, 0).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
