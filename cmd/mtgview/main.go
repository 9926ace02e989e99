package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/mtgview/internal/app"
	"github.com/John-Robertt/mtgview/internal/app/previews"
	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/masterdata"
	"github.com/John-Robertt/mtgview/internal/store"
)

// globalFlags 是所有子命令共享的 persistent flags。
type globalFlags struct {
	configPath string
	dataDir    string
	proxy      string
	logLevel   string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "mtgview",
		Short:         "Mist Train Girls 场景浏览工具：master data 查询、预览提取与立绘定位",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "配置文件路径（默认读取 ./"+config.FileName+"，不存在则忽略）")
	pf.StringVar(&g.dataDir, "data-dir", "", "本地数据目录（默认 "+config.DefaultDataDir+"）")
	pf.StringVar(&g.proxy, "proxy", "", "HTTP 代理，例如 http://127.0.0.1:7890")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "等价于 --log-level=debug")

	root.AddCommand(syncCmd(g))
	root.AddCommand(charactersCmd(g))
	root.AddCommand(scenesCmd(g))
	root.AddCommand(stillsCmd(g))
	root.AddCommand(previewCmd(g))
	root.AddCommand(exportCmd(g))
	root.AddCommand(cacheCmd(g))
	root.SetErr(os.Stderr)
	return root
}

// cliArgs 把 flags 转为 config.CLIArgs；Changed 决定是否覆盖配置文件。
func (g *globalFlags) cliArgs(cmd *cobra.Command) config.CLIArgs {
	a := config.CLIArgs{ConfigPath: g.configPath}
	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		a.DataDir, a.DataDirSet = g.dataDir, true
	}
	if f := cmd.Flags().Lookup("proxy"); f != nil && f.Changed {
		a.ProxyURL, a.ProxyURLSet = g.proxy, true
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		a.LogLevel, a.LogLevelSet = g.logLevel, true
	}
	if g.verbose {
		a.LogLevel, a.LogLevelSet = "debug", true
	}
	return a
}

// appEnv 是一次命令执行所需的全部依赖；由 setup 构造，Close 负责释放。
type appEnv struct {
	eff  config.EffectiveConfig
	log  *zap.Logger
	http *http.Client
	db   *store.Lazy
}

func setup(cmd *cobra.Command, g *globalFlags, mutate func(*config.CLIArgs)) (*appEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("读取当前目录失败：%w", err)
	}
	args := g.cliArgs(cmd)
	if mutate != nil {
		mutate(&args)
	}
	eff, err := config.LoadEffective(cwd, args)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(eff.LogLevel)
	if err != nil {
		return nil, err
	}
	client, err := previews.NewHTTPClient(eff)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigFile, Err: err}
	}
	if err := os.MkdirAll(eff.DataDir, 0o755); err != nil {
		log.Warn("创建数据目录失败，本地缓存将不可用", zap.String("dir", eff.DataDir), zap.Error(err))
	}
	log.Debug("配置已生效", zap.String("config", eff.ConfigFile), zap.String("data_dir", eff.DataDir))
	return &appEnv{
		eff:  eff,
		log:  log,
		http: client,
		db:   store.NewLazy(store.DSNForPath(eff.DBPath())),
	}, nil
}

func (e *appEnv) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("关闭数据库失败", zap.Error(err))
	}
	e.http.CloseIdleConnections()
	_ = e.log.Sync()
}

func (e *appEnv) masterData() *masterdata.Cache {
	client := &masterdata.Client{
		HTTP:          e.http,
		CharactersURL: e.eff.CharactersURL,
		ScenesURL:     e.eff.ScenesURL,
		Log:           e.log,
	}
	return masterdata.NewCache(client, masterdata.CacheOptions{
		Store: masterdata.NewStore(e.db),
		TTL:   e.eff.CacheTTL,
		Log:   e.log,
	})
}

func (e *appEnv) library() *app.Library {
	return &app.Library{Data: e.masterData(), ProfileBaseURL: e.eff.ProfileBaseURL}
}

// newLogger 构造写 stderr 的 console 日志（stdout 留给 JSON 输出）。
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("log_level 无效：%w", err)}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// exitCode：配置错误为 2，其余失败为 1。
func exitCode(err error) int {
	fmt.Fprintf(os.Stderr, "错误：%v\n", err)
	if config.Code(err) != "" {
		return 2
	}
	return 1
}

// emitJSON 把 v 以单个 JSON 文档写到 w。
func emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// pickProgressWriter：进度只在交互终端输出，优先 stderr。
func pickProgressWriter() (io.Writer, bool) {
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
