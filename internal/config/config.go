package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是默认配置文件名（位于 cwd，可选）。
const FileName = "mtgview.yaml"

const (
	DefaultCharactersURL  = "https://assets4.mist-train-girls.com/production-client-web-static/MasterData/MCharacterViewModel.json"
	DefaultScenesURL      = "https://assets4.mist-train-girls.com/production-client-web-static/MasterData/MSceneViewModel.json"
	DefaultStillsBaseURL  = "https://assets4.mist-train-girls.com/production-client-web-assets/Spines/Stills"
	DefaultProfileBaseURL = "https://assets4.mist-train-girls.com/production-client-web-assets/Textures/Characters/ScenarioPhrase"
	DefaultAtlasPrefix    = "characterExScenario"

	DefaultDataDir    = ".mtgview"
	DefaultProbeLimit = 200
	DefaultCacheTTL   = 24 * time.Hour
	DefaultLogLevel   = "info"
)

// CLIArgs 保留“是否显式指定”的信息，保证 CLI 能覆盖配置文件中的同名字段。
type CLIArgs struct {
	ConfigPath string

	DataDir    string
	DataDirSet bool

	MaxAtlas    int
	MaxAtlasSet bool

	ProxyURL    string
	ProxyURLSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 mtgview.yaml 的解析结构。
type FileConfig struct {
	DataDir        string       `yaml:"data_dir"`
	CharactersURL  string       `yaml:"characters_url"`
	ScenesURL      string       `yaml:"scenes_url"`
	AtlasBaseURL   string       `yaml:"atlas_base_url"`
	AtlasPrefix    string       `yaml:"atlas_prefix"`
	StillsBaseURL  string       `yaml:"stills_base_url"`
	ProfileBaseURL string       `yaml:"profile_base_url"`
	MaxAtlas       int          `yaml:"max_atlas"`
	ProbeLimit     int          `yaml:"probe_limit"`
	Proxy          *ProxyConfig `yaml:"proxy"`

	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	RetryMax          int     `yaml:"retry_max"`

	CacheTTL string `yaml:"cache_ttl"`
	LogLevel string `yaml:"log_level"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 为实际读取的配置文件；未读取时为空。
	ConfigFile string

	DataDir string

	CharactersURL  string
	ScenesURL      string
	AtlasBaseURL   string
	AtlasPrefix    string
	StillsBaseURL  string
	ProfileBaseURL string

	// MaxAtlas 为 0 表示通过探测确定图集数量（最多 ProbeLimit 个）。
	MaxAtlas   int
	ProbeLimit int

	ProxyURL          string
	RequestsPerSecond float64
	Burst             int
	RetryMax          int

	CacheTTL time.Duration
	LogLevel string
}

// DBPath 返回本地缓存数据库路径。
func (e EffectiveConfig) DBPath() string {
	return filepath.Join(e.DataDir, "mtgview.db")
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在，否则 config_not_found
// 2) 否则尝试 <cwd>/mtgview.yaml（可选）
//
// 覆盖优先级（固定）：CLI 显式指定 > 配置文件 > 内置默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	base := cwdAbs
	if exists {
		base = filepath.Dir(cfgPath)
	} else {
		cfgPath = ""
	}
	return merge(cwdAbs, base, cli, fc, cfgPath)
}

func merge(cwd, base string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// data_dir：CLI 的相对路径以 cwd 为基准，配置文件中的以配置文件目录为基准。
	var dataDir string
	switch {
	case cli.DataDirSet && strings.TrimSpace(cli.DataDir) != "":
		dataDir = absCleanFrom(cwd, cli.DataDir)
	case strings.TrimSpace(fc.DataDir) != "":
		dataDir = absCleanFrom(base, fc.DataDir)
	default:
		dataDir = absCleanFrom(cwd, DefaultDataDir)
	}

	maxAtlas := fc.MaxAtlas
	if cli.MaxAtlasSet {
		maxAtlas = cli.MaxAtlas
	}
	if maxAtlas < 0 {
		return invalid(fmt.Errorf("max_atlas 不能为负数：%d", maxAtlas))
	}

	probeLimit := fc.ProbeLimit
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if cli.ProxyURLSet {
		proxyURL = strings.TrimSpace(cli.ProxyURL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	eff := EffectiveConfig{
		ConfigFile:        cfgPath,
		DataDir:           dataDir,
		CharactersURL:     orDefault(fc.CharactersURL, DefaultCharactersURL),
		ScenesURL:         orDefault(fc.ScenesURL, DefaultScenesURL),
		AtlasBaseURL:      strings.TrimRight(strings.TrimSpace(fc.AtlasBaseURL), "/"),
		AtlasPrefix:       orDefault(fc.AtlasPrefix, DefaultAtlasPrefix),
		StillsBaseURL:     strings.TrimRight(orDefault(fc.StillsBaseURL, DefaultStillsBaseURL), "/"),
		ProfileBaseURL:    strings.TrimRight(orDefault(fc.ProfileBaseURL, DefaultProfileBaseURL), "/"),
		MaxAtlas:          maxAtlas,
		ProbeLimit:        probeLimit,
		ProxyURL:          proxyURL,
		RequestsPerSecond: fc.RequestsPerSecond,
		Burst:             fc.Burst,
		RetryMax:          fc.RetryMax,
		CacheTTL:          DefaultCacheTTL,
		LogLevel:          strings.ToLower(pick(cli.LogLevelSet, cli.LogLevel, fc.LogLevel, DefaultLogLevel)),
	}
	for field, v := range map[string]string{
		"characters_url":   eff.CharactersURL,
		"scenes_url":       eff.ScenesURL,
		"stills_base_url":  eff.StillsBaseURL,
		"profile_base_url": eff.ProfileBaseURL,
		"atlas_base_url":   eff.AtlasBaseURL,
	} {
		if v == "" {
			// 只有 atlas_base_url 允许为空（sync 使用时再校验）。
			continue
		}
		if err := validateHTTPURL(v); err != nil {
			return invalid(fmt.Errorf("%s %w", field, err))
		}
	}

	if eff.RequestsPerSecond < 0 {
		return invalid(fmt.Errorf("requests_per_second 不能为负数"))
	}
	if eff.RetryMax < 0 || eff.RetryMax > 5 {
		return invalid(fmt.Errorf("retry_max 只能在 [0, 5] 范围内，实际 %d", eff.RetryMax))
	}

	if s := strings.TrimSpace(fc.CacheTTL); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return invalid(fmt.Errorf("cache_ttl 无效：%q", s))
		}
		eff.CacheTTL = d
	}

	switch eff.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", eff.LogLevel))
	}
	return eff, nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("无效：%q", s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", s)
	}
	return nil
}

func pick(cliSet bool, cliValue, fileValue, def string) string {
	if cliSet {
		return cliValue
	}
	return orDefault(fileValue, def)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
