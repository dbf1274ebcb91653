package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "tabpilot.json5"

// Config is the application configuration.
type Config struct {
	Browser   BrowserConfig   `json:"browser"`
	Timeouts  TimeoutsConfig  `json:"timeouts"`
	Session   SessionConfig   `json:"session"`
	Scripts   ScriptsConfig   `json:"scripts"`
	Clickable ClickableSource `json:"clickable"`
	History   HistoryConfig   `json:"history"`
	Artifacts ArtifactsConfig `json:"artifacts"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Server    ServerConfig    `json:"server"`
	Schedules []ScheduleEntry `json:"schedules,omitempty"`
}

// BrowserConfig selects the browser to drive.
type BrowserConfig struct {
	ControlURL string `json:"controlURL,omitempty"` // ws:// or http://host:port of a running browser
	Headless   bool   `json:"headless"`
	Stealth    bool   `json:"stealth"`
	Bin        string `json:"bin,omitempty"`
}

// TimeoutsConfig holds waits in milliseconds.
type TimeoutsConfig struct {
	TabLoadMs      int `json:"tabLoadMs"`
	TabPollMs      int `json:"tabPollMs"`
	SelectorMs     int `json:"selectorMs"`
	SelectorPollMs int `json:"selectorPollMs"`
	AttachMs       int `json:"attachMs"`
}

func (t TimeoutsConfig) TabLoad() time.Duration      { return ms(t.TabLoadMs) }
func (t TimeoutsConfig) TabPoll() time.Duration      { return ms(t.TabPollMs) }
func (t TimeoutsConfig) Selector() time.Duration     { return ms(t.SelectorMs) }
func (t TimeoutsConfig) SelectorPoll() time.Duration { return ms(t.SelectorPollMs) }
func (t TimeoutsConfig) Attach() time.Duration       { return ms(t.AttachMs) }

// SessionConfig is the reattach policy after an unsolicited detach.
type SessionConfig struct {
	ReattachAttempts int `json:"reattachAttempts"`
	ReattachDelayMs  int `json:"reattachDelayMs"`
	ReattachBurst    int `json:"reattachBurst"` // reattaches allowed per tab per minute
}

func (s SessionConfig) ReattachDelay() time.Duration { return ms(s.ReattachDelayMs) }

// ScriptsConfig locates script documents.
type ScriptsConfig struct {
	Dir       string `json:"dir"`
	CacheSize int    `json:"cacheSize"`
}

// ClickableSource locates the clickable config document.
type ClickableSource struct {
	Path  string `json:"path,omitempty"`
	Watch bool   `json:"watch"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path string `json:"path"`
}

// ArtifactsConfig controls failure screenshots.
type ArtifactsConfig struct {
	Dir      string `json:"dir"`
	MaxWidth int    `json:"maxWidth"`
}

// TelemetryConfig configures the OTLP exporter used by builds with the otel tag.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// ServerConfig configures `tabpilot serve`.
type ServerConfig struct {
	Listen string `json:"listen"`          // WebSocket address, used with --ws
	Token  string `json:"token,omitempty"` // required in the connect request when set
	RPM    int    `json:"rpm"`             // executeScript requests per client per minute, 0 = unlimited
	Burst  int    `json:"burst"`
}

// ScheduleEntry runs a script periodically under `tabpilot serve`. Exactly one
// of Cron, EveryMs and At is set.
type ScheduleEntry struct {
	ID       string         `json:"id"`
	ScriptID string         `json:"scriptId"`
	Cron     string         `json:"cron,omitempty"`
	EveryMs  int64          `json:"everyMs,omitempty"`
	At       string         `json:"at,omitempty"` // RFC 3339
	Params   map[string]any `json:"parameters,omitempty"`
	Disabled bool           `json:"disabled,omitempty"`
	Retries  int            `json:"retries,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".tabpilot")
	return &Config{
		Timeouts: TimeoutsConfig{
			TabLoadMs:      30000,
			TabPollMs:      100,
			SelectorMs:     5000,
			SelectorPollMs: 100,
			AttachMs:       10000,
		},
		Session: SessionConfig{
			ReattachAttempts: 1,
			ReattachBurst:    3,
		},
		Scripts: ScriptsConfig{
			Dir:       filepath.Join(base, "scripts"),
			CacheSize: 64,
		},
		History:   HistoryConfig{Path: filepath.Join(base, "history.db")},
		Artifacts: ArtifactsConfig{Dir: filepath.Join(base, "artifacts"), MaxWidth: 1280},
		Telemetry: TelemetryConfig{ServiceName: "tabpilot"},
		Server:    ServerConfig{Listen: "127.0.0.1:9333", Burst: 5},
	}
}

// Load reads a JSON5 config file over the defaults and applies TABPILOT_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.fillZero()
	return cfg, nil
}

// Save writes cfg to path as indented JSON, which JSON5 readers accept.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	envStr("TABPILOT_CONTROL_URL", &c.Browser.ControlURL)
	envStr("TABPILOT_BROWSER_BIN", &c.Browser.Bin)
	envBool("TABPILOT_HEADLESS", &c.Browser.Headless)
	envBool("TABPILOT_STEALTH", &c.Browser.Stealth)
	envStr("TABPILOT_SCRIPTS_DIR", &c.Scripts.Dir)
	envStr("TABPILOT_CLICKABLE_PATH", &c.Clickable.Path)
	envStr("TABPILOT_HISTORY_PATH", &c.History.Path)
	envStr("TABPILOT_ARTIFACTS_DIR", &c.Artifacts.Dir)
	envInt("TABPILOT_SELECTOR_TIMEOUT_MS", &c.Timeouts.SelectorMs)
	envInt("TABPILOT_TAB_LOAD_TIMEOUT_MS", &c.Timeouts.TabLoadMs)
	envStr("TABPILOT_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TABPILOT_LISTEN", &c.Server.Listen)
	envStr("TABPILOT_TOKEN", &c.Server.Token)
	if c.Telemetry.Endpoint != "" && os.Getenv("TABPILOT_OTEL_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}
}

// fillZero restores defaults for fields a config file set to zero.
func (c *Config) fillZero() {
	d := Default()
	if c.Timeouts.TabLoadMs <= 0 {
		c.Timeouts.TabLoadMs = d.Timeouts.TabLoadMs
	}
	if c.Timeouts.TabPollMs <= 0 {
		c.Timeouts.TabPollMs = d.Timeouts.TabPollMs
	}
	if c.Timeouts.SelectorMs <= 0 {
		c.Timeouts.SelectorMs = d.Timeouts.SelectorMs
	}
	if c.Timeouts.SelectorPollMs <= 0 {
		c.Timeouts.SelectorPollMs = d.Timeouts.SelectorPollMs
	}
	if c.Timeouts.AttachMs <= 0 {
		c.Timeouts.AttachMs = d.Timeouts.AttachMs
	}
	if c.Session.ReattachAttempts < 0 {
		c.Session.ReattachAttempts = 0
	}
	if c.Session.ReattachBurst <= 0 {
		c.Session.ReattachBurst = d.Session.ReattachBurst
	}
	if c.Scripts.CacheSize <= 0 {
		c.Scripts.CacheSize = d.Scripts.CacheSize
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Artifacts.MaxWidth <= 0 {
		c.Artifacts.MaxWidth = d.Artifacts.MaxWidth
	}
	c.Scripts.Dir = ExpandHome(c.Scripts.Dir)
	c.History.Path = ExpandHome(c.History.Path)
	c.Artifacts.Dir = ExpandHome(c.Artifacts.Dir)
	c.Clickable.Path = ExpandHome(c.Clickable.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
