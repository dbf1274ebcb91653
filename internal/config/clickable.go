package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// ClickableConfig lists what the clickable-ancestor climb accepts. Every set
// is normalized with NormalizeList.
type ClickableConfig struct {
	Tags          []string `json:"tags" yaml:"tags"`
	Roles         []string `json:"roles" yaml:"roles"`
	DataKeywords  []string `json:"dataKeywords" yaml:"dataKeywords"`
	ClassKeywords []string `json:"classKeywords" yaml:"classKeywords"`
}

// DefaultClickable returns the built-in sets.
func DefaultClickable() *ClickableConfig {
	return &ClickableConfig{
		Tags:          []string{"a", "button"},
		Roles:         []string{"button", "link", "row", "listitem", "option", "menuitem"},
		DataKeywords:  []string{"click", "action", "cell", "row", "item", "chat"},
		ClassKeywords: []string{"click", "link", "button", "action"},
	}
}

// Accepted document keys per field. The first is canonical.
var clickableKeys = map[string][]string{
	"tags":          {"tags", "clickableTags"},
	"roles":         {"roles", "clickableRoles", "ariaRoles"},
	"dataKeywords":  {"dataKeywords", "dataAttributeKeywords"},
	"classKeywords": {"classKeywords", "classNameKeywords"},
}

// ParseClickable decodes a clickable config document. YAML is used for .yaml
// and .yml names, JSON5 otherwise. Each field may be a list or a
// comma-separated string; a missing or empty field keeps its default.
func ParseClickable(name string, data []byte) (*ClickableConfig, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse clickable yaml: %w", err)
		}
	default:
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse clickable json5: %w", err)
		}
	}

	cfg := DefaultClickable()
	fields := map[string]*[]string{
		"tags":          &cfg.Tags,
		"roles":         &cfg.Roles,
		"dataKeywords":  &cfg.DataKeywords,
		"classKeywords": &cfg.ClassKeywords,
	}
	for field, dst := range fields {
		for _, key := range clickableKeys[field] {
			v, ok := raw[key]
			if !ok {
				continue
			}
			list, err := stringList(v)
			if err != nil {
				return nil, fmt.Errorf("clickable %s: %w", key, err)
			}
			if list = NormalizeList(list); len(list) > 0 {
				*dst = list
			}
			break
		}
	}
	return cfg, nil
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return SplitList(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string entries, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	}
	return nil, fmt.Errorf("expected list or comma-separated string, got %T", v)
}

// ClickableProvider holds the current clickable snapshot. Readers always see a
// complete snapshot; Reload swaps it atomically.
type ClickableProvider struct {
	path    string
	current atomic.Pointer[ClickableConfig]
	watcher *Watcher
	logger  *slog.Logger
}

// NewClickableProvider loads the document at path. An empty path, a missing
// file or an unreadable document leaves the built-in defaults in place.
func NewClickableProvider(path string, logger *slog.Logger) *ClickableProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &ClickableProvider{path: path, logger: logger}
	p.current.Store(DefaultClickable())
	if path != "" {
		if err := p.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("clickable config unavailable, using defaults", "path", path, "error", err)
		}
	}
	return p
}

// StaticClickable returns a provider that always serves cfg.
func StaticClickable(cfg *ClickableConfig) *ClickableProvider {
	p := &ClickableProvider{logger: slog.Default()}
	p.current.Store(cfg)
	return p
}

// Snapshot returns the current config. Callers must not mutate it.
func (p *ClickableProvider) Snapshot() *ClickableConfig {
	return p.current.Load()
}

// Set replaces the snapshot.
func (p *ClickableProvider) Set(cfg *ClickableConfig) {
	p.current.Store(cfg)
}

// Reload re-reads the document. On error the previous snapshot stays.
func (p *ClickableProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	cfg, err := ParseClickable(p.path, data)
	if err != nil {
		return err
	}
	p.current.Store(cfg)
	p.logger.Info("clickable config loaded", "path", p.path,
		"tags", len(cfg.Tags), "roles", len(cfg.Roles),
		"dataKeywords", len(cfg.DataKeywords), "classKeywords", len(cfg.ClassKeywords))
	return nil
}

// Watch reloads the snapshot whenever the document changes on disk.
func (p *ClickableProvider) Watch() error {
	if p.path == "" {
		return nil
	}
	w, err := NewWatcher(p.path)
	if err != nil {
		return err
	}
	w.OnChange(func(string) {
		if err := p.Reload(); err != nil {
			p.logger.Error("clickable config reload failed", "error", err)
		}
	})
	if err := w.Start(); err != nil {
		return err
	}
	p.watcher = w
	return nil
}

// Close stops watching.
func (p *ClickableProvider) Close() {
	if p.watcher != nil {
		p.watcher.Stop()
		p.watcher = nil
	}
}
