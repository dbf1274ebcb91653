package script

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
)

// ErrScriptNotFound is returned when no document exists for an id.
var ErrScriptNotFound = errors.New("script not found")

// Info describes a script document on disk.
type Info struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Path    string    `json:"path"`
	Steps   int       `json:"steps"`
	ModTime time.Time `json:"modTime"`
}

type cached struct {
	script  *Script
	path    string
	modTime time.Time
	size    int64
}

// Store loads scripts from a directory. Parsed documents are cached and
// re-read when the file's mtime or size changes.
type Store struct {
	dir    string
	cache  *lru.Cache[string, cached]
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets a custom logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store over dir holding at most size parsed scripts.
func NewStore(dir string, size int, opts ...StoreOption) (*Store, error) {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, cached](size)
	if err != nil {
		return nil, fmt.Errorf("script cache: %w", err)
	}
	s := &Store{dir: dir, cache: cache, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the scripts directory.
func (s *Store) Dir() string { return s.dir }

// Load returns the script with the given id.
func (s *Store) Load(id string) (*Script, error) {
	id = config.NormalizeScriptID(id)
	if id == "" {
		return nil, ErrScriptNotFound
	}

	path, fi, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if c, ok := s.cache.Get(id); ok && c.path == path && c.modTime.Equal(fi.ModTime()) && c.size == fi.Size() {
		return c.script, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", id, err)
	}
	sc, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	sc.ID = id
	s.cache.Add(id, cached{script: sc, path: path, modTime: fi.ModTime(), size: fi.Size()})
	s.logger.Debug("script loaded", "id", id, "path", path, "steps", len(sc.Steps))
	return sc, nil
}

func (s *Store) locate(id string) (string, os.FileInfo, error) {
	for _, ext := range Extensions {
		path := filepath.Join(s.dir, id+ext)
		fi, err := os.Stat(path)
		if err == nil && !fi.IsDir() {
			return path, fi, nil
		}
	}
	s.cache.Remove(id)
	return "", nil, fmt.Errorf("%w: %s", ErrScriptNotFound, id)
}

// List returns every readable script in the directory, sorted by id.
// Documents that fail to parse are logged and skipped.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	seen := make(map[string]bool)
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !known(e.Name()) {
			continue
		}
		id := IDFromName(e.Name())
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		sc, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable script", "file", e.Name(), "error", err)
			continue
		}
		info := Info{ID: id, Title: sc.Title, Steps: len(sc.Steps)}
		if c, ok := s.cache.Peek(id); ok {
			info.Path, info.ModTime = c.path, c.modTime
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func known(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
