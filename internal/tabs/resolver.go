package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

const (
	defaultPoll    = 100 * time.Millisecond
	defaultTimeout = 30 * time.Second
)

// Resolver maps a tab identifier or URL pattern to a loaded tab.
type Resolver struct {
	driver  browser.Driver
	poll    time.Duration
	timeout time.Duration
	creates singleflight.Group
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPollInterval sets how often a new tab's readyState is checked.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) { r.poll = d }
}

// WithLoadTimeout bounds the wait for a new tab to finish loading.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver over driver.
func NewResolver(driver browser.Driver, opts ...Option) *Resolver {
	r := &Resolver{
		driver:  driver,
		poll:    defaultPoll,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// IsConcreteID reports whether identifier already names a tab: an all-digit
// handle or a 32 character hex target id.
func IsConcreteID(identifier string) bool {
	if identifier == "" {
		return false
	}
	digits := true
	hex := len(identifier) == 32
	for _, c := range identifier {
		isDigit := c >= '0' && c <= '9'
		if !isDigit {
			digits = false
		}
		if !isDigit && !(c >= 'a' && c <= 'f') && !(c >= 'A' && c <= 'F') {
			hex = false
		}
	}
	return digits || hex
}

// Resolve returns the tab id for identifier. Concrete ids are returned
// unchanged without any lookup. A URL pattern selects the first open tab whose
// URL equals or contains it; when none does a new tab is opened on the pattern
// and Resolve waits for it to load.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty tab identifier")
	}
	if IsConcreteID(identifier) {
		return identifier, nil
	}

	if id, ok, err := r.find(ctx, identifier); err != nil {
		return "", err
	} else if ok {
		r.logger.Debug("tab matched", "pattern", identifier, "tab", id)
		return id, nil
	}

	// Concurrent resolutions of the same pattern share one new tab.
	v, err, _ := r.creates.Do(identifier, func() (any, error) {
		if id, ok, err := r.find(ctx, identifier); err != nil {
			return "", err
		} else if ok {
			return id, nil
		}
		return r.create(ctx, identifier)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Match returns the first tab whose URL equals pattern or contains it.
func Match(tabs []browser.TabInfo, pattern string) (browser.TabInfo, bool) {
	for _, t := range tabs {
		if t.URL == pattern || strings.Contains(t.URL, pattern) {
			return t, true
		}
	}
	return browser.TabInfo{}, false
}

func (r *Resolver) find(ctx context.Context, pattern string) (string, bool, error) {
	tabs, err := r.driver.ListTabs(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list tabs: %w", err)
	}
	t, ok := Match(tabs, pattern)
	return t.TargetID, ok, nil
}

func (r *Resolver) create(ctx context.Context, url string) (string, error) {
	tab, err := r.driver.OpenTab(ctx, url)
	if err != nil {
		return "", fmt.Errorf("create tab for %s: %w", url, err)
	}
	r.logger.Info("tab created", "tab", tab.TargetID, "url", url)

	if err := r.WaitLoaded(ctx, tab.TargetID, url); err != nil {
		return "", err
	}
	return tab.TargetID, nil
}

// WaitLoaded polls a tab's readyState until it is "complete" or the load
// timeout elapses.
func (r *Resolver) WaitLoaded(ctx context.Context, tabID, url string) error {
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	var last string
	for {
		state, err := r.driver.ReadyState(ctx, tabID)
		if err != nil {
			// A fresh target may not accept evaluation yet.
			r.logger.Debug("readyState probe failed", "tab", tabID, "error", err)
		} else {
			last = state
			if state == "complete" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TabLoadTimeoutError{TabID: tabID, URL: url, Timeout: r.timeout, LastState: last}
		case <-ticker.C:
		}
	}
}
