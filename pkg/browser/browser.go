package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Manager drives a Chrome instance over the remote debugging protocol. It owns
// the browser connection and the raw debug sessions keyed by target id; the
// logical session lifecycle lives in internal/session.
type Manager struct {
	mu         sync.Mutex
	browser    *rod.Browser
	conns      map[string]*cdpConn              // targetID → attached session
	bySession  map[proto.TargetSessionID]string // sessionID → targetID
	detachFns  []func(targetID string)
	controlURL string
	bin        string
	headless   bool
	stealth    bool
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeadless sets headless mode for launched browsers (default false).
func WithHeadless(h bool) Option {
	return func(m *Manager) { m.headless = h }
}

// WithControlURL connects to an already running browser instead of launching
// one. Accepts ws:// debugger URLs or http://host:port.
func WithControlURL(u string) Option {
	return func(m *Manager) { m.controlURL = u }
}

// WithBin sets the browser binary used when launching.
func WithBin(path string) Option {
	return func(m *Manager) { m.bin = path }
}

// WithStealth creates new tabs with the stealth evasions preloaded.
func WithStealth(s bool) Option {
	return func(m *Manager) { m.stealth = s }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager with options.
func New(opts ...Option) *Manager {
	m := &Manager{
		conns:     make(map[string]*cdpConn),
		bySession: make(map[proto.TargetSessionID]string),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start connects to the configured browser, launching Chrome when no control
// URL was given.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return fmt.Errorf("browser already connected")
	}

	controlURL := m.controlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.headless).
			Set("disable-gpu").
			Set("no-first-run").
			Set("no-default-browser-check")
		if m.bin != "" {
			l = l.Bin(m.bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch Chrome: %w", err)
		}
		controlURL = u
		m.logger.Info("Chrome launched", "cdp", controlURL, "headless", m.headless)
	} else if !strings.HasPrefix(controlURL, "ws") {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return fmt.Errorf("resolve control URL %s: %w", controlURL, err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to Chrome: %w", err)
	}
	m.browser = b.Context(context.Background())

	go m.browser.EachEvent(func(e *proto.TargetDetachedFromTarget) {
		m.handleDetached(e.SessionID)
	})()

	m.logger.Info("browser connected", "cdp", controlURL)
	return nil
}

// Stop drops every session and closes the connection. A launched browser is
// closed with it; a browser reached through a control URL is left running.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil
	}

	var err error
	if m.controlURL == "" {
		err = m.browser.Close()
	} else {
		for _, c := range m.conns {
			_ = proto.TargetDetachFromTarget{SessionID: c.sessionID}.Call(m.browser)
		}
	}
	m.browser = nil
	m.conns = make(map[string]*cdpConn)
	m.bySession = make(map[proto.TargetSessionID]string)
	return err
}

// Close shuts the driver down.
func (m *Manager) Close() error {
	return m.Stop(context.Background())
}

// Status returns current browser status.
func (m *Manager) Status(ctx context.Context) *StatusInfo {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return &StatusInfo{Connected: false}
	}

	info := &StatusInfo{Connected: true}
	if v, err := (proto.BrowserGetVersion{}).Call(b.Context(ctx)); err == nil {
		info.ProtocolVersion = v.ProtocolVersion
		info.Product = v.Product
	}
	if tabs, err := m.ListTabs(ctx); err == nil {
		info.Tabs = len(tabs)
	}
	return info
}

// ProtocolVersion reports the remote debugging protocol version.
func (m *Manager) ProtocolVersion(ctx context.Context) (string, error) {
	b, err := m.connected()
	if err != nil {
		return "", err
	}
	v, err := proto.BrowserGetVersion{}.Call(b.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return v.ProtocolVersion, nil
}

// ListTabs returns all open page targets in the order the browser reports them.
func (m *Manager) ListTabs(ctx context.Context) ([]TabInfo, error) {
	b, err := m.connected()
	if err != nil {
		return nil, err
	}

	res, err := proto.TargetGetTargets{}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	tabs := make([]TabInfo, 0, len(res.TargetInfos))
	for _, t := range res.TargetInfos {
		if t.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		tabs = append(tabs, TabInfo{
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		})
	}
	return tabs, nil
}

// OpenTab opens a new tab navigated to url without waiting for it to load.
func (m *Manager) OpenTab(ctx context.Context, url string) (*TabInfo, error) {
	b, err := m.connected()
	if err != nil {
		return nil, err
	}

	if m.stealth {
		page, err := stealth.Page(b.Context(ctx))
		if err != nil {
			return nil, fmt.Errorf("open stealth tab: %w", err)
		}
		if _, err := (proto.PageNavigate{URL: url}).Call(page); err != nil {
			return nil, fmt.Errorf("navigate new tab: %w", err)
		}
		return &TabInfo{TargetID: string(page.TargetID), URL: url}, nil
	}

	res, err := proto.TargetCreateTarget{URL: url}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &TabInfo{TargetID: string(res.TargetID), URL: url}, nil
}

// ReadyState reports document.readyState for a tab. It probes through the
// attached debug session when there is one, otherwise through a page handle
// managed by rod.
func (m *Manager) ReadyState(ctx context.Context, targetID string) (string, error) {
	m.mu.Lock()
	c := m.conns[targetID]
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return "", ErrNotConnected
	}

	if c != nil {
		v, err := c.Evaluate(ctx, "document.readyState")
		if err != nil {
			return "", err
		}
		s, _ := v.(string)
		return s, nil
	}

	page, err := b.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTabNotFound, targetID, err)
	}
	res, err := page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", fmt.Errorf("read readyState: %w", err)
	}
	return res.Value.Str(), nil
}

// Attach performs Target.attachToTarget for a tab and enables the domains the
// engine relies on. Callers are responsible for not attaching twice.
func (m *Manager) Attach(ctx context.Context, targetID string) (Conn, error) {
	b, err := m.connected()
	if err != nil {
		return nil, err
	}

	res, err := proto.TargetAttachToTarget{
		TargetID: proto.TargetTargetID(targetID),
		Flatten:  true,
	}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	c := newConn(b, targetID, res.SessionID, m.logger)
	if err := c.enable(ctx); err != nil {
		_ = proto.TargetDetachFromTarget{SessionID: res.SessionID}.Call(b)
		return nil, err
	}

	m.mu.Lock()
	m.conns[targetID] = c
	m.bySession[res.SessionID] = targetID
	m.mu.Unlock()

	m.logger.Debug("debug session attached", "tab", targetID, "session", res.SessionID)
	return c, nil
}

// Detach ends the debug session of a tab. Detaching a tab without a session
// is a no-op.
func (m *Manager) Detach(ctx context.Context, targetID string) error {
	m.mu.Lock()
	c, ok := m.conns[targetID]
	b := m.browser
	if ok {
		delete(m.conns, targetID)
		delete(m.bySession, c.sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if b == nil {
		return ErrNotConnected
	}

	if err := (proto.TargetDetachFromTarget{SessionID: c.sessionID}).Call(b.Context(ctx)); err != nil {
		return fmt.Errorf("detach from target %s: %w", targetID, err)
	}
	m.logger.Debug("debug session detached", "tab", targetID)
	return nil
}

// OnDetached registers a callback for sessions that ended on the browser side.
func (m *Manager) OnDetached(fn func(targetID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachFns = append(m.detachFns, fn)
}

// Outline takes an accessibility outline of a tab through a short-lived
// session when the tab is not attached.
func (m *Manager) Outline(ctx context.Context, targetID string, opts OutlineOptions) (*Outline, error) {
	m.mu.Lock()
	c := m.conns[targetID]
	m.mu.Unlock()

	if c != nil {
		return c.Outline(ctx, opts)
	}

	conn, err := m.Attach(ctx, targetID)
	if err != nil {
		return nil, err
	}
	defer m.Detach(context.Background(), targetID)
	return conn.Outline(ctx, opts)
}

// handleDetached is called from the browser event loop. Sessions ended through
// Detach are already gone from bySession and are ignored here.
func (m *Manager) handleDetached(sessionID proto.TargetSessionID) {
	m.mu.Lock()
	targetID, ok := m.bySession[sessionID]
	if ok {
		delete(m.bySession, sessionID)
		delete(m.conns, targetID)
	}
	fns := make([]func(string), len(m.detachFns))
	copy(fns, m.detachFns)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.logger.Warn("debug session detached by browser", "tab", targetID)
	for _, fn := range fns {
		go fn(targetID)
	}
}

func (m *Manager) connected() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, ErrNotConnected
	}
	return m.browser, nil
}
