package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// State is the lifecycle state of a tab's debug session.
type State int

const (
	Detached State = iota
	Attaching
	Attached
	Detaching
	Reattaching
)

func (s State) String() string {
	switch s {
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	case Reattaching:
		return "reattaching"
	}
	return "detached"
}

// Session is a point-in-time view of one table entry.
type Session struct {
	TabID           string    `json:"tabId"`
	State           string    `json:"state"`
	ProtocolVersion string    `json:"protocolVersion,omitempty"`
	AttachedAt      time.Time `json:"attachedAt"`
	Reattaches      int       `json:"reattaches"`
}

// entry is one row of the session table. mu serializes every lifecycle
// operation on the tab; removed is set once the row left the table so late
// lockers retry with a fresh row.
type entry struct {
	mu         sync.Mutex
	tabID      string
	state      State
	conn       browser.Conn
	version    string
	attachedAt time.Time
	reattaches int
	limiter    *rate.Limiter
	removed    bool
}

// Manager owns the session table: at most one debug session per tab.
type Manager struct {
	driver browser.Driver

	mu    sync.Mutex
	table map[string]*entry

	attachTimeout    time.Duration
	reattachAttempts int
	reattachDelay    time.Duration
	reattachBurst    int
	onReattach       func(tabID string, err error)
	logger           *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAttachTimeout bounds each attach handshake.
func WithAttachTimeout(d time.Duration) Option {
	return func(m *Manager) { m.attachTimeout = d }
}

// WithReattachPolicy sets how many immediate reattach attempts follow an
// unsolicited detach, the pause before each, and how many reattaches a tab
// may consume per minute.
func WithReattachPolicy(attempts int, delay time.Duration, perMinute int) Option {
	return func(m *Manager) {
		m.reattachAttempts = attempts
		m.reattachDelay = delay
		m.reattachBurst = perMinute
	}
}

// WithReattachHook is called after every reattach outcome. err is nil when
// the session was restored.
func WithReattachHook(fn func(tabID string, err error)) Option {
	return func(m *Manager) { m.onReattach = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager and subscribes to the driver's detach
// notifications.
func NewManager(driver browser.Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:           driver,
		table:            make(map[string]*entry),
		attachTimeout:    10 * time.Second,
		reattachAttempts: 1,
		reattachBurst:    3,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	driver.OnDetached(m.handleDetached)
	return m
}

// lock returns the locked entry for tabID, creating it if needed.
func (m *Manager) lock(tabID string) *entry {
	for {
		m.mu.Lock()
		e := m.table[tabID]
		if e == nil {
			e = &entry{
				tabID:   tabID,
				limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(m.reattachBurst, 1))), max(m.reattachBurst, 1)),
			}
			m.table[tabID] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// lockExisting is lock without creation; it returns nil if the tab has no row.
func (m *Manager) lockExisting(tabID string) *entry {
	m.mu.Lock()
	e := m.table[tabID]
	m.mu.Unlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil
	}
	return e
}

// remove drops a locked entry from the table.
func (m *Manager) remove(e *entry) {
	m.mu.Lock()
	if m.table[e.tabID] == e {
		delete(m.table, e.tabID)
	}
	m.mu.Unlock()
	e.removed = true
	e.state = Detached
	e.conn = nil
}

// Attach returns the tab's session, performing the attach handshake only if
// the tab is not attached yet.
func (m *Manager) Attach(ctx context.Context, tabID string) (browser.Conn, error) {
	e := m.lock(tabID)
	defer e.mu.Unlock()

	if e.state == Attached && e.conn != nil {
		return e.conn, nil
	}

	e.state = Attaching
	conn, err := m.handshake(ctx, e)
	if err != nil {
		m.remove(e)
		return nil, &DebugAttachError{TabID: tabID, Err: err}
	}
	m.logger.Info("debug session attached", "tab", tabID, "protocol", e.version)
	return conn, nil
}

func (m *Manager) handshake(ctx context.Context, e *entry) (browser.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.attachTimeout)
	defer cancel()

	conn, err := m.driver.Attach(ctx, e.tabID)
	if err != nil {
		return nil, err
	}
	version, err := m.driver.ProtocolVersion(ctx)
	if err != nil {
		m.logger.Debug("protocol version unavailable", "tab", e.tabID, "error", err)
	}
	e.conn = conn
	e.version = version
	e.state = Attached
	e.attachedAt = time.Now()
	return conn, nil
}

// Detach tears down the tab's session. Tabs without a session are a no-op.
// On failure the session stays attached.
func (m *Manager) Detach(ctx context.Context, tabID string) error {
	e := m.lockExisting(tabID)
	if e == nil {
		m.logger.Debug("detach: no session", "tab", tabID)
		return nil
	}
	defer e.mu.Unlock()

	prev := e.state
	e.state = Detaching
	if err := m.driver.Detach(ctx, tabID); err != nil {
		e.state = prev
		return &DebugDetachError{TabID: tabID, Err: err}
	}
	m.remove(e)
	m.logger.Info("debug session detached", "tab", tabID)
	return nil
}

// Current returns the live session of a tab. While a reattach is in progress
// it waits for the outcome.
func (m *Manager) Current(tabID string) (browser.Conn, error) {
	e := m.lockExisting(tabID)
	if e == nil {
		return nil, ErrNotAttached
	}
	defer e.mu.Unlock()
	if e.state != Attached || e.conn == nil {
		return nil, ErrNotAttached
	}
	return e.conn, nil
}

// Get returns a view of a tab's session.
func (m *Manager) Get(tabID string) (Session, bool) {
	e := m.lockExisting(tabID)
	if e == nil {
		return Session{}, false
	}
	defer e.mu.Unlock()
	return e.view(), true
}

// List returns every session in the table ordered by tab id.
func (m *Manager) List() []Session {
	m.mu.Lock()
	ids := make([]string, 0, len(m.table))
	for id := range m.table {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.Get(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// DetachAll tears down every session, returning the first error.
func (m *Manager) DetachAll(ctx context.Context) error {
	var first error
	for _, s := range m.List() {
		if err := m.Detach(ctx, s.TabID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (e *entry) view() Session {
	return Session{
		TabID:           e.tabID,
		State:           e.state.String(),
		ProtocolVersion: e.version,
		AttachedAt:      e.attachedAt,
		Reattaches:      e.reattaches,
	}
}

// handleDetached runs when the browser ended a session we did not ask to end.
// The tab is reattached under the reattach policy; if the tab is gone or
// every attempt fails the row is removed.
func (m *Manager) handleDetached(tabID string) {
	e := m.lockExisting(tabID)
	if e == nil {
		return
	}
	defer e.mu.Unlock()

	if e.state != Attached {
		return
	}
	e.state = Reattaching
	e.conn = nil
	m.logger.Warn("debug session lost, reattaching", "tab", tabID)

	ctx := context.Background()
	err := m.reattach(ctx, e)
	if err != nil {
		m.remove(e)
		m.logger.Warn("reattach failed, session removed", "tab", tabID, "error", err)
	} else {
		e.reattaches++
		m.logger.Info("debug session reattached", "tab", tabID, "reattaches", e.reattaches)
	}
	if m.onReattach != nil {
		m.onReattach(tabID, err)
	}
}

func (m *Manager) reattach(ctx context.Context, e *entry) error {
	if !m.tabExists(ctx, e.tabID) {
		return browser.ErrTabNotFound
	}

	err := errReattachDisabled
	for attempt := 0; attempt < m.reattachAttempts; attempt++ {
		if !e.limiter.Allow() {
			return errReattachBudget
		}
		if m.reattachDelay > 0 {
			time.Sleep(m.reattachDelay)
		}
		if _, err = m.handshake(ctx, e); err == nil {
			return nil
		}
		m.logger.Debug("reattach attempt failed", "tab", e.tabID, "attempt", attempt+1, "error", err)
	}
	return err
}

func (m *Manager) tabExists(ctx context.Context, tabID string) bool {
	tabs, err := m.driver.ListTabs(ctx)
	if err != nil {
		// Let the handshake decide.
		return true
	}
	for _, t := range tabs {
		if t.TargetID == tabID {
			return true
		}
	}
	return false
}
