package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// Driver is a fake browser holding an ordered tab list.
type Driver struct {
	mu        sync.Mutex
	tabs      []browser.TabInfo
	pages     map[string]*Page
	conns     map[string]*Conn
	ready     map[string][]string // tab → readyState sequence, last value sticks
	attaches  map[string]int
	detaches  map[string]int
	detachFns []func(string)
	next      int

	Opened    []string // URLs passed to OpenTab
	AttachErr error
	DetachErr error
	// NewPage builds the document of tabs created by OpenTab.
	NewPage func(url string) *Page
}

// NewDriver creates a driver with the given open tabs.
func NewDriver(tabs ...browser.TabInfo) *Driver {
	return &Driver{
		tabs:     tabs,
		pages:    make(map[string]*Page),
		conns:    make(map[string]*Conn),
		ready:    make(map[string][]string),
		attaches: make(map[string]int),
		detaches: make(map[string]int),
	}
}

// SetPage sets the document of a tab.
func (d *Driver) SetPage(tabID string, p *Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[tabID] = p
}

// SetReadyStates scripts the readyState values reported for a tab.
func (d *Driver) SetReadyStates(tabID string, states ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready[tabID] = states
}

// CloseTab removes a tab from the list.
func (d *Driver) CloseTab(tabID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range d.tabs {
		if t.TargetID == tabID {
			d.tabs = append(d.tabs[:i], d.tabs[i+1:]...)
			break
		}
	}
	delete(d.conns, tabID)
}

// KickDetach simulates the browser ending a session on its own.
func (d *Driver) KickDetach(tabID string) {
	d.mu.Lock()
	delete(d.conns, tabID)
	fns := append([]func(string){}, d.detachFns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(tabID)
	}
}

// Attaches returns the number of attach handshakes for a tab.
func (d *Driver) Attaches(tabID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attaches[tabID]
}

// Detaches returns the number of detach calls for a tab.
func (d *Driver) Detaches(tabID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detaches[tabID]
}

// ConnFor returns the live session of a tab, if any.
func (d *Driver) ConnFor(tabID string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[tabID]
}

func (d *Driver) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]browser.TabInfo, len(d.tabs))
	copy(out, d.tabs)
	return out, nil
}

func (d *Driver) OpenTab(ctx context.Context, url string) (*browser.TabInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	t := browser.TabInfo{TargetID: fmt.Sprintf("new-tab-%d", d.next), URL: url}
	d.tabs = append(d.tabs, t)
	d.Opened = append(d.Opened, url)
	if d.NewPage != nil {
		d.pages[t.TargetID] = d.NewPage(url)
	}
	return &t, nil
}

func (d *Driver) ReadyState(ctx context.Context, targetID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasTab(targetID) {
		return "", browser.ErrTabNotFound
	}
	states := d.ready[targetID]
	if len(states) == 0 {
		return "complete", nil
	}
	s := states[0]
	if len(states) > 1 {
		d.ready[targetID] = states[1:]
	}
	return s, nil
}

func (d *Driver) Attach(ctx context.Context, targetID string) (browser.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attaches[targetID]++
	if d.AttachErr != nil {
		return nil, d.AttachErr
	}
	if !d.hasTab(targetID) {
		return nil, fmt.Errorf("%w: %s", browser.ErrTabNotFound, targetID)
	}
	p := d.pages[targetID]
	if p == nil {
		p = &Page{}
		d.pages[targetID] = p
	}
	c := NewConn(targetID, p)
	d.conns[targetID] = c
	return c, nil
}

func (d *Driver) Detach(ctx context.Context, targetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detaches[targetID]++
	if d.DetachErr != nil {
		return d.DetachErr
	}
	delete(d.conns, targetID)
	return nil
}

func (d *Driver) OnDetached(fn func(targetID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachFns = append(d.detachFns, fn)
}

func (d *Driver) ProtocolVersion(ctx context.Context) (string, error) {
	return "1.3", nil
}

func (d *Driver) hasTab(id string) bool {
	for _, t := range d.tabs {
		if t.TargetID == id {
			return true
		}
	}
	return false
}
