// Package browsertest provides an in-memory Driver and Conn for tests. Pages
// are trees of Elements; structural selectors are looked up in explicit maps
// rather than parsed.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// Element is a node of a fake document.
type Element struct {
	browser.NodeInfo
	Name     string // test-facing identifier
	Own      string // text of the element's own text node
	Label    string // accessible label
	Box      browser.Box
	Value    string
	Parent   *Element
	Children []*Element

	// AppearAfter hides the element from queries for that many attempts.
	AppearAfter int
	seen        int
}

// El builds an element and links children to it.
func El(tag string, children ...*Element) *Element {
	e := &Element{NodeInfo: browser.NodeInfo{Tag: tag}, Name: tag}
	for _, c := range children {
		c.Parent = e
		e.Children = append(e.Children, c)
	}
	return e
}

// With applies fn to e and returns it, for inline construction.
func (e *Element) With(fn func(*Element)) *Element {
	fn(e)
	return e
}

// Append links c under e.
func (e *Element) Append(c *Element) *Element {
	c.Parent = e
	e.Children = append(e.Children, c)
	return e
}

func (e *Element) visible() bool {
	if e.seen < e.AppearAfter {
		e.seen++
		return false
	}
	return true
}

func (e *Element) text() string {
	var b strings.Builder
	b.WriteString(e.Own)
	for _, c := range e.Children {
		b.WriteString(c.text())
	}
	return strings.TrimSpace(b.String())
}

func (e *Element) walk(fn func(*Element) bool) bool {
	if fn(e) {
		return true
	}
	for _, c := range e.Children {
		if c.walk(fn) {
			return true
		}
	}
	return false
}

// Page is the document behind a fake session.
type Page struct {
	URL    string
	Title  string
	Root   *Element
	CSS    map[string]*Element // structural selector → element
	Pierce map[string]*Element
	XPath  map[string]*Element
	Eval   map[string]any // expression → value
}

// Conn is a fake debug session.
type Conn struct {
	mu       sync.Mutex
	tabID    string
	page     *Page
	Mouse    []browser.MouseEvent
	Keys     []string // "keyDown:Enter"
	Navs     []string
	Viewport *browser.Viewport
	Boxes    int    // Box calls
	Shot     []byte // Screenshot result; nil fails the capture

	// NavigateFn replaces the page on navigation when set.
	NavigateFn func(url string) *Page
}

// NewConn creates a session over page.
func NewConn(tabID string, page *Page) *Conn {
	if page == nil {
		page = &Page{}
	}
	return &Conn{tabID: tabID, page: page}
}

// Page returns the current document.
func (c *Conn) Page() *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// SetPage swaps the current document.
func (c *Conn) SetPage(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = p
}

func (c *Conn) TargetID() string { return c.tabID }

func (c *Conn) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Navs = append(c.Navs, url)
	if c.NavigateFn != nil {
		c.page = c.NavigateFn(url)
	}
	c.page.URL = url
	return nil
}

func (c *Conn) SetViewport(ctx context.Context, vp browser.Viewport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Viewport = &vp
	return nil
}

func (c *Conn) Info(ctx context.Context) (browser.PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return browser.PageInfo{URL: c.page.URL, Title: c.page.Title}, nil
}

func (c *Conn) Evaluate(ctx context.Context, expression string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.page.Eval[expression]
	if !ok {
		return nil, fmt.Errorf("evaluate: ReferenceError: %s", expression)
	}
	return v, nil
}

func (c *Conn) lookup(pick func(*Page) map[string]*Element, key string) (*browser.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := pick(c.page)[key]
	if !ok || !e.visible() {
		return nil, browser.ErrNoMatch
	}
	return node(e), nil
}

func (c *Conn) QueryCSS(ctx context.Context, css string) (*browser.Node, error) {
	return c.lookup(func(p *Page) map[string]*Element { return p.CSS }, css)
}

func (c *Conn) QueryPierce(ctx context.Context, css string) (*browser.Node, error) {
	return c.lookup(func(p *Page) map[string]*Element { return p.Pierce }, css)
}

func (c *Conn) QueryXPath(ctx context.Context, xpath string) (*browser.Node, error) {
	return c.lookup(func(p *Page) map[string]*Element { return p.XPath }, xpath)
}

func (c *Conn) QueryText(ctx context.Context, text string) (*browser.Node, error) {
	return c.find(func(e *Element) bool { return e.Own != "" && strings.Contains(e.Own, text) })
}

func (c *Conn) QueryLabel(ctx context.Context, label string) (*browser.Node, error) {
	return c.find(func(e *Element) bool { return e.Label == label })
}

func (c *Conn) find(match func(*Element) bool) (*browser.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page.Root == nil {
		return nil, browser.ErrNoMatch
	}
	var hit *Element
	c.page.Root.walk(func(e *Element) bool {
		if match(e) && e.visible() {
			hit = e
			return true
		}
		return false
	})
	if hit == nil {
		return nil, browser.ErrNoMatch
	}
	return node(hit), nil
}

func (c *Conn) Ancestors(ctx context.Context, n *browser.Node, limit int) ([]*browser.Node, error) {
	e, err := element(n)
	if err != nil {
		return nil, err
	}
	var out []*browser.Node
	for ; e != nil && len(out) < limit; e = e.Parent {
		out = append(out, node(e))
	}
	return out, nil
}

func (c *Conn) Box(ctx context.Context, n *browser.Node) (browser.Box, error) {
	e, err := element(n)
	if err != nil {
		return browser.Box{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Boxes++
	if e.Box.Empty() {
		return browser.Box{}, fmt.Errorf("element has no layout box")
	}
	return e.Box, nil
}

func (c *Conn) DispatchMouse(ctx context.Context, ev browser.MouseEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mouse = append(c.Mouse, ev)
	return nil
}

func (c *Conn) DispatchKey(ctx context.Context, typ browser.KeyEventType, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Keys = append(c.Keys, string(typ)+":"+key)
	return nil
}

func (c *Conn) SetValue(ctx context.Context, n *browser.Node, value string) error {
	e, err := element(n)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Value = value
	return nil
}

func (c *Conn) TextOf(ctx context.Context, n *browser.Node) (string, error) {
	e, err := element(n)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.text(), nil
}

func (c *Conn) Outline(ctx context.Context, opts browser.OutlineOptions) (*browser.Outline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &browser.Outline{
		Text:     "- document",
		TargetID: c.tabID,
		Page:     browser.PageInfo{URL: c.page.URL, Title: c.page.Title},
	}, nil
}

func (c *Conn) Screenshot(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Shot == nil {
		return nil, fmt.Errorf("no screenshot scripted")
	}
	return c.Shot, nil
}

// Clicks returns the points of mousePressed events.
func (c *Conn) Clicks() [][2]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][2]float64
	for _, ev := range c.Mouse {
		if ev.Type == browser.MousePressed {
			out = append(out, [2]float64{ev.X, ev.Y})
		}
	}
	return out
}

func node(e *Element) *browser.Node {
	return &browser.Node{NodeInfo: e.NodeInfo, Handle: e}
}

func element(n *browser.Node) (*Element, error) {
	if n == nil {
		return nil, fmt.Errorf("nil node")
	}
	e, ok := n.Handle.(*Element)
	if !ok {
		return nil, fmt.Errorf("foreign node handle %T", n.Handle)
	}
	return e, nil
}

// Handle returns the fake element behind a node.
func Handle(n *browser.Node) *Element {
	e, _ := element(n)
	return e
}
