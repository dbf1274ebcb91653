package browser

import (
	"context"
	"errors"
)

var (
	// ErrNoMatch is returned by Conn queries that found nothing. It is not a
	// failure: callers poll or fall through to the next strategy.
	ErrNoMatch = errors.New("no matching element")

	// ErrNotConnected is returned when the driver has no browser connection.
	ErrNotConnected = errors.New("browser not connected")

	// ErrTabNotFound is returned when a target id does not name an open tab.
	ErrTabNotFound = errors.New("tab not found")
)

// Driver is the browser-level surface of the remote debugging interface.
type Driver interface {
	// ListTabs enumerates open page targets in browser order.
	ListTabs(ctx context.Context) ([]TabInfo, error)
	// OpenTab creates a new tab navigated to url. It does not wait for load.
	OpenTab(ctx context.Context, url string) (*TabInfo, error)
	// ReadyState reports document.readyState of the tab ("loading", "interactive", "complete").
	ReadyState(ctx context.Context, targetID string) (string, error)
	// Attach performs the debug session handshake for a tab.
	Attach(ctx context.Context, targetID string) (Conn, error)
	// Detach tears down the debug session of a tab.
	Detach(ctx context.Context, targetID string) error
	// OnDetached registers fn to be called when a session ends without Detach
	// having been called (tab crashed, closed, or debugger kicked).
	OnDetached(fn func(targetID string))
	// ProtocolVersion reports the remote debugging protocol version.
	ProtocolVersion(ctx context.Context) (string, error)
}

// Conn is one attached debug session. Queries return ErrNoMatch when the
// document has no matching element yet.
type Conn interface {
	TargetID() string

	Navigate(ctx context.Context, url string) error
	SetViewport(ctx context.Context, vp Viewport) error
	Info(ctx context.Context) (PageInfo, error)
	Evaluate(ctx context.Context, expression string) (any, error)

	// QueryCSS matches a structural CSS selector against the document.
	QueryCSS(ctx context.Context, css string) (*Node, error)
	// QueryPierce matches a CSS selector through open shadow roots.
	QueryPierce(ctx context.Context, css string) (*Node, error)
	// QueryXPath matches an XPath expression against the document.
	QueryXPath(ctx context.Context, xpath string) (*Node, error)
	// QueryText returns the immediate container element of the first text node
	// whose content contains text (case-sensitive).
	QueryText(ctx context.Context, text string) (*Node, error)
	// QueryLabel returns the first element whose accessible label matches.
	QueryLabel(ctx context.Context, label string) (*Node, error)
	// Ancestors returns n followed by its parent elements, at most limit nodes.
	Ancestors(ctx context.Context, n *Node, limit int) ([]*Node, error)

	// Box re-reads the element's bounding box after scrolling it into view.
	Box(ctx context.Context, n *Node) (Box, error)
	DispatchMouse(ctx context.Context, ev MouseEvent) error
	DispatchKey(ctx context.Context, typ KeyEventType, key string) error
	SetValue(ctx context.Context, n *Node, value string) error
	TextOf(ctx context.Context, n *Node) (string, error)

	Outline(ctx context.Context, opts OutlineOptions) (*Outline, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
