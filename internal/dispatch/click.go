package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// Options describes a click.
type Options struct {
	Button browser.MouseButton // default left
	Count  int                 // 1 for click, 2 for double click
}

// Result is where a pointer action landed.
type Result struct {
	X, Y    float64
	Warning string // set when the target does not look actionable
}

// Dispatcher issues trusted pointer input at resolved elements.
type Dispatcher struct {
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// center re-reads the element's box; layout may have moved since resolution.
func center(ctx context.Context, conn browser.Conn, n *browser.Node) (float64, float64, error) {
	box, err := conn.Box(ctx, n)
	if err != nil {
		return 0, 0, fmt.Errorf("read element box: %w", err)
	}
	if box.Empty() {
		return 0, 0, fmt.Errorf("element box is empty")
	}
	x, y := box.Center()
	return x, y, nil
}

// Click presses and releases a button at the center of n. Double clicks send
// a second press/release pair with a click count of 2.
func (d *Dispatcher) Click(ctx context.Context, conn browser.Conn, n *browser.Node, opts Options) (Result, error) {
	if opts.Button == "" {
		opts.Button = browser.ButtonLeft
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}

	res := Result{}
	if !browser.IsActionable(n.NodeInfo) {
		res.Warning = fmt.Sprintf("click target <%s role=%q> is not a link or button", n.Tag, n.Role)
		d.logger.Warn("clicking non-conventional target", "tag", n.Tag, "role", n.Role, "class", n.Class)
	}

	x, y, err := center(ctx, conn, n)
	if err != nil {
		return res, err
	}
	res.X, res.Y = x, y

	if err := conn.DispatchMouse(ctx, browser.MouseEvent{Type: browser.MouseMoved, X: x, Y: y}); err != nil {
		return res, err
	}
	for i := 1; i <= opts.Count; i++ {
		for _, typ := range []browser.MouseEventType{browser.MousePressed, browser.MouseReleased} {
			ev := browser.MouseEvent{Type: typ, X: x, Y: y, Button: opts.Button, ClickCount: i}
			if err := conn.DispatchMouse(ctx, ev); err != nil {
				return res, err
			}
		}
	}

	d.logger.Debug("click dispatched", "x", x, "y", y, "button", opts.Button, "count", opts.Count)
	return res, nil
}

// Hover moves the pointer to the center of n.
func (d *Dispatcher) Hover(ctx context.Context, conn browser.Conn, n *browser.Node) (Result, error) {
	x, y, err := center(ctx, conn, n)
	if err != nil {
		return Result{}, err
	}
	return Result{X: x, Y: y}, conn.DispatchMouse(ctx, browser.MouseEvent{Type: browser.MouseMoved, X: x, Y: y})
}

// Scroll sends a wheel event. With n set the wheel is positioned over the
// element, otherwise at the viewport origin.
func (d *Dispatcher) Scroll(ctx context.Context, conn browser.Conn, n *browser.Node, dx, dy float64) (Result, error) {
	var x, y float64
	if n != nil {
		var err error
		if x, y, err = center(ctx, conn, n); err != nil {
			return Result{}, err
		}
	}
	ev := browser.MouseEvent{Type: browser.MouseWheel, X: x, Y: y, DeltaX: dx, DeltaY: dy}
	return Result{X: x, Y: y}, conn.DispatchMouse(ctx, ev)
}

// ParseButton maps recorder and DOM button names to a mouse button.
func ParseButton(s string) (browser.MouseButton, error) {
	switch s {
	case "", "primary", "left":
		return browser.ButtonLeft, nil
	case "auxiliary", "middle":
		return browser.ButtonMiddle, nil
	case "secondary", "right":
		return browser.ButtonRight, nil
	}
	return "", fmt.Errorf("unknown mouse button %q", s)
}
