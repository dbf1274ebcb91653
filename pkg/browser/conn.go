package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// sessionClient routes protocol calls through one flattened target session on
// the shared browser connection.
type sessionClient struct {
	browser   *rod.Browser
	sessionID proto.TargetSessionID
	ctx       context.Context
}

func (s *sessionClient) Call(ctx context.Context, _ string, method string, params any) ([]byte, error) {
	return s.browser.Call(ctx, string(s.sessionID), method, params)
}

func (s *sessionClient) GetContext() context.Context { return s.ctx }

func (s *sessionClient) GetSessionID() proto.TargetSessionID { return s.sessionID }

// cdpConn implements Conn over a raw debug session. Elements are remote object
// ids that stay valid until the document navigates.
type cdpConn struct {
	browser   *rod.Browser
	targetID  string
	sessionID proto.TargetSessionID
	logger    *slog.Logger
}

func newConn(b *rod.Browser, targetID string, sid proto.TargetSessionID, logger *slog.Logger) *cdpConn {
	return &cdpConn{browser: b, targetID: targetID, sessionID: sid, logger: logger}
}

func (c *cdpConn) client(ctx context.Context) *sessionClient {
	return &sessionClient{browser: c.browser, sessionID: c.sessionID, ctx: ctx}
}

func (c *cdpConn) enable(ctx context.Context) error {
	cl := c.client(ctx)
	if err := (proto.PageEnable{}).Call(cl); err != nil {
		return fmt.Errorf("enable Page domain: %w", err)
	}
	if err := (proto.DOMEnable{}).Call(cl); err != nil {
		return fmt.Errorf("enable DOM domain: %w", err)
	}
	// Accessibility is only needed for label queries and outlines.
	if err := (proto.AccessibilityEnable{}).Call(cl); err != nil {
		c.logger.Debug("accessibility domain unavailable", "tab", c.targetID, "error", err)
	}
	return nil
}

func (c *cdpConn) TargetID() string { return c.targetID }

// Navigate loads url and waits until the document reports complete.
func (c *cdpConn) Navigate(ctx context.Context, url string) error {
	res, err := proto.PageNavigate{URL: url}.Call(c.client(ctx))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if res.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, res.ErrorText)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := c.Evaluate(ctx, "document.readyState")
		if err == nil && state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for load of %s: %w", url, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *cdpConn) SetViewport(ctx context.Context, vp Viewport) error {
	cl := c.client(ctx)
	override := proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.IsMobile,
	}
	if vp.IsLandscape {
		override.ScreenOrientation = &proto.EmulationScreenOrientation{
			Type:  proto.EmulationScreenOrientationTypeLandscapePrimary,
			Angle: 90,
		}
	}
	if err := override.Call(cl); err != nil {
		return fmt.Errorf("set device metrics: %w", err)
	}
	if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: vp.HasTouch}).Call(cl); err != nil {
		return fmt.Errorf("set touch emulation: %w", err)
	}
	return nil
}

func (c *cdpConn) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	v, err := c.evalJSON(ctx, `({url: location.href, title: document.title})`)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal([]byte(v), &info); err != nil {
		return info, fmt.Errorf("decode page info: %w", err)
	}
	return info, nil
}

// Evaluate runs an expression in the page, awaiting promises, and returns its
// JSON value.
func (c *cdpConn) Evaluate(ctx context.Context, expression string) (any, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(c.client(ctx))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate: %s", exceptionText(res.ExceptionDetails))
	}
	if res.Result.Value.Nil() {
		return nil, nil
	}
	return res.Result.Value.Val(), nil
}

func (c *cdpConn) evalJSON(ctx context.Context, expression string) (string, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
	}.Call(c.client(ctx))
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	if res.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate: %s", exceptionText(res.ExceptionDetails))
	}
	return res.Result.Value.String(), nil
}

func (c *cdpConn) QueryCSS(ctx context.Context, css string) (*Node, error) {
	return c.query(ctx, jsQueryCSS, css)
}

func (c *cdpConn) QueryPierce(ctx context.Context, css string) (*Node, error) {
	return c.query(ctx, jsQueryPierce, css)
}

func (c *cdpConn) QueryXPath(ctx context.Context, xpath string) (*Node, error) {
	return c.query(ctx, jsQueryXPath, xpath)
}

func (c *cdpConn) QueryText(ctx context.Context, text string) (*Node, error) {
	return c.query(ctx, jsQueryText, text)
}

// QueryLabel asks the accessibility tree for a node with the given accessible
// name first, then falls back to label-like attributes in the DOM.
func (c *cdpConn) QueryLabel(ctx context.Context, label string) (*Node, error) {
	n, err := c.queryAX(ctx, label)
	if err == nil {
		return n, nil
	}
	c.logger.Debug("accessibility label query missed", "label", label, "error", err)
	return c.query(ctx, jsQueryLabel, label)
}

func (c *cdpConn) queryAX(ctx context.Context, name string) (*Node, error) {
	cl := c.client(ctx)
	doc, err := proto.DOMGetDocument{}.Call(cl)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	res, err := proto.AccessibilityQueryAXTree{
		BackendNodeID:  doc.Root.BackendNodeID,
		AccessibleName: name,
	}.Call(cl)
	if err != nil {
		return nil, fmt.Errorf("query ax tree: %w", err)
	}
	for _, ax := range res.Nodes {
		if ax.Ignored || ax.BackendDOMNodeID == 0 {
			continue
		}
		obj, err := proto.DOMResolveNode{BackendNodeID: ax.BackendDOMNodeID}.Call(cl)
		if err != nil || obj.Object.ObjectID == "" {
			continue
		}
		return c.describe(ctx, obj.Object.ObjectID)
	}
	return nil, ErrNoMatch
}

// query evaluates fn(arg) in the page. fn returns an element or null.
func (c *cdpConn) query(ctx context.Context, fn, arg string) (*Node, error) {
	quoted, _ := json.Marshal(arg)
	res, err := proto.RuntimeEvaluate{
		Expression: "(" + fn + ")(" + string(quoted) + ")",
	}.Call(c.client(ctx))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("query %q: %s", arg, exceptionText(res.ExceptionDetails))
	}
	if res.Result.ObjectID == "" || res.Result.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, ErrNoMatch
	}
	return c.describe(ctx, res.Result.ObjectID)
}

func (c *cdpConn) describe(ctx context.Context, id proto.RuntimeRemoteObjectID) (*Node, error) {
	res, err := proto.RuntimeCallFunctionOn{
		ObjectID:            id,
		FunctionDeclaration: jsDescribe,
		ReturnByValue:       true,
	}.Call(c.client(ctx))
	if err != nil {
		return nil, fmt.Errorf("describe node: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("describe node: %s", exceptionText(res.ExceptionDetails))
	}
	n := &Node{Handle: id}
	if err := json.Unmarshal([]byte(res.Result.Value.String()), &n.NodeInfo); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if !n.HasClickHandler {
		// addEventListener handlers are only visible through the debugger
		ls, err := proto.DOMDebuggerGetEventListeners{ObjectID: id}.Call(c.client(ctx))
		if err != nil {
			c.logger.Debug("list event listeners", "target", c.targetID, "error", err)
		} else {
			n.HasClickHandler = hasClickListener(ls.Listeners)
		}
	}
	return n, nil
}

// clickEvents are listener types that make an element react to a click.
var clickEvents = map[string]bool{
	"click":       true,
	"dblclick":    true,
	"mousedown":   true,
	"mouseup":     true,
	"pointerdown": true,
	"pointerup":   true,
}

func hasClickListener(ls []*proto.DOMDebuggerEventListener) bool {
	for _, l := range ls {
		if l != nil && clickEvents[l.Type] {
			return true
		}
	}
	return false
}

func objectID(n *Node) (proto.RuntimeRemoteObjectID, error) {
	if n == nil {
		return "", fmt.Errorf("nil node")
	}
	id, ok := n.Handle.(proto.RuntimeRemoteObjectID)
	if !ok || id == "" {
		return "", fmt.Errorf("node handle %T does not belong to this session", n.Handle)
	}
	return id, nil
}

// Ancestors returns n and its parent elements, nearest first.
func (c *cdpConn) Ancestors(ctx context.Context, n *Node, limit int) ([]*Node, error) {
	id, err := objectID(n)
	if err != nil {
		return nil, err
	}
	cl := c.client(ctx)
	res, err := proto.RuntimeCallFunctionOn{
		ObjectID:            id,
		FunctionDeclaration: "function() { return (" + jsAncestors + ").call(this, " + strconv.Itoa(limit) + ") }",
	}.Call(cl)
	if err != nil {
		return nil, fmt.Errorf("collect ancestors: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("collect ancestors: %s", exceptionText(res.ExceptionDetails))
	}

	props, err := proto.RuntimeGetProperties{ObjectID: res.Result.ObjectID, OwnProperties: true}.Call(cl)
	if err != nil {
		return nil, fmt.Errorf("read ancestors: %w", err)
	}
	chain := make([]*Node, 0, limit)
	for i := 0; i < limit; i++ {
		var elID proto.RuntimeRemoteObjectID
		for _, p := range props.Result {
			if p.Name == strconv.Itoa(i) && p.Value != nil {
				elID = p.Value.ObjectID
				break
			}
		}
		if elID == "" {
			break
		}
		node, err := c.describe(ctx, elID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, node)
	}
	return chain, nil
}

// Box scrolls the element into view and reads its content quads.
func (c *cdpConn) Box(ctx context.Context, n *Node) (Box, error) {
	id, err := objectID(n)
	if err != nil {
		return Box{}, err
	}
	cl := c.client(ctx)
	if err := (proto.DOMScrollIntoViewIfNeeded{ObjectID: id}).Call(cl); err != nil {
		c.logger.Debug("scroll into view failed", "error", err)
	}
	quads, err := proto.DOMGetContentQuads{ObjectID: id}.Call(cl)
	if err != nil {
		return Box{}, fmt.Errorf("get content quads: %w", err)
	}
	rect := quads.Box()
	if rect == nil {
		return Box{}, fmt.Errorf("element has no layout box")
	}
	return Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

func (c *cdpConn) TextOf(ctx context.Context, n *Node) (string, error) {
	id, err := objectID(n)
	if err != nil {
		return "", err
	}
	res, err := proto.RuntimeCallFunctionOn{
		ObjectID:            id,
		FunctionDeclaration: jsText,
		ReturnByValue:       true,
	}.Call(c.client(ctx))
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return res.Result.Value.Str(), nil
}

func (c *cdpConn) Outline(ctx context.Context, opts OutlineOptions) (*Outline, error) {
	res, err := proto.AccessibilityGetFullAXTree{}.Call(c.client(ctx))
	if err != nil {
		return nil, fmt.Errorf("get accessibility tree: %w", err)
	}
	out := BuildOutline(res.Nodes, opts)
	out.TargetID = c.targetID
	if info, err := c.Info(ctx); err == nil {
		out.Page = info
	}
	return out, nil
}

func (c *cdpConn) Screenshot(ctx context.Context) ([]byte, error) {
	res, err := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}.Call(c.client(ctx))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return res.Data, nil
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
