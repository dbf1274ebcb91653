package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// DispatchMouse sends a trusted pointer event through the debug session.
func (c *cdpConn) DispatchMouse(ctx context.Context, ev MouseEvent) error {
	button := proto.InputMouseButtonNone
	switch ev.Button {
	case ButtonLeft:
		button = proto.InputMouseButtonLeft
	case ButtonMiddle:
		button = proto.InputMouseButtonMiddle
	case ButtonRight:
		button = proto.InputMouseButtonRight
	}

	req := proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventType(ev.Type),
		X:          ev.X,
		Y:          ev.Y,
		Button:     button,
		ClickCount: ev.ClickCount,
	}
	if ev.Type == MouseWheel {
		req.DeltaX = ev.DeltaX
		req.DeltaY = ev.DeltaY
	}
	if err := req.Call(c.client(ctx)); err != nil {
		return fmt.Errorf("dispatch %s at (%.0f,%.0f): %w", ev.Type, ev.X, ev.Y, err)
	}
	return nil
}

// DispatchKey sends a trusted key event for a DOM key name such as "Enter" or "a".
func (c *cdpConn) DispatchKey(ctx context.Context, typ KeyEventType, key string) error {
	k, ok := mapKey(key)
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	t := proto.InputDispatchKeyEventTypeKeyDown
	if typ == KeyUp {
		t = proto.InputDispatchKeyEventTypeKeyUp
	}
	if err := k.Encode(t, 0).Call(c.client(ctx)); err != nil {
		return fmt.Errorf("dispatch %s %q: %w", typ, key, err)
	}
	return nil
}

// SetValue replaces the value of a form control. Selects are assigned
// directly; other fields are focused, cleared and typed into.
func (c *cdpConn) SetValue(ctx context.Context, n *Node, value string) error {
	id, err := objectID(n)
	if err != nil {
		return err
	}
	cl := c.client(ctx)

	quoted, _ := json.Marshal(value)
	res, err := proto.RuntimeCallFunctionOn{
		ObjectID:            id,
		FunctionDeclaration: "function() { return (" + jsPrepareValue + ").call(this, " + string(quoted) + ") }",
		ReturnByValue:       true,
	}.Call(cl)
	if err != nil {
		return fmt.Errorf("prepare field: %w", err)
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("prepare field: %s", exceptionText(res.ExceptionDetails))
	}
	if res.Result.Value.Str() == "done" {
		return nil
	}

	if value == "" {
		for _, ev := range keyStroke(input.Backspace) {
			if err := ev.Call(cl); err != nil {
				return fmt.Errorf("clear field: %w", err)
			}
		}
	} else if err := (proto.InputInsertText{Text: value}).Call(cl); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}

	if _, err := (proto.RuntimeCallFunctionOn{ObjectID: id, FunctionDeclaration: jsCommitValue}).Call(cl); err != nil {
		return fmt.Errorf("commit field: %w", err)
	}
	return nil
}

// keyStroke is a full press of k: key down, then key up.
func keyStroke(k input.Key) []*proto.InputDispatchKeyEvent {
	return []*proto.InputDispatchKeyEvent{
		k.Encode(proto.InputDispatchKeyEventTypeKeyDown, 0),
		k.Encode(proto.InputDispatchKeyEventTypeKeyUp, 0),
	}
}

// mapKey converts a DOM key name to a rod keyboard key.
func mapKey(key string) (input.Key, bool) {
	switch key {
	case "Enter":
		return input.Enter, true
	case "Tab":
		return input.Tab, true
	case "Escape":
		return input.Escape, true
	case "Backspace":
		return input.Backspace, true
	case "Delete":
		return input.Delete, true
	case "ArrowUp":
		return input.ArrowUp, true
	case "ArrowDown":
		return input.ArrowDown, true
	case "ArrowLeft":
		return input.ArrowLeft, true
	case "ArrowRight":
		return input.ArrowRight, true
	case "Home":
		return input.Home, true
	case "End":
		return input.End, true
	case "PageUp":
		return input.PageUp, true
	case "PageDown":
		return input.PageDown, true
	case "Shift":
		return input.ShiftLeft, true
	case "Control":
		return input.ControlLeft, true
	case "Alt":
		return input.AltLeft, true
	case "Meta":
		return input.MetaLeft, true
	case "Space", " ":
		return input.Space, true
	}
	if r := []rune(key); len(r) == 1 && r[0] < 128 {
		return input.Key(r[0]), true
	}
	return 0, false
}
