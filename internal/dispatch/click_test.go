package dispatch

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	bt "github.com/nextlevelbuilder/tabpilot/pkg/browser/browsertest"
)

func nodeFor(e *bt.Element) *browser.Node {
	return &browser.Node{NodeInfo: e.NodeInfo, Handle: e}
}

func TestClick_PressReleaseAtCenter(t *testing.T) {
	btn := bt.El("button").With(func(e *bt.Element) { e.Box = browser.Box{X: 100, Y: 200, Width: 50, Height: 20} })
	conn := bt.NewConn("1", &bt.Page{Root: btn})

	res, err := New().Click(context.Background(), conn, nodeFor(btn), Options{})
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if res.X != 125 || res.Y != 210 {
		t.Errorf("point = (%v,%v), want (125,210)", res.X, res.Y)
	}
	if res.Warning != "" {
		t.Errorf("unexpected warning %q", res.Warning)
	}

	var types []browser.MouseEventType
	for _, ev := range conn.Mouse {
		types = append(types, ev.Type)
		if ev.X != 125 || ev.Y != 210 {
			t.Errorf("%s at (%v,%v)", ev.Type, ev.X, ev.Y)
		}
	}
	want := []browser.MouseEventType{browser.MouseMoved, browser.MousePressed, browser.MouseReleased}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	if conn.Mouse[1].Button != browser.ButtonLeft || conn.Mouse[1].ClickCount != 1 {
		t.Errorf("press = %+v", conn.Mouse[1])
	}
}

func TestClick_RequeriesBox(t *testing.T) {
	el := bt.El("a").With(func(e *bt.Element) { e.Box = browser.Box{X: 0, Y: 0, Width: 10, Height: 10} })
	conn := bt.NewConn("1", &bt.Page{Root: el})
	n := nodeFor(el)

	// layout shifts after resolution
	el.Box = browser.Box{X: 300, Y: 300, Width: 10, Height: 10}

	res, err := New().Click(context.Background(), conn, n, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.X != 305 || res.Y != 305 {
		t.Errorf("clicked stale position (%v,%v)", res.X, res.Y)
	}
	if conn.Boxes != 1 {
		t.Errorf("box reads = %d, want 1", conn.Boxes)
	}
}

func TestClick_WarnsOnCustomWidget(t *testing.T) {
	div := bt.El("div").With(func(e *bt.Element) {
		e.Class = "chat-row"
		e.Box = browser.Box{Width: 10, Height: 10}
	})
	conn := bt.NewConn("1", &bt.Page{Root: div})

	res, err := New().Click(context.Background(), conn, nodeFor(div), Options{})
	if err != nil {
		t.Fatalf("click should still be attempted: %v", err)
	}
	if res.Warning == "" {
		t.Error("expected a warning for a div target")
	}
	if len(conn.Clicks()) != 1 {
		t.Errorf("clicks = %d, want 1", len(conn.Clicks()))
	}
}

func TestClick_Double(t *testing.T) {
	el := bt.El("button").With(func(e *bt.Element) { e.Box = browser.Box{Width: 10, Height: 10} })
	conn := bt.NewConn("1", &bt.Page{Root: el})

	if _, err := New().Click(context.Background(), conn, nodeFor(el), Options{Count: 2, Button: browser.ButtonRight}); err != nil {
		t.Fatal(err)
	}
	clicks := conn.Clicks()
	if len(clicks) != 2 {
		t.Fatalf("presses = %d, want 2", len(clicks))
	}
	last := conn.Mouse[len(conn.Mouse)-1]
	if last.ClickCount != 2 || last.Button != browser.ButtonRight {
		t.Errorf("last event = %+v", last)
	}
}

func TestClick_NoBox(t *testing.T) {
	el := bt.El("button")
	conn := bt.NewConn("1", &bt.Page{Root: el})
	if _, err := New().Click(context.Background(), conn, nodeFor(el), Options{}); err == nil {
		t.Error("expected error for element without layout")
	}
	if len(conn.Mouse) != 0 {
		t.Error("no events should be sent without a box")
	}
}

func TestParseButton(t *testing.T) {
	for in, want := range map[string]browser.MouseButton{
		"":          browser.ButtonLeft,
		"primary":   browser.ButtonLeft,
		"auxiliary": browser.ButtonMiddle,
		"secondary": browser.ButtonRight,
		"right":     browser.ButtonRight,
	} {
		got, err := ParseButton(in)
		if err != nil || got != want {
			t.Errorf("ParseButton(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseButton("back"); err == nil {
		t.Error("expected error")
	}
}
