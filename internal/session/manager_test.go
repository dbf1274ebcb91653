package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser/browsertest"
)

func newDriver() *browsertest.Driver {
	return browsertest.NewDriver(
		browser.TabInfo{TargetID: "1", URL: "https://a.example"},
		browser.TabInfo{TargetID: "2", URL: "https://b.example"},
	)
}

func TestAttach_Idempotent(t *testing.T) {
	d := newDriver()
	m := NewManager(d)
	ctx := context.Background()

	c1, err := m.Attach(ctx, "1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	c2, err := m.Attach(ctx, "1")
	if err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if c1 != c2 {
		t.Error("second attach returned a different session")
	}
	if n := d.Attaches("1"); n != 1 {
		t.Errorf("handshakes = %d, want 1", n)
	}

	s, ok := m.Get("1")
	if !ok || s.State != "attached" || s.ProtocolVersion != "1.3" {
		t.Errorf("session = %+v, %v", s, ok)
	}
}

func TestAttach_ConcurrentSingleHandshake(t *testing.T) {
	d := newDriver()
	m := NewManager(d)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Attach(context.Background(), "2"); err != nil {
				t.Errorf("Attach: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := d.Attaches("2"); n != 1 {
		t.Errorf("handshakes = %d, want 1", n)
	}
}

func TestAttach_FailureIsTyped(t *testing.T) {
	d := newDriver()
	d.AttachErr = errors.New("target busy")
	m := NewManager(d)

	_, err := m.Attach(context.Background(), "1")
	var ae *DebugAttachError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want DebugAttachError", err)
	}
	if ae.TabID != "1" {
		t.Errorf("tab = %q", ae.TabID)
	}
	if _, ok := m.Get("1"); ok {
		t.Error("failed attach should not leave a session")
	}
}

func TestDetach(t *testing.T) {
	d := newDriver()
	m := NewManager(d)
	ctx := context.Background()

	if err := m.Detach(ctx, "1"); err != nil {
		t.Fatalf("detach without session: %v", err)
	}
	if n := d.Detaches("1"); n != 0 {
		t.Errorf("detach calls = %d, want 0", n)
	}

	m.Attach(ctx, "1")
	if err := m.Detach(ctx, "1"); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if _, ok := m.Get("1"); ok {
		t.Error("session still in table")
	}
	if _, err := m.Current("1"); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Current err = %v, want ErrNotAttached", err)
	}

	// attaching again performs a new handshake
	m.Attach(ctx, "1")
	if n := d.Attaches("1"); n != 2 {
		t.Errorf("handshakes = %d, want 2", n)
	}
}

func TestDetach_FailureKeepsSession(t *testing.T) {
	d := newDriver()
	m := NewManager(d)
	ctx := context.Background()
	m.Attach(ctx, "1")

	d.DetachErr = errors.New("socket closed")
	err := m.Detach(ctx, "1")
	var de *DebugDetachError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DebugDetachError", err)
	}
	if s, _ := m.Get("1"); s.State != "attached" {
		t.Errorf("state = %q, want attached", s.State)
	}
}

func TestUnsolicitedDetach_Reattaches(t *testing.T) {
	d := newDriver()
	done := make(chan error, 1)
	m := NewManager(d, WithReattachHook(func(tabID string, err error) { done <- err }))
	m.Attach(context.Background(), "1")

	d.KickDetach("1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reattach failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no reattach outcome")
	}

	if n := d.Attaches("1"); n != 2 {
		t.Errorf("handshakes = %d, want 2", n)
	}
	s, ok := m.Get("1")
	if !ok || s.State != "attached" || s.Reattaches != 1 {
		t.Errorf("session = %+v", s)
	}
	if c, err := m.Current("1"); err != nil || c != d.ConnFor("1") {
		t.Errorf("Current = %v, %v; want the new session", c, err)
	}
}

func TestUnsolicitedDetach_TabGoneRemovesSession(t *testing.T) {
	d := newDriver()
	done := make(chan error, 1)
	m := NewManager(d, WithReattachHook(func(tabID string, err error) { done <- err }))
	m.Attach(context.Background(), "2")

	d.CloseTab("2")
	d.KickDetach("2")

	if err := <-done; !errors.Is(err, browser.ErrTabNotFound) {
		t.Errorf("err = %v, want ErrTabNotFound", err)
	}
	if _, ok := m.Get("2"); ok {
		t.Error("session should be removed")
	}
	if n := d.Attaches("2"); n != 1 {
		t.Errorf("handshakes = %d, want no reattach attempt", n)
	}
}

func TestUnsolicitedDetach_BudgetExhausted(t *testing.T) {
	d := newDriver()
	done := make(chan error, 4)
	m := NewManager(d,
		WithReattachPolicy(1, 0, 1),
		WithReattachHook(func(tabID string, err error) { done <- err }),
	)
	m.Attach(context.Background(), "1")

	d.KickDetach("1")
	if err := <-done; err != nil {
		t.Fatalf("first reattach: %v", err)
	}
	d.KickDetach("1")
	if err := <-done; err == nil {
		t.Fatal("second reattach within a minute should exceed the budget")
	}
	if _, ok := m.Get("1"); ok {
		t.Error("session should be removed")
	}
}

func TestUnsolicitedDetach_IgnoredForUnknownTab(t *testing.T) {
	d := newDriver()
	called := false
	NewManager(d, WithReattachHook(func(string, error) { called = true }))
	d.KickDetach("1")
	if called {
		t.Error("hook called for a tab never attached")
	}
}

func TestList(t *testing.T) {
	d := newDriver()
	m := NewManager(d)
	m.Attach(context.Background(), "2")
	m.Attach(context.Background(), "1")

	list := m.List()
	if len(list) != 2 || list[0].TabID != "1" || list[1].TabID != "2" {
		t.Errorf("list = %+v", list)
	}
	if err := m.DetachAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 0 {
		t.Error("sessions left after DetachAll")
	}
}
