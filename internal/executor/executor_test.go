package executor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/dispatch"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	bt "github.com/nextlevelbuilder/tabpilot/pkg/browser/browsertest"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

type conns map[string]browser.Conn

func (c conns) Current(tabID string) (browser.Conn, error) {
	conn, ok := c[tabID]
	if !ok {
		return nil, session.ErrNotAttached
	}
	return conn, nil
}

type fixture struct {
	conn  *bt.Conn
	exec  *Executor
	input *bt.Element
	send  *bt.Element
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	input := bt.El("input").With(func(e *bt.Element) { e.Label = "Message" })
	send := bt.El("button").With(func(e *bt.Element) {
		e.Own = "Send"
		e.Box = browser.Box{X: 10, Y: 10, Width: 40, Height: 20}
	})
	page := &bt.Page{
		URL:   "https://chat.example.com",
		Title: "Chat",
		Root:  bt.El("body", input, send),
		CSS:   map[string]*bt.Element{"#send": send, "#msg": input},
		Eval:  map[string]any{"window.ready": true, "window.never": false},
	}
	conn := bt.NewConn("tab-1", page)
	res := selector.NewResolver(config.StaticClickable(config.DefaultClickable()),
		selector.WithTimeout(20*time.Millisecond), selector.WithPollInterval(time.Millisecond))
	exec := New(conns{"tab-1": conn}, res, dispatch.New(), WithPollInterval(time.Millisecond))
	return &fixture{conn: conn, exec: exec, input: input, send: send}
}

func (f *fixture) run(steps []script.Step, params map[string]any) (*RunContext, error) {
	rc := &RunContext{RunID: "r1", TabID: "tab-1", Params: params}
	return rc, f.exec.Run(context.Background(), rc, steps, nil)
}

func sel(s ...string) script.Selectors {
	out := make(script.Selectors, len(s))
	for i, v := range s {
		out[i] = []string{v}
	}
	return out
}

func TestSubstitute(t *testing.T) {
	vars := map[string]any{
		"name":  "Sarah",
		"count": float64(3),
		"item":  map[string]any{"id": float64(7), "tags": []any{"a", "b"}},

		"prénom":     "Zoé",
		"first name": "Ana",
	}
	tests := []struct {
		in      string
		want    string
		missing []string
	}{
		{"Find {{name}} now", "Find Sarah now", nil},
		{"{{ name }}:{{count}}", "Sarah:3", nil},
		{"row-{{item.id}}-{{item.tags.1}}", "row-7-b", nil},
		{"Hi {{missing}}", "Hi {{missing}}", []string{"missing"}},
		{"{{item.nope}} {{name}}", "{{item.nope}} Sarah", []string{"item.nope"}},
		{"no placeholders", "no placeholders", nil},
		{"Hi {{prénom}}", "Hi Zoé", nil},
		{"Hi {{ first name }}", "Hi Ana", nil},
		{"{{nom de famille}}", "{{nom de famille}}", []string{"nom de famille"}},
		{"empty {{ }}", "empty {{ }}", nil},
	}
	for _, tt := range tests {
		got, missing := Substitute(tt.in, vars)
		if got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !reflect.DeepEqual(missing, tt.missing) {
			t.Errorf("Substitute(%q) missing = %v, want %v", tt.in, missing, tt.missing)
		}
	}
}

func TestRun_ChangeSubstitutesAndWarns(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{Type: script.StepChange, Selectors: sel("aria/Message"), Value: "Find {{name}} now {{missing}}"},
	}
	rc, err := f.run(steps, map[string]any{"name": "Sarah"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.input.Value != "Find Sarah now {{missing}}" {
		t.Errorf("value = %q", f.input.Value)
	}
	if len(rc.Warnings) != 1 || rc.Warnings[0].Kind != WarnSubstitution || rc.Warnings[0].Step != "0" {
		t.Errorf("warnings = %+v", rc.Warnings)
	}
}

func TestRun_LoopItemsInOrder(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{{
		Type: script.StepLoop,
		Loop: &script.Loop{
			Items: []any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}},
			Steps: []script.Step{{Type: script.StepKeyDown, Key: "{{id}}"}},
		},
	}}
	if _, err := f.run(steps, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"keyDown:1", "keyDown:2"}
	if !reflect.DeepEqual(f.conn.Keys, want) {
		t.Errorf("keys = %v, want %v", f.conn.Keys, want)
	}
}

func TestRun_LoopSourceAndIndex(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{{
		Type: script.StepLoop,
		Loop: &script.Loop{
			Source: `.params.rows | map(select(.on))`,
			Steps: []script.Step{
				{Type: script.StepKeyDown, Key: "{{index}}{{name}}", Condition: `index < 5`},
			},
		},
	}}
	params := map[string]any{"rows": []any{
		map[string]any{"name": "a", "on": true},
		map[string]any{"name": "b", "on": false},
		map[string]any{"name": "c", "on": true},
	}}
	if _, err := f.run(steps, params); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"keyDown:0a", "keyDown:1c"}
	if !reflect.DeepEqual(f.conn.Keys, want) {
		t.Errorf("keys = %v, want %v", f.conn.Keys, want)
	}
}

func TestRun_ConditionSeesLoopItem(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{Type: script.StepKeyDown, Key: "outside", Condition: `index == -1 && item == null`},
		{
			Type: script.StepLoop,
			Loop: &script.Loop{
				Items: []any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}},
				Steps: []script.Step{{Type: script.StepKeyDown, Key: "{{id}}", Condition: `item.id == 2.0`}},
			},
		},
	}
	if _, err := f.run(steps, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"keyDown:outside", "keyDown:2"}
	if !reflect.DeepEqual(f.conn.Keys, want) {
		t.Errorf("keys = %v, want %v", f.conn.Keys, want)
	}
}

func TestRun_UnknownTypeAborts(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{Type: script.StepKeyDown, Key: "a"},
		{Type: "teleport"},
		{Type: script.StepKeyDown, Key: "b"},
	}
	_, err := f.run(steps, nil)
	var te *StepTypeError
	if !errors.As(err, &te) || te.Type != "teleport" {
		t.Fatalf("err = %v, want StepTypeError", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Index != 1 || se.Type != "teleport" {
		t.Errorf("step error = %+v", se)
	}
	if !reflect.DeepEqual(f.conn.Keys, []string{"keyDown:a"}) {
		t.Errorf("steps after the failure ran: %v", f.conn.Keys)
	}
}

func TestRun_FailureAbortsRemaining(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{Type: script.StepClick, Selectors: sel("#gone", "text/Nowhere")},
		{Type: script.StepKeyDown, Key: "Enter"},
	}
	_, err := f.run(steps, nil)
	var nf *selector.ElementNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ElementNotFoundError", err)
	}
	if len(nf.Candidates) != 2 {
		t.Errorf("candidates = %v", nf.Candidates)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Index != 0 || se.Type != script.StepClick {
		t.Errorf("step error = %+v", se)
	}
	if len(f.conn.Keys) != 0 {
		t.Error("keyDown ran after a failed step")
	}
}

func TestRun_NestedFailurePath(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{Type: script.StepKeyDown, Key: "a"},
		{
			Type: script.StepLoop,
			Loop: &script.Loop{Items: []any{"x", "y"}, Steps: []script.Step{
				{Type: script.StepKeyDown, Key: "{{item}}", Condition: `item == "x"`},
				{Type: script.StepClick, Selectors: sel("#missing"), Condition: `index == 1`},
			}},
		},
	}
	_, err := f.run(steps, nil)
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	if se.Index != 1 || se.Path != "1.loop[1].1" {
		t.Errorf("index = %d path = %q", se.Index, se.Path)
	}
}

func TestRun_ConditionSkipsWholeStep(t *testing.T) {
	f := newFixture(t)
	steps := []script.Step{
		{
			Type:      script.StepKeyDown,
			Key:       "skipped",
			Condition: `params.mode == "dry"`,
			WaitAfter: 5000,
			Loop:      &script.Loop{Items: []any{1}, Steps: []script.Step{{Type: script.StepKeyDown, Key: "loop"}}},
		},
		{Type: script.StepKeyDown, Key: "ran", Condition: `exists("#send") && text("#send") == "Send" && page.title == "Chat"`},
		{Type: script.StepKeyDown, Key: "absent", Condition: `exists("#nope")`},
	}

	start := time.Now()
	if _, err := f.run(steps, map[string]any{"mode": "live"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("waitAfter of a skipped step was honored")
	}
	if !reflect.DeepEqual(f.conn.Keys, []string{"keyDown:ran"}) {
		t.Errorf("keys = %v", f.conn.Keys)
	}
}

func TestRun_ConditionErrors(t *testing.T) {
	for _, cond := range []string{`params.`, `"not a bool"`, `params.undefined == 1`} {
		f := newFixture(t)
		_, err := f.run([]script.Step{{Type: script.StepKeyDown, Key: "a", Condition: cond}}, nil)
		var ce *ConditionEvaluationError
		if !errors.As(err, &ce) {
			t.Errorf("%s: err = %v, want ConditionEvaluationError", cond, err)
		}
		if len(f.conn.Keys) != 0 {
			t.Errorf("%s: step ran", cond)
		}
	}
}

func TestRun_ClickWarningAndEvents(t *testing.T) {
	f := newFixture(t)
	row := bt.El("div").With(func(e *bt.Element) {
		e.Own = "Sarah"
		e.HasClickHandler = true
		e.Box = browser.Box{Width: 10, Height: 10}
	})
	f.conn.Page().Root.Append(row)

	var events []string
	rc := &RunContext{TabID: "tab-1", Events: func(name string, payload any) {
		ev := payload.(StepEvent)
		events = append(events, name+":"+ev.Path)
	}}
	steps := []script.Step{
		{Type: script.StepClick, Selectors: sel("text/Sarah")},
		{Type: script.StepKeyDown, Key: "x", Condition: "false"},
	}
	if err := f.exec.Run(context.Background(), rc, steps, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.conn.Clicks()) != 1 {
		t.Errorf("clicks = %d", len(f.conn.Clicks()))
	}
	if len(rc.Warnings) != 1 || rc.Warnings[0].Kind != WarnClickTarget {
		t.Errorf("warnings = %+v", rc.Warnings)
	}
	want := []string{
		protocol.EventStepStarted + ":0",
		protocol.EventStepCompleted + ":0",
		protocol.EventStepSkipped + ":1",
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRun_StepsOfEveryKind(t *testing.T) {
	f := newFixture(t)
	visible := false
	steps := []script.Step{
		{Type: script.StepSetViewport, Width: 390, Height: 844, DeviceScaleFactor: 3, IsMobile: true, HasTouch: true},
		{Type: script.StepNavigate, URL: "https://chat.example.com/{{room}}"},
		{Type: script.StepWaitForExpression, Expression: "window.ready"},
		{Type: script.StepWaitForElement, Selectors: sel("#send")},
		{Type: script.StepWaitForElement, Selectors: sel("#spinner"), Visible: &visible},
		{Type: script.StepHover, Selectors: sel("#send")},
		{Type: script.StepDoubleClick, Selectors: sel("#send"), Button: "secondary"},
		{Type: script.StepScroll, X: 0, Y: 400},
		{Type: script.StepKeyUp, Key: "Shift"},
		{Type: script.StepWaitAfter, Duration: 1},
		{Type: script.StepClose},
	}
	if _, err := f.run(steps, map[string]any{"room": "general"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.conn.Viewport == nil || f.conn.Viewport.Width != 390 || !f.conn.Viewport.IsMobile {
		t.Errorf("viewport = %+v", f.conn.Viewport)
	}
	if !reflect.DeepEqual(f.conn.Navs, []string{"https://chat.example.com/general"}) {
		t.Errorf("navs = %v", f.conn.Navs)
	}
	last := f.conn.Mouse[len(f.conn.Mouse)-1]
	if last.Type != browser.MouseWheel || last.DeltaY != 400 {
		t.Errorf("last mouse event = %+v", last)
	}
	if len(f.conn.Clicks()) != 2 {
		t.Errorf("double click presses = %d", len(f.conn.Clicks()))
	}
	if !reflect.DeepEqual(f.conn.Keys, []string{"keyUp:Shift"}) {
		t.Errorf("keys = %v", f.conn.Keys)
	}
}

func TestRun_WaitForExpressionTimesOut(t *testing.T) {
	f := newFixture(t)
	_, err := f.run([]script.Step{{Type: script.StepWaitForExpression, Expression: "window.never", Timeout: 10}}, nil)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestRun_WaitAfterDelays(t *testing.T) {
	f := newFixture(t)
	start := time.Now()
	if _, err := f.run([]script.Step{{Type: script.StepKeyDown, Key: "a", WaitAfter: 30}}, nil); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("waitAfter not honored")
	}
}

func TestRun_NotAttached(t *testing.T) {
	f := newFixture(t)
	rc := &RunContext{TabID: "other"}
	err := f.exec.Run(context.Background(), rc, []script.Step{{Type: script.StepClose}}, nil)
	if !errors.Is(err, session.ErrNotAttached) {
		t.Errorf("err = %v, want ErrNotAttached", err)
	}
}
