package methods

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/cron"
	"github.com/nextlevelbuilder/tabpilot/internal/dispatch"
	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/executor"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/internal/history"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/internal/tabs"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	bt "github.com/nextlevelbuilder/tabpilot/pkg/browser/browsertest"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

type scripts map[string]*script.Script

func (s scripts) Load(id string) (*script.Script, error) {
	if sc, ok := s[id]; ok {
		return sc, nil
	}
	return nil, script.ErrScriptNotFound
}

func (s scripts) List() ([]script.Info, error) {
	var out []script.Info
	for id, sc := range s {
		out = append(out, script.Info{ID: id, Title: sc.Title, Steps: len(sc.Steps)})
	}
	return out, nil
}

type frame struct {
	Type    string               `json:"type"`
	ID      string               `json:"id"`
	OK      bool                 `json:"ok"`
	Event   string               `json:"event"`
	Payload json.RawMessage      `json:"payload"`
	Error   *protocol.ErrorShape `json:"error"`
}

type rig struct {
	driver *bt.Driver
	server *gateway.Server
	engine *engine.Engine
}

func newRig(t *testing.T) *rig {
	t.Helper()
	return buildRig(t, nil)
}

// newRigWithHistory records runs to a temporary SQLite history.
func newRigWithHistory(t *testing.T) *rig {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return buildRig(t, store)
}

func buildRig(t *testing.T, store *history.Store) *rig {
	t.Helper()
	button := bt.El("button").With(func(e *bt.Element) {
		e.Own = "Go"
		e.Box = browser.Box{X: 0, Y: 0, Width: 10, Height: 10}
	})
	d := bt.NewDriver(browser.TabInfo{TargetID: "101", URL: "https://example.com/app"})
	d.SetPage("101", &bt.Page{URL: "https://example.com/app", Root: bt.El("body", button)})

	sc := scripts{"go": {
		ID:        "go",
		Title:     "Press go",
		TargetURL: "example.com",
		Steps:     []script.Step{{Type: script.StepClick, Selectors: script.Selectors{{"text/Go"}}}},
	}}
	res := selector.NewResolver(config.StaticClickable(config.DefaultClickable()),
		selector.WithTimeout(20*time.Millisecond), selector.WithPollInterval(time.Millisecond))
	sessions := session.NewManager(d)
	exec := executor.New(sessions, res, dispatch.New())
	var (
		opts []engine.Option
		hist HistoryLister
	)
	if store != nil {
		opts = append(opts, engine.WithHistory(store))
		hist = store
	}
	eng := engine.New(d, sc, tabs.NewResolver(d), sessions, res, exec, opts...)

	srv := gateway.NewServer(config.ServerConfig{})
	NewRunMethods(eng).Register(srv.Router())
	NewSessionsMethods(eng, srv).Register(srv.Router())
	NewInventoryMethods(eng, sc, hist).Register(srv.Router())
	return &rig{driver: d, server: srv, engine: eng}
}

func (r *rig) call(t *testing.T, reqs ...string) (map[string]frame, []frame) {
	t.Helper()
	var out bytes.Buffer
	r.server.ServeStdio(context.Background(), strings.NewReader(strings.Join(reqs, "\n")+"\n"), &out)

	responses := make(map[string]frame)
	var events []frame
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		if f.Type == protocol.FrameTypeEvent {
			events = append(events, f)
		} else {
			responses[f.ID] = f
		}
	}
	return responses, events
}

func TestExecuteScriptOverStdio(t *testing.T) {
	r := newRig(t)
	got, events := r.call(t,
		`{"type":"req","id":"run","method":"executeScript","params":{"scriptId":"go"}}`,
		`{"type":"req","id":"missing","method":"executeScript","params":{"scriptId":"nope"}}`,
		`{"type":"req","id":"empty","method":"executeScript","params":{}}`,
	)

	f := got["run"]
	if !f.OK {
		t.Fatalf("run = %+v", f)
	}
	var res engine.Result
	if err := json.Unmarshal(f.Payload, &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.TabID != "101" {
		t.Errorf("result = %+v", res)
	}
	if len(r.driver.ConnFor("101").Clicks()) != 1 {
		t.Error("button not clicked")
	}

	if f := got["missing"]; f.OK || f.Error.Code != protocol.ErrNotFound {
		t.Errorf("missing = %+v", f)
	}
	if f := got["empty"]; f.OK || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("empty = %+v", f)
	}

	var names []string
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	if len(names) == 0 || names[0] != protocol.EventRunStarted || names[len(names)-1] != protocol.EventRunCompleted {
		t.Errorf("events = %v", names)
	}
}

func TestFailedRunCarriesResult(t *testing.T) {
	r := newRig(t)
	r.driver.SetPage("101", &bt.Page{URL: "https://example.com/app", Root: bt.El("body")})

	got, _ := r.call(t, `{"type":"req","id":"run","method":"executeScript","params":{"scriptId":"go"}}`)
	f := got["run"]
	if f.OK || f.Error.Code != protocol.ErrElementNotFound {
		t.Fatalf("run = %+v", f)
	}
	raw, _ := json.Marshal(f.Error.Details)
	var res engine.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.Failure == nil || res.Failure.StepIndex != 0 || res.Failure.StepType != script.StepClick {
		t.Errorf("failure = %+v", res.Failure)
	}
}

func TestSessionLifecycle(t *testing.T) {
	r := newRig(t)

	got, events := r.call(t, `{"type":"req","id":"a","method":"attachDebugger","params":{"tab":"example.com"}}`)
	var s session.Session
	if err := json.Unmarshal(got["a"].Payload, &s); err != nil || s.TabID != "101" {
		t.Fatalf("attach = %+v (%v)", got["a"], err)
	}
	if len(events) != 1 || events[0].Event != protocol.EventSessionAttached {
		t.Errorf("events = %+v", events)
	}

	got, _ = r.call(t,
		`{"type":"req","id":"l","method":"sessions.list"}`,
		`{"type":"req","id":"bad","method":"detachDebugger","params":{}}`,
	)
	if !strings.Contains(string(got["l"].Payload), `"tabId":"101"`) {
		t.Errorf("sessions = %s", got["l"].Payload)
	}
	if got["bad"].OK {
		t.Error("detach without tabId accepted")
	}

	got, _ = r.call(t, `{"type":"req","id":"d","method":"detachDebugger","params":{"tabId":"101"}}`)
	if !got["d"].OK || r.driver.Detaches("101") != 1 {
		t.Errorf("detach = %+v, calls = %d", got["d"], r.driver.Detaches("101"))
	}
}

func TestInventory(t *testing.T) {
	r := newRig(t)
	got, _ := r.call(t,
		`{"type":"req","id":"tabs","method":"tabs.list"}`,
		`{"type":"req","id":"scripts","method":"scripts.list"}`,
		`{"type":"req","id":"history","method":"history.list"}`,
		`{"type":"req","id":"snap","method":"snapshot","params":{"tab":"101"}}`,
		`{"type":"req","id":"nosnap","method":"snapshot","params":{}}`,
	)

	if !strings.Contains(string(got["tabs"].Payload), `"targetId":"101"`) {
		t.Errorf("tabs = %s", got["tabs"].Payload)
	}
	if !strings.Contains(string(got["scripts"].Payload), `"id":"go"`) {
		t.Errorf("scripts = %s", got["scripts"].Payload)
	}
	if f := got["history"]; f.OK || f.Error.Code != protocol.ErrUnavailable {
		t.Errorf("history = %+v", f)
	}
	var out browser.Outline
	if err := json.Unmarshal(got["snap"].Payload, &out); err != nil || out.TargetID != "101" {
		t.Errorf("snapshot = %s (%v)", got["snap"].Payload, err)
	}
	if got["nosnap"].OK {
		t.Error("snapshot without tab accepted")
	}
}

func TestSchedules(t *testing.T) {
	r := newRig(t)
	svc, err := cron.NewService([]cron.Job{{
		ID: "press", ScriptID: "go", Enabled: true,
		Schedule: cron.Schedule{Kind: cron.KindEvery, EveryMS: time.Hour.Milliseconds()},
	}}, ScheduledRunner(r.engine, r.server))
	if err != nil {
		t.Fatal(err)
	}
	NewSchedulesMethods(svc).Register(r.server.Router())

	got, events := r.call(t,
		`{"type":"req","id":"run","method":"schedules.run","params":{"id":"press"}}`,
		`{"type":"req","id":"unknown","method":"schedules.run","params":{"id":"nope"}}`,
		`{"type":"req","id":"noid","method":"schedules.run","params":{}}`,
	)
	var entry cron.RunLogEntry
	if err := json.Unmarshal(got["run"].Payload, &entry); err != nil || entry.Status != "ok" || entry.RunID == "" {
		t.Fatalf("run = %s (%v)", got["run"].Payload, err)
	}
	if f := got["unknown"]; f.OK || f.Error.Code != protocol.ErrNotFound {
		t.Errorf("unknown = %+v", f)
	}
	if f := got["noid"]; f.OK || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("noid = %+v", f)
	}
	var finished bool
	for _, ev := range events {
		if ev.Event == protocol.EventScheduleFinished && strings.Contains(string(ev.Payload), `"ok":true`) {
			finished = true
		}
	}
	if !finished {
		t.Errorf("no %s event in %+v", protocol.EventScheduleFinished, events)
	}

	got, _ = r.call(t,
		`{"type":"req","id":"list","method":"schedules.list"}`,
		`{"type":"req","id":"log","method":"schedules.log","params":{"id":"press"}}`,
	)
	if !strings.Contains(string(got["list"].Payload), `"lastStatus":"ok"`) {
		t.Errorf("list = %s", got["list"].Payload)
	}
	if !strings.Contains(string(got["log"].Payload), entry.RunID) {
		t.Errorf("log = %s", got["log"].Payload)
	}
}

func TestRunsAreRecordedToHistory(t *testing.T) {
	r := newRigWithHistory(t)
	got, _ := r.call(t, `{"type":"req","id":"run","method":"executeScript","params":{"scriptId":"go"}}`)
	var res engine.Result
	if err := json.Unmarshal(got["run"].Payload, &res); err != nil || !res.OK {
		t.Fatalf("run = %+v (%v)", got["run"], err)
	}

	got, _ = r.call(t, `{"type":"req","id":"h","method":"history.list","params":{"scriptId":"go"}}`)
	if !got["h"].OK {
		t.Fatalf("history = %+v", got["h"])
	}
	var list struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.Unmarshal(got["h"].Payload, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != res.RunID || list.Runs[0].Status != history.StatusOK || list.Runs[0].TabID != "101" {
		t.Errorf("runs = %+v", list.Runs)
	}
}
