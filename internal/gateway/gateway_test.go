package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

type frame struct {
	Type  string               `json:"type"`
	ID    string               `json:"id"`
	OK    bool                 `json:"ok"`
	Event string               `json:"event"`
	Error *protocol.ErrorShape `json:"error"`
}

func frames(t *testing.T, out string) map[string]frame {
	t.Helper()
	got := make(map[string]frame)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		if f.Type == protocol.FrameTypeResponse {
			got[f.ID] = f
		}
	}
	return got
}

func lines(reqs ...string) string {
	return strings.Join(reqs, "\n") + "\n"
}

func TestServeStdio(t *testing.T) {
	s := NewServer(config.ServerConfig{}, WithVersion("1.2.3"))
	var out bytes.Buffer
	s.ServeStdio(context.Background(), strings.NewReader(lines(
		`{"type":"req","id":"1","method":"status"}`,
		`{"type":"req","id":"2","method":"nope"}`,
		`not json`,
		``,
		`{"type":"event","event":"x"}`,
	)), &out)

	got := frames(t, out.String())
	if !got["1"].OK {
		t.Errorf("status = %+v", got["1"])
	}
	if f := got["2"]; f.OK || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("unknown method = %+v", f)
	}
	if f, ok := got[""]; !ok || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("invalid frames = %+v", f)
	}
	if s.ClientCount() != 0 {
		t.Errorf("clients = %d after EOF", s.ClientCount())
	}
}

func TestConnectToken(t *testing.T) {
	s := NewServer(config.ServerConfig{Token: "secret"})
	var out bytes.Buffer
	in := strings.NewReader(lines(
		`{"type":"req","id":"early","method":"status"}`,
		`{"type":"req","id":"bad","method":"connect","params":{"token":"guess"}}`,
		`{"type":"req","id":"good","method":"connect","params":{"token":"secret"}}`,
		`{"type":"req","id":"after","method":"status"}`,
	))
	s.serve(context.Background(), newClient(newLineTransport(in, &out), s, false))

	got := frames(t, out.String())
	for _, id := range []string{"early", "bad"} {
		if f := got[id]; f.OK || f.Error.Code != protocol.ErrUnauthorized {
			t.Errorf("%s = %+v, want UNAUTHORIZED", id, f)
		}
	}
	for _, id := range []string{"good", "after"} {
		if !got[id].OK {
			t.Errorf("%s = %+v, want ok", id, got[id])
		}
	}
}

func TestExecuteScriptRateLimited(t *testing.T) {
	s := NewServer(config.ServerConfig{RPM: 1, Burst: 1})
	s.Router().Register(protocol.MethodExecuteScript, func(ctx context.Context, c *Client, req *protocol.RequestFrame) {
		c.SendResponse(protocol.NewOKResponse(req.ID, nil))
	})
	var out bytes.Buffer
	s.ServeStdio(context.Background(), strings.NewReader(lines(
		`{"type":"req","id":"a","method":"executeScript"}`,
		`{"type":"req","id":"b","method":"executeScript"}`,
		`{"type":"req","id":"c","method":"status"}`,
	)), &out)

	got := frames(t, out.String())
	oks, limited := 0, 0
	for _, id := range []string{"a", "b"} {
		switch {
		case got[id].OK:
			oks++
		case got[id].Error != nil && got[id].Error.Code == protocol.ErrRateLimited:
			limited++
		}
	}
	if oks != 1 || limited != 1 {
		t.Errorf("ok = %d, limited = %d; want 1 and 1", oks, limited)
	}
	if !got["c"].OK {
		t.Error("status was rate limited")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	if !rl.Allow("a") || rl.Allow("a") {
		t.Error("burst of 1 not enforced")
	}
	if !rl.Allow("b") {
		t.Error("keys share a bucket")
	}
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Error("Forget kept the bucket")
	}

	off := NewRateLimiter(0, 0)
	for range 10 {
		if !off.Allow("a") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if off.Enabled() {
		t.Error("Enabled() = true for rpm 0")
	}
}

func TestBroadcastSequencesEvents(t *testing.T) {
	s := NewServer(config.ServerConfig{})
	s.Router().Register("ping", func(ctx context.Context, c *Client, req *protocol.RequestFrame) {
		s.Broadcast("hello", map[string]int{"n": 1})
		c.Emit("mine", nil)
		c.SendResponse(protocol.NewOKResponse(req.ID, nil))
	})
	var out bytes.Buffer
	s.ServeStdio(context.Background(), strings.NewReader(lines(`{"type":"req","id":"1","method":"ping"}`)), &out)

	var seqs []int64
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev protocol.EventFrame
		json.Unmarshal([]byte(line), &ev)
		if ev.Type == protocol.FrameTypeEvent {
			seqs = append(seqs, ev.Seq)
		}
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("event seqs = %v, want [1 2]", seqs)
	}
}
