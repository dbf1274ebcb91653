package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	bt "github.com/nextlevelbuilder/tabpilot/pkg/browser/browsertest"
)

// chatPage is a sidebar of chat rows; each row is a div with a data-testid
// that wraps spans of text.
func chatPage() (*bt.Page, map[string]*bt.Element) {
	els := map[string]*bt.Element{}
	name := bt.El("span").With(func(e *bt.Element) { e.Own = "Sarah Connor" })
	strong := bt.El("strong", bt.El("span").With(func(e *bt.Element) { e.Own = "Docs" }))
	h3 := bt.El("h3", strong)
	link := bt.El("a", h3).With(func(e *bt.Element) { e.Box = browser.Box{X: 10, Y: 10, Width: 100, Height: 20} })
	row := bt.El("div", bt.El("div", name)).With(func(e *bt.Element) {
		e.Data = map[string]string{"data-testid": "chat-row"}
	})
	send := bt.El("button").With(func(e *bt.Element) { e.Label = "Send" })
	optionText := bt.El("span").With(func(e *bt.Element) { e.Label = "Dark mode" })
	option := bt.El("div", optionText).With(func(e *bt.Element) { e.Role = "option" })
	plain := bt.El("p").With(func(e *bt.Element) { e.Own = "Nothing to click"; e.Label = "plain" })

	root := bt.El("body", link, row, send, option, plain)
	els["name"], els["link"], els["row"], els["send"], els["option"], els["plain"] = name, link, row, send, option, plain
	return &bt.Page{Root: root, CSS: map[string]*bt.Element{"#send": send}}, els
}

func newResolver(timeout time.Duration) *Resolver {
	return NewResolver(config.StaticClickable(config.DefaultClickable()),
		WithTimeout(timeout), WithPollInterval(time.Millisecond))
}

func TestResolve_Structural(t *testing.T) {
	page, els := chatPage()
	conn := bt.NewConn("1", page)

	m, err := newResolver(time.Second).Resolve(context.Background(), conn, [][]string{{"#send"}}, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bt.Handle(m.Node) != els["send"] || m.Kind != Structural || m.Check != "" {
		t.Errorf("match = %+v", m)
	}
}

func TestResolve_TextClimbsToAnchor(t *testing.T) {
	page, els := chatPage()
	conn := bt.NewConn("1", page)

	m, err := newResolver(time.Second).Resolve(context.Background(), conn, [][]string{{"text/Docs"}}, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bt.Handle(m.Node) != els["link"] {
		t.Errorf("resolved %s, want the anchor", bt.Handle(m.Node).Name)
	}
	if m.Check != "tag" {
		t.Errorf("check = %q, want tag", m.Check)
	}
}

func TestResolve_TextClimbsByDataKeyword(t *testing.T) {
	page, els := chatPage()
	conn := bt.NewConn("1", page)

	m, err := newResolver(time.Second).Resolve(context.Background(), conn, [][]string{{"text/Sarah"}}, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bt.Handle(m.Node) != els["row"] || m.Check != "data" {
		t.Errorf("match = %s via %q, want row via data", bt.Handle(m.Node).Name, m.Check)
	}
}

func TestResolve_LabelDirectAndClimb(t *testing.T) {
	page, els := chatPage()
	conn := bt.NewConn("1", page)
	r := newResolver(time.Second)

	m, err := r.Resolve(context.Background(), conn, [][]string{{"aria/Send"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bt.Handle(m.Node) != els["send"] || m.Check != "" {
		t.Errorf("directly clickable label should match as-is, got %+v", m)
	}

	m, err = r.Resolve(context.Background(), conn, [][]string{{"aria/Dark mode"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bt.Handle(m.Node) != els["option"] || m.Check != "role" {
		t.Errorf("label should climb to the option, got %s via %q", bt.Handle(m.Node).Name, m.Check)
	}
}

func TestResolve_FallsThroughToNextCandidate(t *testing.T) {
	page, els := chatPage()
	conn := bt.NewConn("1", page)

	candidates := [][]string{
		{"#does-not-exist", "aria/Nobody"},
		{"text/Nothing to click"}, // no clickable ancestor
		{"text/Sarah"},
	}
	m, err := newResolver(50*time.Millisecond).Resolve(context.Background(), conn, candidates, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bt.Handle(m.Node) != els["row"] || m.Selector != "text/Sarah" {
		t.Errorf("match = %+v", m)
	}
}

func TestResolve_ElementNotFound(t *testing.T) {
	page, _ := chatPage()
	conn := bt.NewConn("1", page)
	candidates := [][]string{{"#nope"}, {"text/Nobody", "aria/plain"}}

	start := time.Now()
	_, err := newResolver(30*time.Millisecond).Resolve(context.Background(), conn, candidates, 0)
	var nf *ElementNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ElementNotFoundError", err)
	}
	if len(nf.Candidates) != 2 || nf.Candidates[1][1] != "aria/plain" {
		t.Errorf("candidates = %v", nf.Candidates)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("resolution gave up before the timeout")
	}
}

func TestResolve_PollsUntilRendered(t *testing.T) {
	page, els := chatPage()
	els["send"].AppearAfter = 3
	conn := bt.NewConn("1", page)

	m, err := newResolver(time.Second).Resolve(context.Background(), conn, [][]string{{"#send"}}, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bt.Handle(m.Node) != els["send"] {
		t.Error("wrong element")
	}
}

func TestResolve_StepTimeoutOverride(t *testing.T) {
	page, _ := chatPage()
	conn := bt.NewConn("1", page)

	_, err := newResolver(time.Hour).Resolve(context.Background(), conn, [][]string{{"#nope"}}, 10*time.Millisecond)
	var nf *ElementNotFoundError
	if !errors.As(err, &nf) || nf.Timeout != 10*time.Millisecond {
		t.Errorf("err = %v", err)
	}
}

func TestResolveOnce(t *testing.T) {
	page, els := chatPage()
	els["send"].AppearAfter = 1
	conn := bt.NewConn("1", page)
	r := newResolver(time.Second)

	if _, err := r.ResolveOnce(context.Background(), conn, [][]string{{"#send"}}); !errors.Is(err, browser.ErrNoMatch) {
		t.Errorf("first attempt err = %v, want ErrNoMatch", err)
	}
	if _, err := r.ResolveOnce(context.Background(), conn, [][]string{{"#send"}}); err != nil {
		t.Errorf("second attempt err = %v", err)
	}
}

func TestResolveEditable_LabelIsNotClimbed(t *testing.T) {
	input := bt.El("input").With(func(e *bt.Element) { e.Label = "Search" })
	form := bt.El("form", input).With(func(e *bt.Element) { e.Role = "button" })
	conn := bt.NewConn("1", &bt.Page{Root: bt.El("body", form)})
	r := newResolver(time.Second)

	m, err := r.ResolveEditable(context.Background(), conn, [][]string{{"aria/Search"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bt.Handle(m.Node) != input {
		t.Errorf("resolved %s, want the input", bt.Handle(m.Node).Name)
	}

	m, err = r.Resolve(context.Background(), conn, [][]string{{"aria/Search"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bt.Handle(m.Node) != form {
		t.Errorf("pointer resolution should climb, got %s", bt.Handle(m.Node).Name)
	}
}
