package selector

import (
	"testing"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

func n(tag string, mod ...func(*browser.NodeInfo)) *browser.Node {
	info := browser.NodeInfo{Tag: tag}
	for _, m := range mod {
		m(&info)
	}
	return &browser.Node{NodeInfo: info}
}

func role(r string) func(*browser.NodeInfo)  { return func(i *browser.NodeInfo) { i.Role = r } }
func class(c string) func(*browser.NodeInfo) { return func(i *browser.NodeInfo) { i.Class = c } }
func cursor(c string) func(*browser.NodeInfo) {
	return func(i *browser.NodeInfo) { i.Cursor = c }
}
func data(k, v string) func(*browser.NodeInfo) {
	return func(i *browser.NodeInfo) {
		if i.Data == nil {
			i.Data = map[string]string{}
		}
		i.Data[k] = v
	}
}

func TestClimb_TagShortCircuits(t *testing.T) {
	strong, h3, a := n("strong"), n("h3"), n("a")
	got, check, ok := Climb(config.DefaultClickable(), []*browser.Node{strong, h3, a, n("div", role("button"))})
	if !ok || got != a {
		t.Fatalf("climb = %v, %v; want the a node", got, ok)
	}
	if check != "tag" {
		t.Errorf("check = %q, want tag", check)
	}
}

func TestClimb_InheritedCursorDoesNotQualify(t *testing.T) {
	// a[href] gives its subtree a pointer cursor
	strong, h3, a := n("strong", cursor("pointer")), n("h3", cursor("pointer")), n("a", cursor("pointer"))
	got, check, ok := Climb(config.DefaultClickable(), []*browser.Node{strong, h3, a, n("div", cursor("auto"))})
	if !ok || got != a || check != "tag" {
		t.Fatalf("climb = %v, %q, %v; want the a node by tag", got, check, ok)
	}

	span, card := n("span", cursor("pointer")), n("div", cursor("pointer"))
	got, check, ok = Climb(config.DefaultClickable(), []*browser.Node{span, card, n("body", cursor("auto"))})
	if !ok || got != card || check != "handler" {
		t.Errorf("climb = %v, %q, %v; want the div that sets the cursor", got, check, ok)
	}
}

func TestClimb_RoleAloneQualifies(t *testing.T) {
	div := n("div", role("button"))
	got, check, ok := Climb(config.DefaultClickable(), []*browser.Node{n("span"), div})
	if !ok || got != div || check != "role" {
		t.Errorf("climb = %v, %q, %v", got, check, ok)
	}
}

func TestClimb_CheckOrderWithinLevel(t *testing.T) {
	cfg := config.DefaultClickable()
	tests := []struct {
		name string
		node *browser.Node
		want string
	}{
		{"tag before class", n("button", class("action")), "tag"},
		{"role before handler", n("div", role("Option"), cursor("pointer")), "role"},
		{"handler before class", n("div", cursor("pointer"), class("btn-action")), "handler"},
		{"class before data", n("li", class("Quick-CLICK"), data("data-kind", "item")), "class"},
		{"data last", n("div", data("data-testid", "Chat-Row")), "data"},
	}
	for _, tt := range tests {
		got, ok := Qualify(cfg, tt.node.NodeInfo)
		if !ok || got != tt.want {
			t.Errorf("%s: check = %q, %v; want %q", tt.name, got, ok, tt.want)
		}
	}
}

func TestClimb_HandlerIgnoresConfig(t *testing.T) {
	empty := &config.ClickableConfig{}
	div := n("div")
	div.HasClickHandler = true
	if _, ok := Qualify(empty, div.NodeInfo); !ok {
		t.Error("click handler should qualify with an empty config")
	}
	if _, ok := Qualify(empty, n("a").NodeInfo); ok {
		t.Error("tag should not qualify with an empty config")
	}
}

func TestClimb_DepthBound(t *testing.T) {
	cfg := config.DefaultClickable()

	chain := make([]*browser.Node, 0, 12)
	for i := 0; i < 10; i++ {
		chain = append(chain, n("div"))
	}
	chain = append(chain, n("a"))
	if _, _, ok := Climb(cfg, chain); ok {
		t.Error("a node at level 11 should be out of reach")
	}

	chain = append(chain[:9], n("a"))
	got, _, ok := Climb(cfg, chain)
	if !ok || got != chain[9] {
		t.Error("a node at level 10 should be found")
	}
}

func TestClimb_NoQualifier(t *testing.T) {
	if _, _, ok := Climb(config.DefaultClickable(), []*browser.Node{n("span"), n("p"), n("section")}); ok {
		t.Error("expected climb failure")
	}
}

func TestClimb_CustomConfig(t *testing.T) {
	cfg := &config.ClickableConfig{Tags: []string{"summary"}}
	s := n("SUMMARY")
	got, check, ok := Climb(cfg, []*browser.Node{n("span"), s, n("a")})
	if !ok || got != s || check != "tag" {
		t.Errorf("climb = %v, %q, %v", got, check, ok)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		kind  Kind
		value string
	}{
		{"#send", Structural, "#send"},
		{"aria/Send message", Label, "Send message"},
		{"text/Sarah", Text, "Sarah"},
		{"xpath///div[@id='x']", XPath, "//div[@id='x']"},
		{"pierce/#inner", Pierce, "#inner"},
		{"div > a.aria/x", Structural, "div > a.aria/x"},
	}
	for _, tt := range tests {
		st := Parse(tt.in)
		if st.Kind != tt.kind || st.Value != tt.value || st.Raw != tt.in {
			t.Errorf("Parse(%q) = %+v", tt.in, st)
		}
	}
}
