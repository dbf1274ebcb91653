package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const recorderDoc = `{
  // exported from the recorder, then hand edited
  title: "Open chat",
  targetUrl: "https://chat.example.com",
  parameters: {name: "Sarah", retries: 2},
  outputSchema: {
    description: "last message",
    fields: [{name: "last", type: "string", description: "latest text", path: ".msg:last-child"}],
  },
  steps: [
    {type: "navigate", url: "https://chat.example.com/inbox"},
    {
      type: "click",
      selectors: [["#row-1", "aria/Sarah"], "text/Sarah"],
      waitAfter: 250,
    },
    {type: "change", selectors: [["#box"]], value: "Hi {{name}}"},
    {
      type: "loop",
      loop: {items: [{id: 1}, {id: 2}], steps: [{type: "click", selectors: ["#item-{{id}}"]}]},
    },
  ],
}`

func TestDecode_JSON5(t *testing.T) {
	s, err := Decode("open-chat.json5", []byte(recorderDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.ID != "open-chat" {
		t.Errorf("id = %q, want open-chat", s.ID)
	}
	if s.TargetURL != "https://chat.example.com" || s.Parameters["name"] != "Sarah" {
		t.Errorf("header = %+v", s)
	}
	if len(s.Steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(s.Steps))
	}

	click := s.Steps[1]
	if len(click.Selectors) != 2 {
		t.Fatalf("candidates = %v", click.Selectors)
	}
	if click.Selectors[0][1] != "aria/Sarah" || len(click.Selectors[1]) != 1 || click.Selectors[1][0] != "text/Sarah" {
		t.Errorf("selectors = %v", click.Selectors)
	}
	if click.WaitAfter != 250 {
		t.Errorf("waitAfter = %d", click.WaitAfter)
	}

	loop := s.Steps[3].Loop
	if loop == nil || len(loop.Items) != 2 || loop.Steps[0].Selectors[0][0] != "#item-{{id}}" {
		t.Errorf("loop = %+v", loop)
	}
	if s.OutputSchema == nil || s.OutputSchema.Fields[0].Path != ".msg:last-child" {
		t.Errorf("outputSchema = %+v", s.OutputSchema)
	}
}

func TestDecode_YAML(t *testing.T) {
	doc := `
title: Search
targetUrl: https://example.com
parameters:
  q: golang
steps:
  - type: change
    selectors:
      - "#q"
      - [aria/Search, text/Search]
    value: "{{q}}"
  - type: keyDown
    key: Enter
`
	s, err := Decode("search.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(s.Steps) != 2 || s.Steps[1].Key != "Enter" {
		t.Fatalf("steps = %+v", s.Steps)
	}
	sel := s.Steps[0].Selectors
	if len(sel) != 2 || sel[0][0] != "#q" || sel[1][1] != "text/Search" {
		t.Errorf("selectors = %v", sel)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]string{
		"no steps":      `{title: "x", steps: []}`,
		"missing type":  `{steps: [{url: "https://x"}]}`,
		"empty loop":    `{steps: [{type: "loop", loop: {items: [1], steps: []}}]}`,
		"loop no items": `{steps: [{type: "loop", loop: {steps: [{type: "click"}]}}]}`,
		"bad selector":  `{steps: [{type: "click", selectors: [[1]]}]}`,
		"output path":   `{steps: [{type: "close"}], outputSchema: {fields: [{name: "x"}]}}`,
	}
	for name, doc := range tests {
		if _, err := Decode("x.json5", []byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDecode_UnknownTypeAccepted(t *testing.T) {
	if _, err := Decode("x.json", []byte(`{"steps":[{"type":"teleport"}]}`)); err != nil {
		t.Errorf("unknown step types fail at run time, got %v", err)
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_LoadAndCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "open-chat.json5")
	writeFile(t, path, recorderDoc)

	st, err := NewStore(dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	a, err := st.Load("Open-Chat")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := st.Load("open-chat")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second load should come from the cache")
	}

	writeFile(t, path, `{title: "Changed", steps: [{type: "close"}]}`)
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	c, err := st.Load("open-chat")
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "Changed" {
		t.Errorf("title = %q, want reloaded document", c.Title)
	}
}

func TestStore_NotFound(t *testing.T) {
	st, _ := NewStore(t.TempDir(), 0)
	if _, err := st.Load("nope"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("err = %v, want ErrScriptNotFound", err)
	}
	if _, err := st.Load("  "); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("blank id err = %v", err)
	}
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "title: B\nsteps:\n  - type: close\n")
	writeFile(t, filepath.Join(dir, "a.json"), `{"title":"A","steps":[{"type":"close"},{"type":"close"}]}`)
	writeFile(t, filepath.Join(dir, "broken.json5"), `{steps: [}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	st, _ := NewStore(dir, 8)
	list, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %+v", list)
	}
	if list[0].ID != "a" || list[0].Steps != 2 || list[1].Title != "B" {
		t.Errorf("list = %+v", list)
	}
	if list[0].Path == "" {
		t.Error("path not reported")
	}
}

func TestStore_ListMissingDir(t *testing.T) {
	st, _ := NewStore(filepath.Join(t.TempDir(), "none"), 1)
	list, err := st.List()
	if err != nil || len(list) != 0 {
		t.Errorf("List = %v, %v", list, err)
	}
}
