package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// axValue extracts a string value from an AXValue.
func axValue(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	if s := v.Value.Str(); s != "" {
		return s
	}
	// numbers and booleans come back as raw JSON
	raw := v.Value.String()
	if raw == "" || raw == "null" || raw == `""` {
		return ""
	}
	return raw
}

type axEntry struct {
	node  *proto.AccessibilityAXNode
	depth int
}

// flattenAX walks the flat protocol node list depth first from its root,
// stopping after limit nodes.
func flattenAX(nodes []*proto.AccessibilityAXNode, limit int) []axEntry {
	if len(nodes) == 0 {
		return nil
	}

	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	referenced := make(map[proto.AccessibilityAXNodeID]bool)
	for _, n := range nodes {
		if n.NodeID != "" {
			byID[n.NodeID] = n
		}
		for _, cid := range n.ChildIDs {
			referenced[cid] = true
		}
	}

	var root *proto.AccessibilityAXNode
	for _, n := range nodes {
		if n.NodeID != "" && !referenced[n.NodeID] {
			root = n
			break
		}
	}
	if root == nil {
		root = nodes[0]
	}
	if root.NodeID == "" {
		return nil
	}

	var out []axEntry
	stack := []axEntry{{node: root}}
	for len(stack) > 0 && len(out) < limit {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, e)

		kids := e.node.ChildIDs
		for i := len(kids) - 1; i >= 0; i-- {
			if child, ok := byID[kids[i]]; ok {
				stack = append(stack, axEntry{node: child, depth: e.depth + 1})
			}
		}
	}
	return out
}

// BuildOutline renders accessibility nodes as an indented outline. Every
// interactive node, and every named content node, is annotated with the
// aria/ selector that reaches it. Names shared by several nodes are flagged
// since an aria/ selector only resolves to the first of them.
func BuildOutline(nodes []*proto.AccessibilityAXNode, opts OutlineOptions) *Outline {
	if opts.MaxChars == 0 {
		opts.MaxChars = 8000
	}
	if opts.Limit == 0 {
		opts.Limit = 500
	}

	entries := flattenAX(nodes, opts.Limit)

	type line struct {
		text     string
		selector string
	}
	var lines []line
	seen := make(map[string]int)
	interactive := 0

	for _, e := range entries {
		role := strings.ToLower(axValue(e.node.Role))
		name := axValue(e.node.Name)
		value := axValue(e.node.Value)

		if (role == "" || role == "none" || role == "unknown") && name == "" {
			continue
		}
		if role == "statictext" || role == "inlinetextbox" {
			continue
		}
		if opts.MaxDepth > 0 && e.depth > opts.MaxDepth {
			continue
		}

		isInteractive := IsInteractive(role)
		if opts.Interactive && !isInteractive {
			continue
		}
		if opts.Compact && IsStructural(role) && name == "" {
			continue
		}

		text := strings.Repeat("  ", e.depth) + "- " + role
		if name != "" {
			text += fmt.Sprintf(" %q", name)
		}

		var sel string
		if name != "" && (isInteractive || IsContent(role)) {
			sel = "aria/" + name
			seen[sel]++
			text += " → " + sel
		}
		if isInteractive {
			interactive++
		}
		if value != "" {
			text += fmt.Sprintf(": %q", value)
		}
		lines = append(lines, line{text: text, selector: sel})
	}

	out := &Outline{Selectors: []string{}}
	if len(lines) == 0 {
		out.Text = "(empty page)"
		out.Stats = OutlineStats{Lines: 1, Chars: len(out.Text)}
		return out
	}

	var b strings.Builder
	ambiguous := 0
	listed := make(map[string]bool)
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.text)
		if l.selector == "" {
			continue
		}
		if seen[l.selector] > 1 {
			b.WriteString(" [ambiguous]")
		}
		if !listed[l.selector] {
			listed[l.selector] = true
			out.Selectors = append(out.Selectors, l.selector)
			if seen[l.selector] > 1 {
				ambiguous++
			}
		}
	}

	text := b.String()
	if opts.Compact {
		text = compactOutline(text)
	}
	if len(text) > opts.MaxChars {
		text = text[:opts.MaxChars] + "\n[...TRUNCATED]"
		out.Truncated = true
	}

	out.Text = text
	out.Stats = OutlineStats{
		Lines:       len(lines),
		Chars:       len(text),
		Interactive: interactive,
		Ambiguous:   ambiguous,
	}
	return out
}

// compactOutline drops lines that neither carry a selector nor have a
// descendant that does.
func compactOutline(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for i, l := range lines {
		if strings.Contains(l, "→ aria/") {
			kept = append(kept, l)
			continue
		}
		depth := indentOf(l)
		for j := i + 1; j < len(lines) && indentOf(lines[j]) > depth; j++ {
			if strings.Contains(lines[j], "→ aria/") {
				kept = append(kept, l)
				break
			}
		}
	}
	return strings.Join(kept, "\n")
}

// indentOf returns the number of two-space indents before a line.
func indentOf(line string) int {
	return (len(line) - len(strings.TrimLeft(line, " "))) / 2
}
