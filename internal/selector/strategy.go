package selector

import "strings"

// Kind is the lookup strategy a selector string asks for.
type Kind int

const (
	// Structural is a CSS selector matched directly against the document.
	Structural Kind = iota
	// Pierce is a CSS selector matched through open shadow roots.
	Pierce
	// XPath is an XPath expression matched directly.
	XPath
	// Text is a case-sensitive substring of a text node; the match climbs to
	// a clickable ancestor.
	Text
	// Label is an accessible name; the match climbs unless it is directly
	// clickable.
	Label
)

func (k Kind) String() string {
	switch k {
	case Pierce:
		return "pierce"
	case XPath:
		return "xpath"
	case Text:
		return "text"
	case Label:
		return "aria"
	}
	return "css"
}

// Strategy is a parsed selector string.
type Strategy struct {
	Kind  Kind
	Value string
	Raw   string
}

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{"aria/", Label},
	{"text/", Text},
	{"xpath/", XPath},
	{"pierce/", Pierce},
}

// Parse maps a selector string to its strategy. Unprefixed strings are CSS.
func Parse(s string) Strategy {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p.prefix) {
			return Strategy{Kind: p.kind, Value: strings.TrimPrefix(s, p.prefix), Raw: s}
		}
	}
	return Strategy{Kind: Structural, Value: s, Raw: s}
}
