package browser

import "strings"

// Role sets used by outlines and by the click dispatcher's sanity warning.

// interactiveRoles are elements a script can act on directly. Outlines always
// annotate them with a selector.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"checkbox":         true,
	"radio":            true,
	"combobox":         true,
	"listbox":          true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"option":           true,
	"searchbox":        true,
	"slider":           true,
	"spinbutton":       true,
	"switch":           true,
	"tab":              true,
	"treeitem":         true,
}

// contentRoles get a selector only when they carry a name.
var contentRoles = map[string]bool{
	"heading":      true,
	"cell":         true,
	"gridcell":     true,
	"columnheader": true,
	"rowheader":    true,
	"listitem":     true,
	"article":      true,
	"region":       true,
	"main":         true,
	"navigation":   true,
}

// structuralRoles are layout containers. Compact outlines drop unnamed ones.
var structuralRoles = map[string]bool{
	"generic":      true,
	"group":        true,
	"list":         true,
	"table":        true,
	"row":          true,
	"rowgroup":     true,
	"grid":         true,
	"treegrid":     true,
	"menu":         true,
	"menubar":      true,
	"toolbar":      true,
	"tablist":      true,
	"tree":         true,
	"directory":    true,
	"document":     true,
	"application":  true,
	"presentation": true,
	"none":         true,
}

// IsInteractive returns true if the role represents an interactive element.
func IsInteractive(role string) bool {
	return interactiveRoles[role]
}

// IsContent returns true if the role represents a content element.
func IsContent(role string) bool {
	return contentRoles[role]
}

// IsStructural returns true if the role represents a structural element.
func IsStructural(role string) bool {
	return structuralRoles[role]
}

// IsActionable reports whether a click on this element is expected to do
// something on its own: anchors, buttons, and button or link roles.
func IsActionable(n NodeInfo) bool {
	switch strings.ToLower(n.Tag) {
	case "a", "button":
		return true
	}
	switch strings.ToLower(n.Role) {
	case "button", "link":
		return true
	}
	return false
}
