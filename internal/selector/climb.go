package selector

import (
	"slices"
	"strings"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// MaxClimbDepth is the number of nodes the climb examines, the start node
// included.
const MaxClimbDepth = 10

// Check is one clickable test. A node qualifies when any check passes.
type Check struct {
	Name  string
	Match func(cfg *config.ClickableConfig, n browser.NodeInfo) bool
}

// Checks run in this order at every level of the climb.
var Checks = []Check{
	{Name: "tag", Match: tagCheck},
	{Name: "role", Match: roleCheck},
	{Name: "handler", Match: handlerCheck},
	{Name: "class", Match: classCheck},
	{Name: "data", Match: dataCheck},
}

func tagCheck(cfg *config.ClickableConfig, n browser.NodeInfo) bool {
	return n.Tag != "" && slices.Contains(cfg.Tags, config.Fold(n.Tag))
}

func roleCheck(cfg *config.ClickableConfig, n browser.NodeInfo) bool {
	role := strings.TrimSpace(n.Role)
	return role != "" && slices.Contains(cfg.Roles, config.Fold(role))
}

// handlerCheck does not depend on configuration.
func handlerCheck(_ *config.ClickableConfig, n browser.NodeInfo) bool {
	return n.HasClickHandler || n.Cursor == "pointer"
}

func classCheck(cfg *config.ClickableConfig, n browser.NodeInfo) bool {
	if n.Class == "" {
		return false
	}
	return containsAny(config.Fold(n.Class), cfg.ClassKeywords)
}

func dataCheck(cfg *config.ClickableConfig, n browser.NodeInfo) bool {
	for _, v := range n.Data {
		if v != "" && containsAny(config.Fold(v), cfg.DataKeywords) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Qualify returns the name of the first check n passes.
func Qualify(cfg *config.ClickableConfig, n browser.NodeInfo) (string, bool) {
	for _, c := range Checks {
		if c.Match(cfg, n) {
			return c.Name, true
		}
	}
	return "", false
}

// DirectlyClickable reports whether n passes the tag or role check on its own.
func DirectlyClickable(cfg *config.ClickableConfig, n browser.NodeInfo) bool {
	return tagCheck(cfg, n) || roleCheck(cfg, n)
}

// Climb returns the first node of chain, nearest first, that qualifies.
// Only the first MaxClimbDepth nodes are examined; a node past them only
// serves as the parent of the last one.
//
// cursor is inherited in CSS, so a node whose cursor equals its parent's
// does not pass the handler check on its cursor.
func Climb(cfg *config.ClickableConfig, chain []*browser.Node) (*browser.Node, string, bool) {
	for i, n := range chain {
		if i >= MaxClimbDepth {
			break
		}
		info := n.NodeInfo
		if i+1 < len(chain) && info.Cursor != "" && chain[i+1].Cursor == info.Cursor {
			info.Cursor = ""
		}
		if check, ok := Qualify(cfg, info); ok {
			return n, check, true
		}
	}
	return nil, "", false
}
