package config

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	validIDRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,127}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_.-]+`)
	leadingDash  = regexp.MustCompile(`^[-.]+`)
	trailingDash = regexp.MustCompile(`[-.]+$`)
)

// NormalizeScriptID converts a user-provided name into a script id:
//   - Lowercase, max 128 chars
//   - Only [a-z0-9_.-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing dashes and dots stripped
//
// An empty result stays empty; callers treat it as "not found".
func NormalizeScriptID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" || validIDRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")
	if len(result) > 128 {
		result = result[:128]
	}
	return result
}

// Fold case-folds s for caseless comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// NormalizeList trims, case-folds and deduplicates values, keeping the first
// occurrence order. Empty entries are dropped.
func NormalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	fold := cases.Fold()
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = fold.String(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma-separated string. Whitespace around entries is
// removed by NormalizeList.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
