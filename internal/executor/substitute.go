package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/tabpilot/internal/script"
)

// A name is any text without braces; surrounding space is trimmed.
var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Substitute replaces every {{name}} in s whose name resolves in vars.
// Dotted names walk nested maps and lists. Placeholders that do not resolve
// are left verbatim and returned in missing.
func Substitute(s string, vars map[string]any) (out string, missing []string) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	out = placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.TrimSpace(placeholderRe.FindStringSubmatch(m)[1])
		if name == "" {
			return m
		}
		v, ok := lookup(vars, name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return format(v)
	})
	return out, missing
}

func lookup(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	parts := strings.Split(name, ".")
	var cur any = vars
	for _, p := range parts {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[p]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// substituteStep returns a copy of st with placeholders replaced in every
// string field it dispatches with. Condition and loop source are expressions
// that read variables directly, and loop sub-steps are substituted when they
// run.
func substituteStep(st script.Step, vars map[string]any, path string) (script.Step, []SubstitutionWarning) {
	var warns []SubstitutionWarning
	sub := func(field string, s *string) {
		out, missing := Substitute(*s, vars)
		*s = out
		for _, name := range missing {
			warns = append(warns, SubstitutionWarning{Step: path, Field: field, Placeholder: name})
		}
	}

	sub("value", &st.Value)
	sub("url", &st.URL)
	sub("key", &st.Key)
	sub("button", &st.Button)
	sub("expression", &st.Expression)

	if len(st.Selectors) > 0 {
		sel := make(script.Selectors, len(st.Selectors))
		for i, list := range st.Selectors {
			sel[i] = make([]string, len(list))
			for j, s := range list {
				sel[i][j] = s
				sub(fmt.Sprintf("selectors[%d][%d]", i, j), &sel[i][j])
			}
		}
		st.Selectors = sel
	}
	return st, warns
}
