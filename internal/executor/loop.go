package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/nextlevelbuilder/tabpilot/internal/script"
)

// LoopContext is the current iteration of an enclosing loop.
type LoopContext struct {
	Item   any
	Index  int
	Parent *LoopContext
}

func (lc *LoopContext) export() map[string]any {
	if lc == nil {
		return map[string]any{}
	}
	return map[string]any{"item": lc.Item, "index": lc.Index}
}

// variables merges params with the loop chain. Inner loops shadow outer
// ones, and loops shadow params. Object items expose their fields directly.
func variables(params map[string]any, lc *LoopContext) map[string]any {
	out := make(map[string]any, len(params)+4)
	for k, v := range params {
		out[k] = v
	}
	var chain []*LoopContext
	for c := lc; c != nil; c = c.Parent {
		chain = append(chain, c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		if m, ok := c.Item.(map[string]any); ok {
			for k, v := range m {
				out[k] = v
			}
		}
		out["item"] = c.Item
		out["index"] = c.Index
	}
	return out
}

// loopItems evaluates a loop's data source. A single array result is
// iterated; otherwise every emitted value is one item.
func loopItems(ctx context.Context, l *script.Loop, params map[string]any, lc *LoopContext) ([]any, error) {
	if l.Items != nil {
		return l.Items, nil
	}

	q, err := gojq.Parse(l.Source)
	if err != nil {
		return nil, fmt.Errorf("loop source %q: %w", l.Source, err)
	}
	input, err := normalize(map[string]any{"params": params, "loop": lc.export()})
	if err != nil {
		return nil, fmt.Errorf("loop input: %w", err)
	}

	var out []any
	iter := q.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if halt, ok := err.(*gojq.HaltError); ok && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("loop source %q: %w", l.Source, err)
		}
		out = append(out, v)
	}

	if len(out) == 1 {
		switch v := out[0].(type) {
		case []any:
			return v, nil
		case nil:
			return nil, nil
		}
	}
	return out, nil
}

// normalize converts v to the plain JSON value types gojq accepts.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
