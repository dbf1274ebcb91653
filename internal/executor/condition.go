package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// evalCondition evaluates a CEL condition against params, the innermost loop
// iteration (item and index) and the page. loop is reserved in CEL, so the
// iteration is exposed as top-level variables; index is -1 outside a loop.
// exists() and text() make a single resolution attempt.
func (x *Executor) evalCondition(ctx context.Context, conn browser.Conn, expr string, params map[string]any, lc *LoopContext) (bool, error) {
	fail := func(err error) (bool, error) {
		return false, &ConditionEvaluationError{Expr: expr, Err: err}
	}

	env, err := cel.NewEnv(
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("item", cel.DynType),
		cel.Variable("index", cel.IntType),
		cel.Variable("page", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function("exists",
			cel.Overload("exists_string", []*cel.Type{cel.StringType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					sel, ok := v.(types.String)
					if !ok {
						return types.NewErr("exists: want string, got %v", v.Type())
					}
					_, err := x.resolver.ResolveOnce(ctx, conn, [][]string{{string(sel)}})
					if err != nil && !errors.Is(err, browser.ErrNoMatch) {
						return types.NewErr("exists(%q): %v", string(sel), err)
					}
					return types.Bool(err == nil)
				}))),
		cel.Function("text",
			cel.Overload("text_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					sel, ok := v.(types.String)
					if !ok {
						return types.NewErr("text: want string, got %v", v.Type())
					}
					m, err := x.resolver.ResolveOnce(ctx, conn, [][]string{{string(sel)}})
					if errors.Is(err, browser.ErrNoMatch) {
						return types.String("")
					}
					if err != nil {
						return types.NewErr("text(%q): %v", string(sel), err)
					}
					s, err := conn.TextOf(ctx, m.Node)
					if err != nil {
						return types.NewErr("text(%q): %v", string(sel), err)
					}
					return types.String(s)
				}))),
	)
	if err != nil {
		return fail(err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return fail(iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return fail(err)
	}

	info, err := conn.Info(ctx)
	if err != nil {
		return fail(fmt.Errorf("read page info: %w", err))
	}
	if params == nil {
		params = map[string]any{}
	}
	var item any
	index := -1
	if lc != nil {
		item, index = lc.Item, lc.Index
	}
	out, _, err := prg.Eval(map[string]any{
		"params": params,
		"item":   item,
		"index":  index,
		"page":   map[string]any{"url": info.URL, "title": info.Title},
	})
	if err != nil {
		return fail(err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return fail(fmt.Errorf("result is %v, not bool", out.Type()))
	}
	return b, nil
}
