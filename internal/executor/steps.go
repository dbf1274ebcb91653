package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/tabpilot/internal/dispatch"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

type outcome struct {
	selector string // strategy that located the target
	warning  string
	waited   bool // the step already consumed its waitAfter
}

// handle dispatches one substituted step to its handler.
func (x *Executor) handle(ctx context.Context, rc *RunContext, conn browser.Conn, st *script.Step, path string) (outcome, error) {
	switch st.Type {
	case script.StepSetViewport:
		return outcome{}, conn.SetViewport(ctx, browser.Viewport{
			Width:             st.Width,
			Height:            st.Height,
			DeviceScaleFactor: st.DeviceScaleFactor,
			IsMobile:          st.IsMobile,
			HasTouch:          st.HasTouch,
			IsLandscape:       st.IsLandscape,
		})

	case script.StepNavigate:
		if st.URL == "" {
			return outcome{}, fmt.Errorf("navigate: url is required")
		}
		nctx, cancel := context.WithTimeout(ctx, x.navTimeout)
		defer cancel()
		return outcome{}, conn.Navigate(nctx, st.URL)

	case script.StepClick, script.StepDoubleClick:
		return x.click(ctx, conn, st)

	case script.StepHover:
		m, err := x.resolve(ctx, conn, st)
		if err != nil {
			return outcome{}, err
		}
		_, err = x.dispatcher.Hover(ctx, conn, m.Node)
		return outcome{selector: m.Selector}, err

	case script.StepChange:
		m, err := x.resolver.ResolveEditable(ctx, conn, st.Selectors, stepTimeout(st))
		if err != nil {
			return outcome{}, err
		}
		return outcome{selector: m.Selector}, conn.SetValue(ctx, m.Node, st.Value)

	case script.StepKeyDown:
		return outcome{}, conn.DispatchKey(ctx, browser.KeyDown, st.Key)

	case script.StepKeyUp:
		return outcome{}, conn.DispatchKey(ctx, browser.KeyUp, st.Key)

	case script.StepScroll:
		var n *browser.Node
		var sel string
		if len(st.Selectors) > 0 {
			m, err := x.resolve(ctx, conn, st)
			if err != nil {
				return outcome{}, err
			}
			n, sel = m.Node, m.Selector
		}
		_, err := x.dispatcher.Scroll(ctx, conn, n, st.X, st.Y)
		return outcome{selector: sel}, err

	case script.StepWaitForElement:
		return x.waitForElement(ctx, conn, st)

	case script.StepWaitForExpression:
		return outcome{}, x.waitForExpression(ctx, conn, st)

	case script.StepWaitAfter:
		d := st.Duration
		if d <= 0 {
			d = st.WaitAfter
		}
		return outcome{waited: st.Duration <= 0}, sleep(ctx, time.Duration(d)*time.Millisecond)

	case script.StepClose:
		x.logger.Info("close step ignored, session stays attached", "tab", rc.TabID, "step", path)
		return outcome{}, nil

	case script.StepLoop:
		return outcome{}, nil
	}
	return outcome{}, &StepTypeError{Type: st.Type}
}

func stepTimeout(st *script.Step) time.Duration {
	return time.Duration(st.Timeout) * time.Millisecond
}

func (x *Executor) resolve(ctx context.Context, conn browser.Conn, st *script.Step) (*selector.Match, error) {
	return x.resolver.Resolve(ctx, conn, st.Selectors, stepTimeout(st))
}

func (x *Executor) click(ctx context.Context, conn browser.Conn, st *script.Step) (outcome, error) {
	button, err := dispatch.ParseButton(st.Button)
	if err != nil {
		return outcome{}, err
	}
	m, err := x.resolve(ctx, conn, st)
	if err != nil {
		return outcome{}, err
	}
	count := 1
	if st.Type == script.StepDoubleClick {
		count = 2
	}
	res, err := x.dispatcher.Click(ctx, conn, m.Node, dispatch.Options{Button: button, Count: count})
	return outcome{selector: m.Selector, warning: res.Warning}, err
}

// waitForElement waits for a match, or for its absence when visible is false.
func (x *Executor) waitForElement(ctx context.Context, conn browser.Conn, st *script.Step) (outcome, error) {
	if st.Visible == nil || *st.Visible {
		m, err := x.resolve(ctx, conn, st)
		if err != nil {
			return outcome{}, err
		}
		return outcome{selector: m.Selector}, nil
	}

	timeout := stepTimeout(st)
	if timeout <= 0 {
		timeout = x.resolver.Timeout()
	}
	deadline := time.Now().Add(timeout)
	for {
		_, err := x.resolver.ResolveOnce(ctx, conn, st.Selectors)
		if errors.Is(err, browser.ErrNoMatch) {
			return outcome{}, nil
		}
		if time.Now().After(deadline) {
			return outcome{}, fmt.Errorf("element still present after %s: %w", timeout, ErrWaitTimeout)
		}
		if err := sleep(ctx, x.poll); err != nil {
			return outcome{}, err
		}
	}
}

// waitForExpression polls a page expression until it is truthy.
func (x *Executor) waitForExpression(ctx context.Context, conn browser.Conn, st *script.Step) error {
	if st.Expression == "" {
		return fmt.Errorf("waitForExpression: expression is required")
	}
	timeout := stepTimeout(st)
	if timeout <= 0 {
		timeout = x.waitTimeout
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		v, err := conn.Evaluate(ctx, st.Expression)
		if err == nil && truthy(v) {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if time.Now().After(deadline) {
			if lastErr != nil {
				return fmt.Errorf("expression %q after %s: %w (last error: %v)", st.Expression, timeout, ErrWaitTimeout, lastErr)
			}
			return fmt.Errorf("expression %q after %s: %w", st.Expression, timeout, ErrWaitTimeout)
		}
		if err := sleep(ctx, x.poll); err != nil {
			return err
		}
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		return x != ""
	}
	return true
}
