// Package executor runs script steps against an attached debug session.
//
// Steps run one at a time in declared order. For each step the executor
// evaluates the condition, substitutes placeholders, dispatches the handler
// for its type, runs the loop body and finally waits waitAfter. The first
// failure aborts the remaining steps of the current Run call. Sessions are
// never detached here.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/tabpilot/internal/dispatch"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// ConnSource hands out the live session of a tab. It is consulted before
// every step so a reattached session is picked up mid-run.
type ConnSource interface {
	Current(tabID string) (browser.Conn, error)
}

// Sink receives progress events. Name is one of the protocol.EventStep*
// constants.
type Sink func(name string, payload any)

// Warning is a non-fatal problem recorded during a run.
type Warning struct {
	Kind    string `json:"kind"` // substitution, clickTarget, output
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// Warning kinds.
const (
	WarnSubstitution = "substitution"
	WarnClickTarget  = "clickTarget"
	WarnOutput       = "output"
)

// StepEvent is the payload of step events.
type StepEvent struct {
	RunID      string          `json:"runId,omitempty"`
	Index      int             `json:"index"`
	Path       string          `json:"path"`
	Type       script.StepType `json:"type"`
	Selector   string          `json:"selector,omitempty"` // the strategy that matched
	Reason     string          `json:"reason,omitempty"`
	DurationMs int64           `json:"durationMs,omitempty"`
}

// RunContext is the per-invocation state shared by all steps of a run,
// including loop bodies.
type RunContext struct {
	RunID  string
	TabID  string
	Params map[string]any
	Events Sink

	Warnings []Warning
}

func (rc *RunContext) emit(name string, ev StepEvent) {
	if rc.Events == nil {
		return
	}
	ev.RunID = rc.RunID
	rc.Events(name, ev)
}

// Executor runs steps.
type Executor struct {
	sessions    ConnSource
	resolver    *selector.Resolver
	dispatcher  *dispatch.Dispatcher
	navTimeout  time.Duration
	waitTimeout time.Duration
	poll        time.Duration
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithNavigateTimeout bounds navigate steps.
func WithNavigateTimeout(d time.Duration) Option {
	return func(x *Executor) { x.navTimeout = d }
}

// WithWaitTimeout sets the default bound for waitForExpression steps.
func WithWaitTimeout(d time.Duration) Option {
	return func(x *Executor) { x.waitTimeout = d }
}

// WithPollInterval sets the poll interval of wait steps.
func WithPollInterval(d time.Duration) Option {
	return func(x *Executor) { x.poll = d }
}

// WithTracer sets the tracer used for step spans.
func WithTracer(t trace.Tracer) Option {
	return func(x *Executor) { x.tracer = t }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// New creates an Executor.
func New(sessions ConnSource, resolver *selector.Resolver, dispatcher *dispatch.Dispatcher, opts ...Option) *Executor {
	x := &Executor{
		sessions:    sessions,
		resolver:    resolver,
		dispatcher:  dispatcher,
		navTimeout:  30 * time.Second,
		waitTimeout: resolver.Timeout(),
		poll:        100 * time.Millisecond,
		tracer:      otel.Tracer("github.com/nextlevelbuilder/tabpilot/internal/executor"),
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Run executes steps in order. lc is the enclosing loop iteration, nil at
// the top level. The returned error is a *StepError for step failures.
func (x *Executor) Run(ctx context.Context, rc *RunContext, steps []script.Step, lc *LoopContext) error {
	return x.run(ctx, rc, steps, lc, "", -1)
}

func (x *Executor) run(ctx context.Context, rc *RunContext, steps []script.Step, lc *LoopContext, prefix string, top int) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := prefix + strconv.Itoa(i)
		index := top
		if index < 0 {
			index = i
		}
		if err := x.step(ctx, rc, &steps[i], lc, path, index); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) step(ctx context.Context, rc *RunContext, st *script.Step, lc *LoopContext, path string, index int) error {
	ev := StepEvent{Index: index, Path: path, Type: st.Type}
	fail := func(err error) error {
		if _, ok := err.(*StepError); ok {
			return err
		}
		return &StepError{Index: index, Path: path, Type: st.Type, Err: err}
	}

	ctx, span := x.tracer.Start(ctx, "step "+string(st.Type), trace.WithAttributes(
		attribute.String("tabpilot.step.path", path),
		attribute.String("tabpilot.step.type", string(st.Type)),
		attribute.String("tabpilot.tab", rc.TabID),
	))
	defer span.End()

	conn, err := x.sessions.Current(rc.TabID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fail(err)
	}

	if st.Condition != "" {
		ok, err := x.evalCondition(ctx, conn, st.Condition, rc.Params, lc)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fail(err)
		}
		if !ok {
			x.logger.Debug("step skipped", "path", path, "type", st.Type, "condition", st.Condition)
			span.SetAttributes(attribute.Bool("tabpilot.step.skipped", true))
			ev.Reason = "condition is false"
			rc.emit(protocol.EventStepSkipped, ev)
			return nil
		}
	}

	vars := variables(rc.Params, lc)
	resolved, warns := substituteStep(*st, vars, path)
	for _, w := range warns {
		x.logger.Warn("unresolved placeholder", "step", w.Step, "field", w.Field, "placeholder", w.Placeholder)
		rc.Warnings = append(rc.Warnings, Warning{Kind: WarnSubstitution, Step: path, Message: w.Error()})
	}

	rc.emit(protocol.EventStepStarted, ev)
	start := time.Now()

	// Handlers are not cancelled mid-step; their own timeouts bound them.
	out, err := x.handle(context.WithoutCancel(ctx), rc, conn, &resolved, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		x.logger.Warn("step failed", "path", path, "type", st.Type, "error", err)
		return fail(err)
	}
	if out.warning != "" {
		rc.Warnings = append(rc.Warnings, Warning{Kind: WarnClickTarget, Step: path, Message: out.warning})
	}

	if st.Loop != nil {
		if err := x.loop(ctx, rc, st.Loop, lc, path, index); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fail(err)
		}
	}

	if d := resolved.WaitAfter; d > 0 && !out.waited {
		if err := sleep(ctx, time.Duration(d)*time.Millisecond); err != nil {
			return err
		}
	}

	ev.Selector = out.selector
	ev.DurationMs = time.Since(start).Milliseconds()
	rc.emit(protocol.EventStepCompleted, ev)
	return nil
}

func (x *Executor) loop(ctx context.Context, rc *RunContext, l *script.Loop, lc *LoopContext, path string, index int) error {
	items, err := loopItems(ctx, l, rc.Params, lc)
	if err != nil {
		return err
	}
	x.logger.Debug("loop", "path", path, "items", len(items))
	for i, item := range items {
		inner := &LoopContext{Item: item, Index: i, Parent: lc}
		prefix := fmt.Sprintf("%s.loop[%d].", path, i)
		if err := x.run(ctx, rc, l.Steps, inner, prefix, index); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
