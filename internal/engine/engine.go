// Package engine is the invocation surface: executeScript, attachDebugger
// and detachDebugger. It wires the tab resolver, the session table and the
// step executor together and records the outcome of every run.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/tabpilot/internal/executor"
	"github.com/nextlevelbuilder/tabpilot/internal/history"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/internal/tabs"
	"github.com/nextlevelbuilder/tabpilot/internal/tracing"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// Reserved parameter names.
const (
	ParamTargetURL      = "targetUrl"
	ParamDetachDebugger = "detachDebugger"
)

// ScriptSource loads scripts by id.
type ScriptSource interface {
	Load(id string) (*script.Script, error)
}

// Recorder persists run outcomes.
type Recorder interface {
	Record(ctx context.Context, r history.Run) error
}

// ScreenshotSaver stores failure screenshots and returns their path.
type ScreenshotSaver interface {
	SaveScreenshot(runID string, data []byte) (string, error)
}

// Engine executes scripts against browser tabs.
type Engine struct {
	driver    browser.Driver
	scripts   ScriptSource
	tabs      *tabs.Resolver
	sessions  *session.Manager
	resolver  *selector.Resolver
	exec      *executor.Executor
	history   Recorder
	artifacts ScreenshotSaver
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory records every run.
func WithHistory(r Recorder) Option {
	return func(e *Engine) { e.history = r }
}

// WithArtifacts saves a screenshot of the tab when a run fails.
func WithArtifacts(s ScreenshotSaver) Option {
	return func(e *Engine) { e.artifacts = s }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(driver browser.Driver, scripts ScriptSource, tr *tabs.Resolver, sessions *session.Manager,
	resolver *selector.Resolver, exec *executor.Executor, opts ...Option) *Engine {
	e := &Engine{
		driver:   driver,
		scripts:  scripts,
		tabs:     tr,
		sessions: sessions,
		resolver: resolver,
		exec:     exec,
		tracer:   tracing.Tracer(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExecuteRequest is one executeScript invocation.
type ExecuteRequest struct {
	ScriptID string         `json:"scriptId"`
	Params   map[string]any `json:"parameters,omitempty"`
	// Events receives run and step progress events. Optional.
	Events executor.Sink `json:"-"`
}

// Failure describes the step that aborted a run.
type Failure struct {
	StepIndex int             `json:"stepIndex"` // -1 when the run failed before any step
	StepPath  string          `json:"stepPath,omitempty"`
	StepType  script.StepType `json:"stepType,omitempty"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
}

// Result is the outcome of executeScript.
type Result struct {
	RunID      string             `json:"runId"`
	ScriptID   string             `json:"scriptId"`
	TabID      string             `json:"tabId,omitempty"`
	TargetURL  string             `json:"targetUrl,omitempty"`
	OK         bool               `json:"ok"`
	StartedAt  time.Time          `json:"startedAt"`
	DurationMs int64              `json:"durationMs"`
	Warnings   []executor.Warning `json:"warnings,omitempty"`
	Outputs    map[string]string  `json:"outputs,omitempty"`
	Failure    *Failure           `json:"failure,omitempty"`
	Screenshot string             `json:"screenshot,omitempty"`
	Detached   bool               `json:"detached,omitempty"`
}

// RunEvent is the payload of run events.
type RunEvent struct {
	RunID      string   `json:"runId"`
	ScriptID   string   `json:"scriptId"`
	TabID      string   `json:"tabId,omitempty"`
	DurationMs int64    `json:"durationMs,omitempty"`
	Failure    *Failure `json:"failure,omitempty"`
}

// ExecuteScript loads a script, merges params over its defaults, resolves and
// attaches the target tab, then runs every step. The session stays attached
// unless params.detachDebugger is true. A non-nil Result is returned whenever
// the script could be loaded; err is the run failure, if any.
func (e *Engine) ExecuteScript(ctx context.Context, req ExecuteRequest) (*Result, error) {
	s, err := e.scripts.Load(req.ScriptID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	res := &Result{RunID: id.String(), ScriptID: s.ID, StartedAt: time.Now()}
	emit := func(name string, payload any) {
		if req.Events != nil {
			req.Events(name, payload)
		}
	}

	params := MergeParams(s.Parameters, req.Params)
	res.TargetURL = s.TargetURL
	if v, ok := params[ParamTargetURL].(string); ok && strings.TrimSpace(v) != "" {
		res.TargetURL = strings.TrimSpace(v)
	}
	detach, _ := params[ParamDetachDebugger].(bool)

	ctx, span := e.tracer.Start(tracing.WithRun(ctx, id), "executeScript", trace.WithAttributes(
		attribute.String("tabpilot.run.id", res.RunID),
		attribute.String("tabpilot.script.id", s.ID),
	))
	defer span.End()

	log := e.logger.With("run", res.RunID, "script", s.ID)
	log.Info("run started", "target", res.TargetURL, "steps", len(s.Steps))
	emit(protocol.EventRunStarted, RunEvent{RunID: res.RunID, ScriptID: s.ID})

	rc := &executor.RunContext{RunID: res.RunID, Params: params, Events: req.Events}
	runErr := e.run(ctx, s, res, rc)
	res.Warnings = rc.Warnings

	if detach && res.TabID != "" {
		if err := e.sessions.Detach(ctx, res.TabID); err != nil {
			log.Warn("detach after run failed", "tab", res.TabID, "error", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			res.Detached = true
		}
	}

	res.DurationMs = time.Since(res.StartedAt).Milliseconds()
	res.OK = runErr == nil
	span.SetAttributes(attribute.String("tabpilot.tab", res.TabID))

	if runErr != nil {
		res.Failure = failureOf(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn("run failed", "step", res.Failure.StepPath, "kind", res.Failure.Kind, "error", runErr)
		emit(protocol.EventRunFailed, RunEvent{RunID: res.RunID, ScriptID: s.ID, TabID: res.TabID, DurationMs: res.DurationMs, Failure: res.Failure})
	} else {
		log.Info("run completed", "tab", res.TabID, "duration_ms", res.DurationMs, "warnings", len(res.Warnings))
		emit(protocol.EventRunCompleted, RunEvent{RunID: res.RunID, ScriptID: s.ID, TabID: res.TabID, DurationMs: res.DurationMs})
	}

	e.record(context.WithoutCancel(ctx), res)
	return res, runErr
}

func (e *Engine) run(ctx context.Context, s *script.Script, res *Result, rc *executor.RunContext) error {
	if res.TargetURL == "" {
		return ErrNoTarget
	}
	tabID, err := e.tabs.Resolve(ctx, res.TargetURL)
	if err != nil {
		return err
	}
	res.TabID = tabID
	rc.TabID = tabID

	if _, err := e.sessions.Attach(ctx, tabID); err != nil {
		return err
	}

	if err := e.exec.Run(ctx, rc, s.Steps, nil); err != nil {
		res.Screenshot = e.screenshot(ctx, res.RunID, tabID)
		return err
	}

	if s.OutputSchema != nil && len(s.OutputSchema.Fields) > 0 {
		res.Outputs = e.outputs(ctx, rc, s.OutputSchema.Fields)
	}
	return nil
}

// outputs reads every output field from the page with a single resolution
// attempt. Missing fields are warnings.
func (e *Engine) outputs(ctx context.Context, rc *executor.RunContext, fields []script.OutputField) map[string]string {
	out := make(map[string]string, len(fields))
	conn, err := e.sessions.Current(rc.TabID)
	if err != nil {
		rc.Warnings = append(rc.Warnings, executor.Warning{Kind: executor.WarnOutput, Message: err.Error()})
		return out
	}
	for _, f := range fields {
		m, err := e.resolver.ResolveOnce(ctx, conn, [][]string{{f.Path}})
		if err == nil {
			var text string
			if text, err = conn.TextOf(ctx, m.Node); err == nil {
				out[f.Name] = strings.TrimSpace(text)
				continue
			}
		}
		e.logger.Warn("output unavailable", "run", rc.RunID, "field", f.Name, "path", f.Path, "error", err)
		rc.Warnings = append(rc.Warnings, executor.Warning{
			Kind:    executor.WarnOutput,
			Message: fmt.Sprintf("output %q (%s): %v", f.Name, f.Path, err),
		})
	}
	return out
}

func (e *Engine) screenshot(ctx context.Context, runID, tabID string) string {
	if e.artifacts == nil {
		return ""
	}
	conn, err := e.sessions.Current(tabID)
	if err != nil {
		return ""
	}
	data, err := conn.Screenshot(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Debug("failure screenshot unavailable", "run", runID, "error", err)
		return ""
	}
	path, err := e.artifacts.SaveScreenshot(runID, data)
	if err != nil {
		e.logger.Warn("save failure screenshot", "run", runID, "error", err)
		return ""
	}
	return path
}

func (e *Engine) record(ctx context.Context, res *Result) {
	if e.history == nil {
		return
	}
	run := history.Run{
		ID:         res.RunID,
		ScriptID:   res.ScriptID,
		TabID:      res.TabID,
		TargetURL:  res.TargetURL,
		Status:     history.StatusOK,
		StartedAt:  res.StartedAt.UnixMilli(),
		DurationMs: res.DurationMs,
		StepIndex:  -1,
		Screenshot: res.Screenshot,
	}
	if f := res.Failure; f != nil {
		run.Status = history.StatusFailed
		run.StepIndex = f.StepIndex
		run.StepPath = f.StepPath
		run.StepType = string(f.StepType)
		run.ErrorKind = f.Kind
		run.Error = f.Message
	}
	if len(res.Warnings) > 0 {
		if b, err := json.Marshal(res.Warnings); err == nil {
			run.Warnings = string(b)
		}
	}
	if len(res.Outputs) > 0 {
		if b, err := json.Marshal(res.Outputs); err == nil {
			run.Outputs = string(b)
		}
	}
	if err := e.history.Record(ctx, run); err != nil {
		e.logger.Warn("record run", "run", res.RunID, "error", err)
	}
}

func failureOf(err error) *Failure {
	f := &Failure{StepIndex: -1, Kind: Code(err), Message: err.Error()}
	var se *executor.StepError
	if errors.As(err, &se) {
		f.StepIndex = se.Index
		f.StepPath = se.Path
		f.StepType = se.Type
		f.Message = se.Err.Error()
	}
	return f
}

// MergeParams returns defaults overlaid with overrides.
func MergeParams(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	maps.Copy(out, overrides)
	return out
}

// AttachDebugger resolves a tab id or URL pattern and attaches to it. An
// already attached tab is returned as is.
func (e *Engine) AttachDebugger(ctx context.Context, tabIDOrURL string) (session.Session, error) {
	tabID, err := e.tabs.Resolve(ctx, tabIDOrURL)
	if err != nil {
		return session.Session{}, err
	}
	if _, err := e.sessions.Attach(ctx, tabID); err != nil {
		return session.Session{}, err
	}
	s, ok := e.sessions.Get(tabID)
	if !ok {
		return session.Session{}, session.ErrNotAttached
	}
	return s, nil
}

// DetachDebugger tears down the session of tabID.
func (e *Engine) DetachDebugger(ctx context.Context, tabID string) error {
	return e.sessions.Detach(ctx, tabID)
}

// Sessions lists the session table.
func (e *Engine) Sessions() []session.Session {
	return e.sessions.List()
}

// ListTabs lists the open page tabs.
func (e *Engine) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	return e.driver.ListTabs(ctx)
}

// Snapshot attaches to a tab and returns its accessibility outline.
func (e *Engine) Snapshot(ctx context.Context, tabIDOrURL string, opts browser.OutlineOptions) (*browser.Outline, error) {
	tabID, err := e.tabs.Resolve(ctx, tabIDOrURL)
	if err != nil {
		return nil, err
	}
	conn, err := e.sessions.Attach(ctx, tabID)
	if err != nil {
		return nil, err
	}
	return conn.Outline(ctx, opts)
}
