package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/tabpilot/internal/artifacts"
	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/dispatch"
	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/executor"
	"github.com/nextlevelbuilder/tabpilot/internal/history"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/internal/tabs"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// app is the wired engine and everything it owns.
type app struct {
	cfg        *config.Config
	browser    *browser.Manager
	clickables *config.ClickableProvider
	scripts    *script.Store
	history    *history.Store // nil when the database could not be opened
	sessions   *session.Manager
	engine     *engine.Engine
}

type appOptions struct {
	watchClickable bool
	onReattach     func(tabID string, err error)
}

// newApp connects to the browser and wires the engine from cfg.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	a.browser = browser.New(
		browser.WithControlURL(cfg.Browser.ControlURL),
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithBin(cfg.Browser.Bin),
		browser.WithStealth(cfg.Browser.Stealth),
	)
	if err := a.browser.Start(ctx); err != nil {
		return nil, err
	}

	a.clickables = config.NewClickableProvider(cfg.Clickable.Path, slog.Default())
	if opts.watchClickable && cfg.Clickable.Watch && cfg.Clickable.Path != "" {
		if err := a.clickables.Watch(); err != nil {
			slog.Warn("clickable config watch unavailable", "path", cfg.Clickable.Path, "error", err)
		}
	}

	scripts, err := script.NewStore(cfg.Scripts.Dir, cfg.Scripts.CacheSize)
	if err != nil {
		a.close()
		return nil, err
	}
	a.scripts = scripts

	if h, err := history.Open(cfg.History.Path); err != nil {
		slog.Warn("run history disabled", "path", cfg.History.Path, "error", err)
	} else {
		a.history = h
	}

	sessOpts := []session.Option{
		session.WithAttachTimeout(cfg.Timeouts.Attach()),
		session.WithReattachPolicy(cfg.Session.ReattachAttempts, cfg.Session.ReattachDelay(), cfg.Session.ReattachBurst),
	}
	if opts.onReattach != nil {
		sessOpts = append(sessOpts, session.WithReattachHook(opts.onReattach))
	}
	a.sessions = session.NewManager(a.browser, sessOpts...)

	resolver := selector.NewResolver(a.clickables,
		selector.WithTimeout(cfg.Timeouts.Selector()),
		selector.WithPollInterval(cfg.Timeouts.SelectorPoll()),
	)
	exec := executor.New(a.sessions, resolver, dispatch.New(),
		executor.WithNavigateTimeout(cfg.Timeouts.TabLoad()),
		executor.WithPollInterval(cfg.Timeouts.SelectorPoll()),
	)
	tr := tabs.NewResolver(a.browser,
		tabs.WithLoadTimeout(cfg.Timeouts.TabLoad()),
		tabs.WithPollInterval(cfg.Timeouts.TabPoll()),
	)

	engOpts := []engine.Option{engine.WithArtifacts(artifacts.New(cfg.Artifacts.Dir, cfg.Artifacts.MaxWidth))}
	if a.history != nil {
		engOpts = append(engOpts, engine.WithHistory(a.history))
	}
	a.engine = engine.New(a.browser, a.scripts, tr, a.sessions, resolver, exec, engOpts...)
	return a, nil
}

// close releases local resources. Debug sessions are left to the browser
// connection, which ends with the process.
func (a *app) close() {
	a.clickables.Close()
	if a.history != nil {
		a.history.Close()
	}
}

// openApp loads the config and wires the app, exiting on failure.
func openApp(ctx context.Context, opts appOptions) *app {
	a, err := newApp(ctx, mustConfig(), opts)
	if err != nil {
		fatalf("Error: %s", err)
	}
	return a
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
