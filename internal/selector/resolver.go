package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

// Clickables supplies the clickable config snapshot.
type Clickables interface {
	Snapshot() *config.ClickableConfig
}

// Match is a located element. It is only valid for the step that resolved it.
type Match struct {
	Node     *browser.Node
	Selector string // the strategy string that matched
	Kind     Kind
	Check    string // climb check that accepted the node, empty for direct matches
}

// Resolver turns candidate selector lists into elements.
type Resolver struct {
	clickables Clickables
	timeout    time.Duration
	poll       time.Duration
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the default resolution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithPollInterval sets the pause between resolution attempts.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) { r.poll = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver reading clickable rules from clickables.
func NewResolver(clickables Clickables, opts ...Option) *Resolver {
	r := &Resolver{
		clickables: clickables,
		timeout:    5 * time.Second,
		poll:       100 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Timeout returns the default resolution timeout.
func (r *Resolver) Timeout() time.Duration { return r.timeout }

// Resolve polls until one of the candidates matches or timeout elapses. A
// zero timeout uses the default. Each attempt walks every candidate list and
// every strategy in order.
func (r *Resolver) Resolve(ctx context.Context, conn browser.Conn, candidates [][]string, timeout time.Duration) (*Match, error) {
	return r.resolve(ctx, conn, candidates, timeout, false)
}

// ResolveEditable is Resolve for value targets: an accessible-label match is
// returned as-is instead of climbing to a clickable ancestor.
func (r *Resolver) ResolveEditable(ctx context.Context, conn browser.Conn, candidates [][]string, timeout time.Duration) (*Match, error) {
	return r.resolve(ctx, conn, candidates, timeout, true)
}

func (r *Resolver) resolve(ctx context.Context, conn browser.Conn, candidates [][]string, timeout time.Duration, editable bool) (*Match, error) {
	if timeout <= 0 {
		timeout = r.timeout
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("step has no selectors")
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		m, err := r.attempt(ctx, conn, candidates, editable)
		if m != nil {
			r.logger.Debug("selector resolved", "selector", m.Selector, "kind", m.Kind, "check", m.Check, "attempt", attempt)
			return m, nil
		}
		if err != nil {
			lastErr = err
		}
		if time.Now().After(deadline) {
			return nil, &ElementNotFoundError{Candidates: candidates, Timeout: timeout, LastErr: lastErr}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

// ResolveOnce makes a single attempt without polling. It returns
// browser.ErrNoMatch when nothing matched.
func (r *Resolver) ResolveOnce(ctx context.Context, conn browser.Conn, candidates [][]string) (*Match, error) {
	m, err := r.attempt(ctx, conn, candidates, false)
	if m != nil {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, browser.ErrNoMatch
}

// attempt returns the first match across candidates, or the last query
// error seen when nothing matched.
func (r *Resolver) attempt(ctx context.Context, conn browser.Conn, candidates [][]string, editable bool) (*Match, error) {
	cfg := r.clickables.Snapshot()
	var lastErr error
	for _, list := range candidates {
		for _, s := range list {
			m, err := r.try(ctx, conn, cfg, Parse(s), editable)
			if m != nil {
				return m, nil
			}
			if err != nil && !errors.Is(err, browser.ErrNoMatch) {
				r.logger.Debug("selector strategy failed", "selector", s, "error", err)
				lastErr = err
			}
		}
	}
	return nil, lastErr
}

func (r *Resolver) try(ctx context.Context, conn browser.Conn, cfg *config.ClickableConfig, st Strategy, editable bool) (*Match, error) {
	if st.Value == "" {
		return nil, browser.ErrNoMatch
	}

	switch st.Kind {
	case Structural:
		n, err := conn.QueryCSS(ctx, st.Value)
		return direct(n, err, st)
	case Pierce:
		n, err := conn.QueryPierce(ctx, st.Value)
		return direct(n, err, st)
	case XPath:
		n, err := conn.QueryXPath(ctx, st.Value)
		return direct(n, err, st)
	case Text:
		n, err := conn.QueryText(ctx, st.Value)
		if err != nil {
			return nil, err
		}
		return r.climb(ctx, conn, cfg, n, st)
	case Label:
		n, err := conn.QueryLabel(ctx, st.Value)
		if err != nil {
			return nil, err
		}
		if editable || DirectlyClickable(cfg, n.NodeInfo) {
			return &Match{Node: n, Selector: st.Raw, Kind: st.Kind}, nil
		}
		return r.climb(ctx, conn, cfg, n, st)
	}
	return nil, fmt.Errorf("unknown selector kind %d", st.Kind)
}

func direct(n *browser.Node, err error, st Strategy) (*Match, error) {
	if err != nil {
		return nil, err
	}
	return &Match{Node: n, Selector: st.Raw, Kind: st.Kind}, nil
}

func (r *Resolver) climb(ctx context.Context, conn browser.Conn, cfg *config.ClickableConfig, start *browser.Node, st Strategy) (*Match, error) {
	chain, err := conn.Ancestors(ctx, start, MaxClimbDepth+1)
	if err != nil {
		return nil, err
	}
	n, check, ok := Climb(cfg, chain)
	if !ok {
		r.logger.Debug("no clickable ancestor", "selector", st.Raw, "examined", len(chain))
		return nil, browser.ErrNoMatch
	}
	return &Match{Node: n, Selector: st.Raw, Kind: st.Kind, Check: check}, nil
}
