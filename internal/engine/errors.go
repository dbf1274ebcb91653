package engine

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/tabpilot/internal/executor"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/internal/selector"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/internal/tabs"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// ErrNoTarget is returned when neither the script nor the parameters name a
// target URL.
var ErrNoTarget = errors.New("script has no targetUrl")

// Code maps an error to its protocol error code.
func Code(err error) string {
	var (
		nf   *selector.ElementNotFoundError
		tl   *tabs.TabLoadTimeoutError
		ae   *session.DebugAttachError
		de   *session.DebugDetachError
		ste  *executor.StepTypeError
		cond *executor.ConditionEvaluationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &nf):
		return protocol.ErrElementNotFound
	case errors.As(err, &tl):
		return protocol.ErrTabLoadTimeout
	case errors.As(err, &ae):
		return protocol.ErrDebugAttachFailed
	case errors.As(err, &de):
		return protocol.ErrDebugDetachFailed
	case errors.As(err, &ste):
		return protocol.ErrStepTypeUnknown
	case errors.As(err, &cond):
		return protocol.ErrConditionFailed
	case errors.Is(err, script.ErrScriptNotFound), errors.Is(err, browser.ErrTabNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrNoTarget):
		return protocol.ErrInvalidRequest
	case errors.Is(err, session.ErrNotAttached), errors.Is(err, browser.ErrNotConnected):
		return protocol.ErrUnavailable
	case errors.Is(err, executor.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrTimeout
	}
	return protocol.ErrInternal
}
