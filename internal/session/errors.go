package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAttached is returned by Current for tabs without a live session.
	ErrNotAttached = errors.New("no debug session attached")

	errReattachDisabled = errors.New("reattach disabled")
	errReattachBudget   = errors.New("reattach budget exhausted")
)

// DebugAttachError reports a failed attach handshake.
type DebugAttachError struct {
	TabID string
	Err   error
}

func (e *DebugAttachError) Error() string {
	return fmt.Sprintf("attach debugger to tab %s: %v", e.TabID, e.Err)
}

func (e *DebugAttachError) Unwrap() error { return e.Err }

// DebugDetachError reports a failed session teardown. The session stays in
// the table as attached.
type DebugDetachError struct {
	TabID string
	Err   error
}

func (e *DebugDetachError) Error() string {
	return fmt.Sprintf("detach debugger from tab %s: %v", e.TabID, e.Err)
}

func (e *DebugDetachError) Unwrap() error { return e.Err }
