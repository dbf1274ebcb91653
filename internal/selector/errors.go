package selector

import (
	"fmt"
	"strings"
	"time"
)

// ElementNotFoundError is returned when no candidate resolved before the
// timeout. Candidates is the full list that was tried.
type ElementNotFoundError struct {
	Candidates [][]string
	Timeout    time.Duration
	LastErr    error
}

func (e *ElementNotFoundError) Error() string {
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = "[" + strings.Join(c, ", ") + "]"
	}
	msg := fmt.Sprintf("no element matched %s within %s", strings.Join(parts, " "), e.Timeout)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}
