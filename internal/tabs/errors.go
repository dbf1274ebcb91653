package tabs

import (
	"fmt"
	"time"
)

// TabLoadTimeoutError is returned when a newly created tab does not report a
// complete document before the load timeout.
type TabLoadTimeoutError struct {
	TabID     string
	URL       string
	Timeout   time.Duration
	LastState string
}

func (e *TabLoadTimeoutError) Error() string {
	return fmt.Sprintf("tab %s (%s) not loaded after %s (readyState %q)", e.TabID, e.URL, e.Timeout, e.LastState)
}
