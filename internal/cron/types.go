// Package cron runs scripts on a schedule while `tabpilot serve` is up.
// Jobs come from the config file; their state lives in memory.
//
// Three schedule kinds are supported:
//   - "at":    one-time execution at a specific timestamp
//   - "every": recurring interval (in milliseconds)
//   - "cron":  standard cron expression (5-field, parsed by gronx)
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule kinds.
const (
	KindAt    = "at"
	KindEvery = "every"
	KindCron  = "cron"
)

// Schedule defines when a job should run.
type Schedule struct {
	Kind    string `json:"kind"`
	AtMS    int64  `json:"atMs,omitempty"`
	EveryMS int64  `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// ParseSchedule builds a schedule from the config form: exactly one of a
// cron expression, an interval or an RFC 3339 timestamp.
func ParseSchedule(expr string, everyMS int64, at string) (Schedule, error) {
	set := 0
	for _, ok := range []bool{expr != "", everyMS != 0, at != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return Schedule{}, fmt.Errorf("want exactly one of cron, everyMs or at")
	}

	var s Schedule
	switch {
	case expr != "":
		s = Schedule{Kind: KindCron, Expr: expr}
	case everyMS != 0:
		s = Schedule{Kind: KindEvery, EveryMS: everyMS}
	default:
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Schedule{}, fmt.Errorf("at: %w", err)
		}
		s = Schedule{Kind: KindAt, AtMS: t.UnixMilli()}
	}
	return s, s.Validate()
}

// Validate checks that the schedule can produce a run.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindAt:
		if s.AtMS <= 0 {
			return fmt.Errorf("at schedule requires atMs")
		}
	case KindEvery:
		if s.EveryMS <= 0 {
			return fmt.Errorf("every schedule requires positive everyMs")
		}
	case KindCron:
		if s.Expr == "" {
			return fmt.Errorf("cron schedule requires expr")
		}
		gx := gronx.New()
		if !gx.IsValid(s.Expr) {
			return fmt.Errorf("invalid cron expression: %s", s.Expr)
		}
	default:
		return fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
	return nil
}

// JobState tracks runtime state for a job.
type JobState struct {
	NextRunAtMS *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMS *int64 `json:"lastRunAtMs,omitempty"`
	LastRunID   string `json:"lastRunId,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"` // "ok" or "error"
	LastError   string `json:"lastError,omitempty"`
}

// Job runs one script with fixed parameters on a schedule.
type Job struct {
	ID       string         `json:"id"`
	ScriptID string         `json:"scriptId"`
	Params   map[string]any `json:"parameters,omitempty"`
	Enabled  bool           `json:"enabled"`
	Retries  int            `json:"retries,omitempty"`
	Schedule Schedule       `json:"schedule"`
	State    JobState       `json:"state"`
}

// RunLogEntry is an in-memory record of a job execution.
type RunLogEntry struct {
	Ts       int64  `json:"ts"`
	JobID    string `json:"jobId"`
	RunID    string `json:"runId,omitempty"`
	Attempts int    `json:"attempts"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// JobHandler executes a job and returns the run id of the last attempt.
type JobHandler func(ctx context.Context, job *Job) (runID string, err error)

func nowMS() int64 {
	return time.Now().UnixMilli()
}
