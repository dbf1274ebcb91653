package cron

import (
	"fmt"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
)

// JobsFromConfig converts the schedules section of the config file.
func JobsFromConfig(entries []config.ScheduleEntry) ([]Job, error) {
	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		sched, err := ParseSchedule(e.Cron, e.EveryMs, e.At)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.ID, err)
		}
		jobs = append(jobs, Job{
			ID:       e.ID,
			ScriptID: e.ScriptID,
			Params:   e.Params,
			Enabled:  !e.Disabled,
			Retries:  e.Retries,
			Schedule: sched,
		})
	}
	return jobs, nil
}
