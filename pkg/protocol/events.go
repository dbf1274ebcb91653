package protocol

// Run progress events.
const (
	EventRunStarted    = "run.started"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
	EventStepStarted   = "step.started"
	EventStepCompleted = "step.completed"
	EventStepSkipped   = "step.skipped"
)

// Session lifecycle events.
const (
	EventSessionAttached   = "session.attached"
	EventSessionDetached   = "session.detached"
	EventSessionReattached = "session.reattached"
	EventSessionLost       = "session.lost"
)

// Scheduler events.
const (
	EventScheduleFinished = "schedule.finished"
)
