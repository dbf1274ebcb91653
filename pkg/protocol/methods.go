package protocol

// Methods accepted in RequestFrame.Method.
const (
	MethodConnect        = "connect"
	MethodExecuteScript  = "executeScript"
	MethodAttachDebugger = "attachDebugger"
	MethodDetachDebugger = "detachDebugger"
	MethodListTabs       = "tabs.list"
	MethodListSessions   = "sessions.list"
	MethodListScripts    = "scripts.list"
	MethodSnapshot       = "snapshot"
	MethodHistory        = "history.list"
	MethodStatus         = "status"

	MethodSchedulesList = "schedules.list"
	MethodSchedulesRun  = "schedules.run"
	MethodSchedulesLog  = "schedules.log"
)
