package methods

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/tabpilot/internal/cron"
	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// SchedulesMethods handles schedules.list, schedules.run and schedules.log.
type SchedulesMethods struct {
	service *cron.Service
}

func NewSchedulesMethods(s *cron.Service) *SchedulesMethods {
	return &SchedulesMethods{service: s}
}

func (m *SchedulesMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSchedulesList, m.handleList)
	router.Register(protocol.MethodSchedulesRun, m.handleRun)
	router.Register(protocol.MethodSchedulesLog, m.handleLog)
}

func (m *SchedulesMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"schedules": m.service.ListJobs(),
	}))
}

// handleRun fires a schedule now and answers once the run finished.
func (m *SchedulesMethods) handleRun(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID string `json:"id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.ID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
		return
	}

	entry, err := m.service.RunJob(ctx, params.ID)
	if errors.Is(err, cron.ErrJobNotFound) {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, entry))
}

func (m *SchedulesMethods) handleLog(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID    string `json:"id"`
		Limit int    `json:"limit"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	entries := m.service.GetRunLog(params.ID, params.Limit)
	if entries == nil {
		entries = []cron.RunLogEntry{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"runs": entries}))
}

// ScheduledRunner executes schedule jobs through the engine. Run events and
// the final outcome are broadcast to every client.
func ScheduledRunner(e *engine.Engine, srv *gateway.Server) cron.JobHandler {
	return func(ctx context.Context, job *cron.Job) (string, error) {
		res, err := e.ExecuteScript(ctx, engine.ExecuteRequest{
			ScriptID: job.ScriptID,
			Params:   engine.MergeParams(nil, job.Params),
			Events:   srv.Broadcast,
		})
		payload := map[string]interface{}{"id": job.ID, "scriptId": job.ScriptID, "ok": err == nil}
		var runID string
		if res != nil {
			runID = res.RunID
			payload["runId"] = runID
		}
		if err != nil {
			payload["error"] = err.Error()
		}
		srv.Broadcast(protocol.EventScheduleFinished, payload)
		return runID, err
	}
}
