// Package methods registers the tabpilot request handlers on a gateway router.
package methods

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// RunMethods handles executeScript.
type RunMethods struct {
	engine *engine.Engine
}

func NewRunMethods(e *engine.Engine) *RunMethods {
	return &RunMethods{engine: e}
}

func (m *RunMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodExecuteScript, m.handleExecute)
}

// handleExecute streams run and step events to the caller while the script
// runs, then answers with the run result. A failed run answers ok=false with
// the result in error.details.
func (m *RunMethods) handleExecute(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ScriptID   string         `json:"scriptId"`
		Parameters map[string]any `json:"parameters"`
	}
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
			return
		}
	}
	if strings.TrimSpace(params.ScriptID) == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "scriptId is required"))
		return
	}

	res, err := m.engine.ExecuteScript(ctx, engine.ExecuteRequest{
		ScriptID: params.ScriptID,
		Params:   params.Parameters,
		Events:   client.Emit,
	})
	if err != nil {
		resp := protocol.NewErrorResponse(req.ID, engine.Code(err), err.Error())
		if res != nil {
			resp.Error.Details = res
			if res.Failure != nil {
				resp.Error.Message = res.Failure.Message
			}
		}
		client.SendResponse(resp)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, res))
}
