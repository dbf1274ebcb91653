package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// SessionsMethods handles attachDebugger, detachDebugger and sessions.list.
// Lifecycle changes are broadcast to every client.
type SessionsMethods struct {
	engine *engine.Engine
	server *gateway.Server
}

func NewSessionsMethods(e *engine.Engine, s *gateway.Server) *SessionsMethods {
	return &SessionsMethods{engine: e, server: s}
}

func (m *SessionsMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodAttachDebugger, m.handleAttach)
	router.Register(protocol.MethodDetachDebugger, m.handleDetach)
	router.Register(protocol.MethodListSessions, m.handleList)
}

func (m *SessionsMethods) handleAttach(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Tab string `json:"tab"` // tab id or URL pattern
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Tab == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "tab is required"))
		return
	}

	s, err := m.engine.AttachDebugger(ctx, params.Tab)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, engine.Code(err), err.Error()))
		return
	}
	m.server.Broadcast(protocol.EventSessionAttached, s)
	client.SendResponse(protocol.NewOKResponse(req.ID, s))
}

func (m *SessionsMethods) handleDetach(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		TabID string `json:"tabId"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.TabID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "tabId is required"))
		return
	}

	if err := m.engine.DetachDebugger(ctx, params.TabID); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, engine.Code(err), err.Error()))
		return
	}
	m.server.Broadcast(protocol.EventSessionDetached, map[string]string{"tabId": params.TabID})
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]string{"tabId": params.TabID}))
}

func (m *SessionsMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"sessions": m.engine.Sessions(),
	}))
}
