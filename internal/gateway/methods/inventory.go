package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/internal/history"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// ScriptLister lists the script store.
type ScriptLister interface {
	List() ([]script.Info, error)
}

// HistoryLister reads past runs.
type HistoryLister interface {
	List(ctx context.Context, scriptID string, limit int) ([]history.Run, error)
}

// InventoryMethods handles tabs.list, scripts.list, history.list and
// snapshot. History is optional.
type InventoryMethods struct {
	engine  *engine.Engine
	scripts ScriptLister
	history HistoryLister
}

func NewInventoryMethods(e *engine.Engine, scripts ScriptLister, h HistoryLister) *InventoryMethods {
	return &InventoryMethods{engine: e, scripts: scripts, history: h}
}

func (m *InventoryMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodListTabs, m.handleTabs)
	router.Register(protocol.MethodListScripts, m.handleScripts)
	router.Register(protocol.MethodHistory, m.handleHistory)
	router.Register(protocol.MethodSnapshot, m.handleSnapshot)
}

func (m *InventoryMethods) handleTabs(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	tabs, err := m.engine.ListTabs(ctx)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, engine.Code(err), err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"tabs": tabs}))
}

func (m *InventoryMethods) handleScripts(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	infos, err := m.scripts.List()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	if infos == nil {
		infos = []script.Info{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"scripts": infos}))
}

func (m *InventoryMethods) handleHistory(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if m.history == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, "run history is disabled"))
		return
	}
	var params struct {
		ScriptID string `json:"scriptId"`
		Limit    int    `json:"limit"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	runs, err := m.history.List(ctx, params.ScriptID, params.Limit)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"runs": runs}))
}

func (m *InventoryMethods) handleSnapshot(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Tab         string `json:"tab"`
		Interactive bool   `json:"interactive"`
		Compact     bool   `json:"compact"`
		MaxDepth    int    `json:"maxDepth"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Tab == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "tab is required"))
		return
	}

	opts := browser.DefaultOutlineOptions()
	opts.Interactive = params.Interactive
	opts.Compact = params.Compact
	opts.MaxDepth = params.MaxDepth
	out, err := m.engine.Snapshot(ctx, params.Tab, opts)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, engine.Code(err), err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, out))
}
