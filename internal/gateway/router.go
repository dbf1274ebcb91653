package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// MethodHandler processes a single request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to its handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	if req.Method == protocol.MethodExecuteScript && !r.server.limiter.Allow(client.id) {
		client.SendResponse(&protocol.ResponseFrame{
			Type:  protocol.FrameTypeResponse,
			ID:    req.ID,
			Error: &protocol.ErrorShape{Code: protocol.ErrRateLimited, Message: "too many executeScript requests", Retryable: true},
		})
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodStatus, r.handleStatus)
}

func (r *MethodRouter) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	token := r.server.cfg.Token
	if token != "" && subtle.ConstantTimeCompare([]byte(params.Token), []byte(token)) != 1 {
		slog.Warn("connect rejected", "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token"))
		return
	}
	client.Authenticate()
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocol": protocol.ProtocolVersion,
		"client":   client.id,
		"server": map[string]interface{}{
			"name":    "tabpilot",
			"version": r.server.version,
		},
	}))
}

func (r *MethodRouter) handleStatus(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocol": protocol.ProtocolVersion,
		"version":  r.server.version,
		"clients":  r.server.ClientCount(),
	}))
}
