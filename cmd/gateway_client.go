package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// gatewayRPC connects to a running `tabpilot serve --ws`, authenticates, sends
// one request and returns its response. Events received before the response
// are passed to onEvent when it is set.
func gatewayRPC(cfg *config.Config, method string, params any, timeout time.Duration, onEvent func(*protocol.EventFrame)) (*protocol.ResponseFrame, error) {
	host, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil {
		return nil, fmt.Errorf("server.listen %q: %w", cfg.Server.Listen, err)
	}
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to tabpilot server at %s (is `tabpilot serve --ws` running?): %w", u.String(), err)
	}
	defer conn.Close()

	connectParams, _ := json.Marshal(map[string]any{
		"token":    cfg.Server.Token,
		"protocol": protocol.ProtocolVersion,
	})
	if err := conn.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-connect",
		Method: protocol.MethodConnect,
		Params: connectParams,
	}); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var connectResp protocol.ResponseFrame
	if err := conn.ReadJSON(&connectResp); err != nil {
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	if !connectResp.OK {
		msg := "unknown error"
		if connectResp.Error != nil {
			msg = connectResp.Error.Message
		}
		return nil, fmt.Errorf("connect failed: %s", msg)
	}

	var raw json.RawMessage
	if params != nil {
		if raw, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}
	if err := conn.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-rpc",
		Method: method,
		Params: raw,
	}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		frameType, _ := protocol.ParseFrameType(msg)
		if frameType == protocol.FrameTypeEvent {
			if onEvent != nil {
				var ev protocol.EventFrame
				if json.Unmarshal(msg, &ev) == nil {
					onEvent(&ev)
				}
			}
			continue
		}

		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == "cli-rpc" {
			return &resp, nil
		}
	}
}

// decodePayload re-decodes a response payload into v.
func decodePayload(payload any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// rpcFailed prints a failed response and exits.
func rpcFailed(resp *protocol.ResponseFrame) {
	if resp.Error == nil {
		fatalf("Failed: unknown error")
	}
	fatalf("Failed [%s]: %s", resp.Error.Code, resp.Error.Message)
}
