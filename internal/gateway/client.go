package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// Client is one connected caller, over WebSocket or stdio.
type Client struct {
	id            string
	tr            transport
	server        *Server
	authenticated bool
	send          chan []byte
	done          chan struct{} // closed when the write pump exits
	inflight      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newClient(tr transport, server *Server, authenticated bool) *Client {
	return &Client{
		id:            uuid.NewString(),
		tr:            tr,
		server:        server,
		authenticated: authenticated,
		send:          make(chan []byte, 256),
		done:          make(chan struct{}),
	}
}

// Run pumps frames until the peer goes away. Requests are handled
// concurrently so runs against different tabs proceed independently; Run
// returns once every in-flight request has answered.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
	c.inflight.Wait()
	c.close()
	<-c.done
	c.tr.Close()
}

func (c *Client) readPump(ctx context.Context) {
	for {
		data, err := c.tr.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("client read error", "client", c.id, "error", err)
			}
			return
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) writePump() {
	defer close(c.done)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.tr.Write(msg); err != nil {
				slog.Warn("client write error", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.tr.Ping(); err != nil {
				return
			}
		}
	}
}

// handleFrame parses a frame and dispatches requests on their own goroutine.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	frameType, err := protocol.ParseFrameType(data)
	if err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "invalid frame: "+err.Error())
		return
	}
	if frameType != protocol.FrameTypeRequest {
		c.sendError("", protocol.ErrInvalidRequest, "unexpected frame type: "+frameType)
		return
	}

	var req protocol.RequestFrame
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "malformed request: "+err.Error())
		return
	}
	if !c.authenticated && req.Method != protocol.MethodConnect {
		c.sendError(req.ID, protocol.ErrUnauthorized, "first request must be 'connect'")
		return
	}
	if req.Method == protocol.MethodConnect {
		// connect changes client state; keep it ordered with the read loop
		c.server.router.Handle(ctx, c, &req)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.server.router.Handle(ctx, c, &req)
	}()
}

// SendResponse sends a response frame to this client.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("marshal response failed", "error", err)
		return
	}
	c.enqueue(data)
}

// SendEvent sends an event frame to this client.
func (c *Client) SendEvent(event *protocol.EventFrame) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "error", err)
		return
	}
	c.enqueue(data)
}

// enqueue blocks while the send buffer is full; a dead writer drops the frame.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
		slog.Debug("client gone, dropping frame", "client", c.id)
	}
}

func (c *Client) sendError(id, code, message string) {
	c.SendResponse(protocol.NewErrorResponse(id, code, message))
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Authenticate marks the client as having passed connect.
func (c *Client) Authenticate() { c.authenticated = true }

// Emit sends a sequenced event to this client only.
func (c *Client) Emit(event string, payload any) {
	ev := protocol.NewEvent(event, payload)
	ev.Seq = c.server.NextSeq()
	c.SendEvent(ev)
}
