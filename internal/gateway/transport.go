package gateway

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport moves whole frames for one client.
type transport interface {
	Read() ([]byte, error)
	Write(frame []byte) error
	Ping() error
	Close() error
}

// maxFrameSize bounds a single inbound frame (512KB).
const maxFrameSize = 512 * 1024

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// wsTransport carries one frame per WebSocket text message.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	t.conn.SetReadDeadline(time.Now().Add(readTimeout))
	return data, nil
}

func (t *wsTransport) Write(frame []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Ping() error {
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	t.conn.WriteMessage(websocket.CloseMessage, []byte{})
	return t.conn.Close()
}

// lineTransport carries one frame per line, for stdio.
type lineTransport struct {
	scanner *bufio.Scanner
	mu      sync.Mutex
	w       io.Writer
}

func newLineTransport(r io.Reader, w io.Writer) *lineTransport {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &lineTransport{scanner: sc, w: w}
}

func (t *lineTransport) Read() ([]byte, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (t *lineTransport) Write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.w.Write(append(frame, '\n'))
	return err
}

func (t *lineTransport) Ping() error { return nil }

// Close leaves the underlying streams open; they belong to the process.
func (t *lineTransport) Close() error { return nil }
