package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamlog/streamlog/internal/session"
)

// SSE event types. Control frames are a distinct frame type so a
// decoder never has to pattern-match sentinel text out of log content.
const (
	FrameLog     = "log"
	FrameControl = "control"
)

// ControlPayload is the body of a control frame.
type ControlPayload struct {
	Code session.Control `json:"code"`
}

// FrameWriter serializes queue items onto one stream transport. A
// controller drains exactly one queue into exactly one writer.
type FrameWriter interface {
	WriteEvent(e session.Event) error
	WriteControl(c session.Control) error
	WriteKeepAlive() error
}

// SSEWriter encodes frames as Server-Sent Events on an HTTP response:
// one "event:" type line, one "data:" JSON payload line, a blank line
// terminator. Keep-alives are SSE comment lines.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event streaming. It fails if the
// response does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Long-lived response: the server's WriteTimeout must not apply.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) WriteEvent(e session.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.frame(FrameLog, data)
}

func (s *SSEWriter) WriteControl(c session.Control) error {
	data, err := json.Marshal(ControlPayload{Code: c})
	if err != nil {
		return err
	}
	return s.frame(FrameControl, data)
}

func (s *SSEWriter) WriteKeepAlive() error {
	if _, err := fmt.Fprintf(s.w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEWriter) frame(event string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// wsFrame mirrors the SSE frame shape for the WebSocket transport.
type wsFrame struct {
	Type  string           `json:"type"`
	Event *session.Event   `json:"event,omitempty"`
	Code  session.Control  `json:"code,omitempty"`
}

// WSWriter encodes frames as WebSocket text messages. Keep-alives use
// protocol-level pings.
type WSWriter struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSWriter wraps an upgraded connection. writeTimeout bounds each
// message write.
func NewWSWriter(conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	return &WSWriter{conn: conn, writeTimeout: writeTimeout}
}

func (w *WSWriter) WriteEvent(e session.Event) error {
	w.deadline()
	return w.conn.WriteJSON(wsFrame{Type: FrameLog, Event: &e})
}

func (w *WSWriter) WriteControl(c session.Control) error {
	w.deadline()
	return w.conn.WriteJSON(wsFrame{Type: FrameControl, Code: c})
}

func (w *WSWriter) WriteKeepAlive() error {
	w.deadline()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *WSWriter) deadline() {
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
}
