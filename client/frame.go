// Package client streams session log events from a streamlog server,
// reconnecting with bounded backoff when the transport fails.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Frame type values, matching the server's SSE "event:" field.
const (
	frameLog     = "log"
	frameControl = "control"
)

// Control codes carried by terminal control frames.
const (
	ControlSessionClosed   = "session-closed"
	ControlSessionNotFound = "session-not-found"
	ControlIdleTimeout     = "idle-timeout"
)

// Event is one decoded log record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Origin    string    `json:"origin"`
}

// Frame is one decoded wire frame: either a log event or a terminal
// control signal. Control frames are a distinct type on the wire, so
// decoding never inspects log message content.
type Frame struct {
	Type    string
	Event   *Event
	Control string
}

type controlPayload struct {
	Code string `json:"code"`
}

// frameReader decodes SSE frames from a response body. Frames are
// "event:"/"data:" field lines terminated by a blank line; comment
// lines (keep-alives) are skipped.
type frameReader struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
}

func newFrameReader(body io.ReadCloser) *frameReader {
	return &frameReader{
		scanner: bufio.NewScanner(body),
		body:    body,
	}
}

// Next returns the next frame, or io.EOF when the stream ends.
func (r *frameReader) Next() (*Frame, error) {
	var event, data string
	var hasData bool

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !hasData {
				continue
			}
			frame, err := decodeFrame(event, data)
			if err != nil {
				return nil, err
			}
			if frame == nil {
				// Unrecognized frame type; skip it.
				event, data, hasData = "", "", false
				continue
			}
			return frame, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseField(line)
		switch field {
		case "event":
			event = value
		case "data":
			if hasData {
				data += "\n" + value
			} else {
				data = value
				hasData = true
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *frameReader) Close() error {
	return r.body.Close()
}

func decodeFrame(event, data string) (*Frame, error) {
	switch event {
	case frameLog, "":
		var e Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode log frame: %w", err)
		}
		return &Frame{Type: frameLog, Event: &e}, nil
	case frameControl:
		var p controlPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode control frame: %w", err)
		}
		return &Frame{Type: frameControl, Control: p.Code}, nil
	}
	return nil, nil
}

// parseField splits an SSE line into field name and value, dropping
// the single optional space after the colon.
func parseField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
