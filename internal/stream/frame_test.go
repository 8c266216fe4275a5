package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/streamlog/streamlog/internal/session"
)

func TestSSEWriterHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewSSEWriter(rec); err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
}

func TestSSEWriterEventFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	e := session.NewEvent(session.LevelInfo, session.OriginManual, "build started")
	if err := w.WriteEvent(e); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: log\ndata: ") {
		t.Fatalf("frame prefix wrong:\n%s", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("frame not blank-line terminated:\n%q", body)
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(body, "event: log\ndata: "), "\n\n")
	var decoded session.Event
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.Message != "build started" || decoded.Level != session.LevelInfo || decoded.Origin != session.OriginManual {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("decoded timestamp is zero")
	}
}

func TestSSEWriterControlFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if err := w.WriteControl(session.ControlSessionClosed); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}

	want := "event: control\ndata: {\"code\":\"session-closed\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
}

func TestSSEWriterKeepAlive(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if err := w.WriteKeepAlive(); err != nil {
		t.Fatalf("WriteKeepAlive: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, ": keepalive") {
		t.Errorf("keep-alive is not an SSE comment: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("keep-alive not blank-line terminated: %q", body)
	}
}

// nonFlusher hides http.Flusher from the writer.
type nonFlusher struct{ http.ResponseWriter }

func TestSSEWriterRequiresFlusher(t *testing.T) {
	if _, err := NewSSEWriter(nonFlusher{httptest.NewRecorder()}); err == nil {
		t.Error("NewSSEWriter accepted a non-flushing writer")
	}
}

func TestWSFrameShape(t *testing.T) {
	e := session.Event{
		Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		Level:     session.LevelInfo,
		Message:   "hello",
		Origin:    session.OriginManual,
	}
	data, err := json.Marshal(wsFrame{Type: FrameLog, Event: &e})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"type":"log"`) {
		t.Errorf("log frame missing type: %s", data)
	}

	data, err = json.Marshal(wsFrame{Type: FrameControl, Code: session.ControlIdleTimeout})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `{"type":"control","code":"idle-timeout"}` {
		t.Errorf("control frame = %s", got)
	}
}
