package client

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func reader(s string) *frameReader {
	return newFrameReader(io.NopCloser(strings.NewReader(s)))
}

func TestFrameReaderLogFrame(t *testing.T) {
	r := reader("event: log\ndata: {\"timestamp\":\"2026-08-23T10:00:00Z\",\"level\":\"INFO\",\"message\":\"hello\",\"origin\":\"manual\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Type != frameLog || f.Event == nil {
		t.Fatalf("frame = %+v, want log", f)
	}
	if f.Event.Message != "hello" || f.Event.Level != "INFO" || f.Event.Origin != "manual" {
		t.Errorf("event = %+v", f.Event)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame: err = %v, want EOF", err)
	}
}

func TestFrameReaderControlFrame(t *testing.T) {
	r := reader("event: control\ndata: {\"code\":\"session-closed\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Type != frameControl {
		t.Fatalf("frame type = %q, want control", f.Type)
	}
	if f.Control != ControlSessionClosed {
		t.Errorf("control = %q, want %q", f.Control, ControlSessionClosed)
	}
}

func TestFrameReaderSkipsComments(t *testing.T) {
	r := reader(": keepalive 1755950400\n\n: keepalive 1755950415\n\nevent: control\ndata: {\"code\":\"idle-timeout\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Control != ControlIdleTimeout {
		t.Errorf("control = %q, want %q", f.Control, ControlIdleTimeout)
	}
}

func TestFrameReaderDefaultsToLog(t *testing.T) {
	// No event field at all: treat as a log frame.
	r := reader("data: {\"message\":\"bare\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Type != frameLog || f.Event.Message != "bare" {
		t.Errorf("frame = %+v", f)
	}
}

func TestFrameReaderSkipsUnknownTypes(t *testing.T) {
	r := reader("event: metrics\ndata: {}\n\nevent: log\ndata: {\"message\":\"after\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Type != frameLog || f.Event.Message != "after" {
		t.Errorf("frame = %+v, want the log frame after the unknown one", f)
	}
}

func TestFrameReaderMultiLineData(t *testing.T) {
	r := reader("event: log\ndata: {\"message\":\n" + "data: \"joined\"}\n\n")

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Event.Message != "joined" {
		t.Errorf("message = %q, want %q", f.Event.Message, "joined")
	}
}

func TestFrameReaderBadJSON(t *testing.T) {
	r := reader("event: log\ndata: {broken\n\n")
	if _, err := r.Next(); err == nil {
		t.Error("Next accepted malformed frame data")
	}
}

func TestFrameReaderEmptyStream(t *testing.T) {
	r := reader("")
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		line, field, value string
	}{
		{"event: log", "event", "log"},
		{"data:no-space", "data", "no-space"},
		{"data:  two spaces", "data", " two spaces"},
		{"nocolon", "nocolon", ""},
	}
	for _, tt := range tests {
		field, value := parseField(tt.line)
		if field != tt.field || value != tt.value {
			t.Errorf("parseField(%q) = (%q, %q), want (%q, %q)", tt.line, field, value, tt.field, tt.value)
		}
	}
}
