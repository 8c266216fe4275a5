package session

import "time"

// Level classifies an event's severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// ParseLevel maps a user-supplied level string to a Level. The second
// return value reports whether the input was recognized; unrecognized
// input falls back to INFO.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "", "INFO", "info":
		return LevelInfo, true
	case "ERROR", "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Origin identifies which producer created an event.
type Origin string

const (
	OriginMonitor Origin = "monitor"
	OriginManual  Origin = "manual"
	OriginSystem  Origin = "system"
)

// Event is one timestamped, leveled log record. Immutable once constructed.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Origin    Origin    `json:"origin"`
}

// NewEvent constructs an event stamped with the current time.
func NewEvent(level Level, origin Origin, message string) Event {
	return Event{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Origin:    origin,
	}
}

// Control is a terminal signal delivered through the same channel as
// events. Once a control item is delivered the stream ends and the
// queue is done.
type Control string

const (
	ControlNone            Control = ""
	ControlSessionClosed   Control = "session-closed"
	ControlSessionNotFound Control = "session-not-found"
	ControlIdleTimeout     Control = "idle-timeout"
)

// Item is what travels through a delivery queue: either an event or a
// terminal control signal.
type Item struct {
	Event   Event
	Control Control
}

// IsControl reports whether the item carries a control signal.
func (it Item) IsControl() bool {
	return it.Control != ControlNone
}
