package session

import (
	"sync"
	"time"
)

// Monitor is the per-session background producer as the session sees
// it. The concrete implementation lives in internal/monitor and is
// injected through a MonitorFactory so this package stays free of a
// dependency on the sampling machinery.
type Monitor interface {
	// Start launches the periodic task. Calling Start on a running
	// monitor is a no-op.
	Start()
	// Stop cancels the task and waits (bounded) until it has
	// acknowledged cancellation. No pushes happen after Stop returns.
	// Stopping a stopped monitor is a no-op.
	Stop()
}

// MonitorFactory builds a monitor that pushes into the given queue.
type MonitorFactory func(q *Queue) Monitor

// Session binds one delivery queue, one optional background monitor,
// and at most one live stream consumer.
type Session struct {
	ID        string
	CreatedAt time.Time

	queue *Queue

	mu            sync.Mutex
	monitor       Monitor
	monitorActive bool
	closed        bool
}

// Queue returns the session's delivery queue. The queue is owned by
// the session; callers hold it only to push or (for the single stream
// controller) to attach and pop.
func (s *Session) Queue() *Queue {
	return s.queue
}

// Submit pushes a manual log event onto the session's queue. Submits
// to a closed session are discarded.
func (s *Session) Submit(level Level, message string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.queue.PushEvent(NewEvent(level, OriginManual, message))
}

// StartMonitoring starts the background monitor. It is idempotent;
// the return value reports whether the monitor was newly started.
// A closed session refuses to start: a stale handle obtained before
// Delete must not re-activate a producer nothing can stop.
func (s *Session) StartMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.monitorActive || s.monitor == nil {
		return false
	}
	s.monitor.Start()
	s.monitorActive = true
	s.queue.PushEvent(NewEvent(LevelInfo, OriginSystem, "system monitoring started"))
	return true
}

// StopMonitoring stops the background monitor, blocking (bounded)
// until no further monitor pushes can occur. It is idempotent; the
// return value reports whether an active monitor was stopped.
func (s *Session) StopMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopMonitoringLocked()
}

func (s *Session) stopMonitoringLocked() bool {
	if !s.monitorActive || s.monitor == nil {
		return false
	}
	s.monitor.Stop()
	s.monitorActive = false
	s.queue.PushEvent(NewEvent(LevelInfo, OriginSystem, "system monitoring stopped"))
	return true
}

// Monitoring reports whether the background monitor is active.
func (s *Session) Monitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorActive
}

// close tears the session down: the monitor is stopped first so no
// producer outlives the session, then the terminal control is pushed
// so a live stream (or a later attach) terminates cleanly.
func (s *Session) close() (monitorStopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.monitorActive && s.monitor != nil {
		s.monitor.Stop()
		s.monitorActive = false
		monitorStopped = true
	}
	s.queue.PushControl(ControlSessionClosed)
	return monitorStopped
}
