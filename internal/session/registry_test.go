package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeMonitor satisfies Monitor without sampling anything.
type fakeMonitor struct {
	started int
	stopped int
}

func (m *fakeMonitor) Start() { m.started++ }
func (m *fakeMonitor) Stop()  { m.stopped++ }

func fakeFactory(q *Queue) Monitor { return &fakeMonitor{} }

func newTestRegistry() *Registry {
	return NewRegistry(fakeFactory, 0, zerolog.Nop())
}

func TestRegistryCreateDistinctIDs(t *testing.T) {
	r := newTestRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := r.Create()
		if s.ID == "" {
			t.Fatal("Create returned empty id")
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
	if got := r.Count(); got != 100 {
		t.Errorf("Count() = %d, want 100", got)
	}
}

func TestRegistryCreateSeedsQueue(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	it, err := s.Queue().Pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if it.Event.Origin != OriginSystem {
		t.Errorf("first event origin = %s, want %s", it.Event.Origin, OriginSystem)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := newTestRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Error("Get returned a session for an unknown id")
	}
}

func TestRegistryDeleteTwice(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := r.Delete(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if got := r.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestRegistryDeletePushesSessionClosed(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()
	q := s.Queue()

	// Drain the creation event, then delete.
	if _, err := q.Pop(context.Background(), time.Second); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	it, err := q.Pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Pop after delete: %v", err)
	}
	if it.Control != ControlSessionClosed {
		t.Errorf("got %+v, want control %q", it, ControlSessionClosed)
	}
}

func TestRegistryDeleteUnblocksPop(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()
	q := s.Queue()
	if _, err := q.Pop(context.Background(), time.Second); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got := make(chan Item, 1)
	go func() {
		it, err := q.Pop(context.Background(), 5*time.Second)
		if err != nil {
			t.Errorf("Pop: %v", err)
		}
		got <- it
	}()

	time.Sleep(20 * time.Millisecond)
	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	select {
	case it := <-got:
		if it.Control != ControlSessionClosed {
			t.Errorf("got %+v, want control %q", it, ControlSessionClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop not unblocked by Delete")
	}
}

func TestRegistryListReflectsMonitoring(t *testing.T) {
	r := newTestRegistry()
	a := r.Create()
	r.Create()
	a.StartMonitoring()

	monitoring := 0
	for _, info := range r.List() {
		if info.Monitoring {
			monitoring++
			if info.ID != a.ID {
				t.Errorf("monitoring reported for %s, want %s", info.ID, a.ID)
			}
		}
	}
	if monitoring != 1 {
		t.Errorf("monitoring sessions = %d, want 1", monitoring)
	}
}

func TestRegistryShutdown(t *testing.T) {
	r := newTestRegistry()
	a := r.Create()
	b := r.Create()
	c := r.Create()
	a.StartMonitoring()

	stopped, cleared := r.Shutdown()
	if stopped != 1 {
		t.Errorf("monitorsStopped = %d, want 1", stopped)
	}
	if cleared != 3 {
		t.Errorf("sessionsCleared = %d, want 3", cleared)
	}
	if got := r.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}

	// Every queue is terminally closed.
	for _, s := range []*Session{a, b, c} {
		if !s.Queue().Closed() {
			t.Errorf("session %s queue not closed after Shutdown", s.ID)
		}
	}
}

func TestSessionMonitoringIdempotent(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()

	if !s.StartMonitoring() {
		t.Error("first StartMonitoring = false, want true")
	}
	if s.StartMonitoring() {
		t.Error("second StartMonitoring = true, want false")
	}
	if !s.Monitoring() {
		t.Error("Monitoring() = false while active")
	}

	if !s.StopMonitoring() {
		t.Error("first StopMonitoring = false, want true")
	}
	if s.StopMonitoring() {
		t.Error("second StopMonitoring = true, want false")
	}
}

// A handle obtained before Delete must not re-activate the monitor:
// the registry no longer knows the session, so nothing could ever stop
// the sampling goroutine again.
func TestStartMonitoringAfterDeleteRefused(t *testing.T) {
	var last *fakeMonitor
	r := NewRegistry(func(q *Queue) Monitor {
		last = &fakeMonitor{}
		return last
	}, 0, zerolog.Nop())

	s := r.Create()
	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if s.StartMonitoring() {
		t.Error("StartMonitoring = true on a deleted session")
	}
	if s.Monitoring() {
		t.Error("Monitoring() = true on a deleted session")
	}
	if last.started != 0 {
		t.Errorf("monitor started %d times after delete, want 0", last.started)
	}
}

func TestSubmitAfterDeleteDiscarded(t *testing.T) {
	r := newTestRegistry()
	s := r.Create()
	q := s.Queue()
	if _, err := q.Pop(context.Background(), time.Second); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	s.Submit(LevelInfo, "too late")

	// Only the terminal control remains; the late submit left no trace.
	it, err := q.Pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if it.Control != ControlSessionClosed {
		t.Errorf("got %+v, want control %q", it, ControlSessionClosed)
	}
	if got := q.Len(); got != 0 {
		t.Errorf("queue depth = %d after late submit, want 0", got)
	}
}

func TestSessionWithoutMonitorFactory(t *testing.T) {
	r := NewRegistry(nil, 0, zerolog.Nop())
	s := r.Create()

	if s.StartMonitoring() {
		t.Error("StartMonitoring = true with no monitor factory")
	}
	if s.Monitoring() {
		t.Error("Monitoring() = true with no monitor factory")
	}
}
