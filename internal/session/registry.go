package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session not found")

// Registry owns the mapping from session id to Session. Structural
// mutations (create, delete) take the registry lock; per-session state
// is guarded by each session's own lock so sessions never contend
// with each other.
type Registry struct {
	log        zerolog.Logger
	newMonitor MonitorFactory
	queueCap   int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. newMonitor builds the background
// producer for each new session; queueCap bounds each session's
// delivery queue (<= 0 selects DefaultQueueCapacity).
func NewRegistry(newMonitor MonitorFactory, queueCap int, log zerolog.Logger) *Registry {
	return &Registry{
		log:        log,
		newMonitor: newMonitor,
		queueCap:   queueCap,
		sessions:   make(map[string]*Session),
	}
}

// Create allocates a new session with an empty queue and returns it.
func (r *Registry) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		queue:     NewQueue(r.queueCap),
	}
	if r.newMonitor != nil {
		s.monitor = r.newMonitor(s.queue)
	}
	s.queue.PushEvent(NewEvent(LevelInfo, OriginSystem, "session created: "+s.ID))

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info().Str("session", s.ID).Msg("session created")
	return s
}

// Get returns the session for id. The handle stays valid until Delete
// is called for that id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes the session and tears it down: the monitor is
// stopped, and the session-closed control is pushed so any live
// stream terminates cleanly. Deleting an unknown id returns
// ErrNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.close()
	r.log.Info().Str("session", id).Msg("session deleted")
	return nil
}

// Info is a point-in-time snapshot of a session, safe to serialize.
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Monitoring bool      `json:"monitoring"`
	QueueDepth int       `json:"queue_depth"`
	Dropped    uint64    `json:"dropped"`
}

// List returns snapshots of all live sessions.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, Info{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			Monitoring: s.Monitoring(),
			QueueDepth: s.Queue().Len(),
			Dropped:    s.Queue().Dropped(),
		})
	}
	return infos
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown deletes every session, stopping monitors and terminating
// live streams. It returns how many monitors were stopped and how
// many sessions were cleared.
func (r *Registry) Shutdown() (monitorsStopped, sessionsCleared int) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if s.close() {
			monitorsStopped++
		}
		sessionsCleared++
	}
	r.log.Info().
		Int("monitors_stopped", monitorsStopped).
		Int("sessions_cleared", sessionsCleared).
		Msg("registry shutdown complete")
	return monitorsStopped, sessionsCleared
}
