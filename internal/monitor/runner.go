package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamlog/streamlog/internal/session"
)

// Config controls a runner's sampling behavior.
type Config struct {
	// Interval between samples.
	Interval time.Duration
	// StopWait bounds how long Stop blocks for the in-flight cycle to
	// acknowledge cancellation.
	StopWait time.Duration
	// Sample produces one metrics sample. Nil selects SampleSystem.
	Sample SampleFunc
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.StopWait <= 0 {
		c.StopWait = 2 * time.Second
	}
	if c.Sample == nil {
		c.Sample = SampleSystem
	}
}

// Runner is the background metric producer for one session. It samples
// system metrics every Interval and pushes the result as monitor-origin
// events onto the session's delivery queue. The state machine is
// stopped -> running -> stopped; Start and Stop are both idempotent.
type Runner struct {
	queue  *session.Queue
	cfg    Config
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner that pushes into q. It does not start
// sampling until Start is called.
func NewRunner(q *session.Queue, cfg Config, log zerolog.Logger) *Runner {
	cfg.ApplyDefaults()
	return &Runner{queue: q, cfg: cfg, log: log}
}

// Factory adapts NewRunner to the registry's monitor factory signature.
func Factory(cfg Config, log zerolog.Logger) session.MonitorFactory {
	return func(q *session.Queue) session.Monitor {
		return NewRunner(q, cfg, log)
	}
}

// Start launches the sampling goroutine. No-op if already running.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.run(ctx, done)
	r.log.Debug().Dur("interval", r.cfg.Interval).Msg("monitor started")
}

// Stop cancels the sampling goroutine and waits, bounded by StopWait,
// for the in-flight cycle to observe the cancellation. Once Stop
// returns no further monitor events are pushed. No-op if not running.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}

	r.cancel()
	select {
	case <-r.done:
	case <-time.After(r.cfg.StopWait):
		r.log.Warn().Msg("monitor did not acknowledge stop in time")
	}
	r.cancel = nil
	r.done = nil
}

// Running reports whether the sampling goroutine is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// cycle takes one sample and pushes the resulting event. A sampling
// failure is converted into an ERROR event rather than terminating the
// monitor. Nothing is pushed once the context is cancelled, so Stop's
// wait on the goroutine guarantees its postcondition.
func (r *Runner) cycle(ctx context.Context) {
	m, err := r.cfg.Sample()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.log.Error().Err(err).Msg("metric sampling failed")
		r.queue.PushEvent(session.NewEvent(session.LevelError, session.OriginMonitor,
			"metric sampling failed: "+err.Error()))
		return
	}

	if msg := m.Critical(); msg != "" {
		r.queue.PushEvent(session.NewEvent(session.LevelError, session.OriginMonitor, msg))
		return
	}
	r.queue.PushEvent(session.NewEvent(session.LevelInfo, session.OriginMonitor, m.Report()))
}
