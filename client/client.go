package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// State is the reconnector's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError  // transport failed, retry scheduled
	StateFailed // retries exhausted, terminal
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateError:        "error",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Msg is a typed notification delivered on Streamer.Messages.
type Msg interface{ msg() }

// ConnectedMsg is sent when the stream opens.
type ConnectedMsg struct{}

// EventMsg delivers one decoded log event.
type EventMsg struct{ Event Event }

// ClosedMsg is sent when the server ends the stream with a terminal
// control frame (session-closed, session-not-found, idle-timeout).
// The streamer does not reconnect after a graceful close.
type ClosedMsg struct{ Reason string }

// RetryingMsg is sent when a transport failure schedules a reconnect.
type RetryingMsg struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// FailedMsg is sent once retries are exhausted. Terminal.
type FailedMsg struct{ Err error }

func (ConnectedMsg) msg() {}
func (EventMsg) msg()     {}
func (ClosedMsg) msg()    {}
func (RetryingMsg) msg()  {}
func (FailedMsg) msg()    {}

const (
	defaultBaseDelay  = time.Second
	defaultMaxRetries = 5
)

// Option configures a Streamer.
type Option func(*Streamer)

// WithHTTPClient overrides the HTTP client used to open streams.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Streamer) { s.httpc = c }
}

// WithBaseDelay sets the backoff unit: attempt n waits n * baseDelay.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Streamer) { s.baseDelay = d }
}

// WithMaxRetries sets how many reconnect attempts are made before the
// streamer gives up.
func WithMaxRetries(n int) Option {
	return func(s *Streamer) { s.maxRetries = n }
}

// Streamer opens a session's log stream, decodes frames, and
// reconnects with bounded backoff on transport failures. Consumers
// read typed messages from Messages and must drain the channel until
// a ClosedMsg or FailedMsg arrives (or Stop is called).
type Streamer struct {
	baseURL    string
	sessionID  string
	httpc      *http.Client
	baseDelay  time.Duration
	maxRetries int

	mu         sync.Mutex
	state      State
	retryCount int
	retryTimer *time.Timer
	cancel     context.CancelFunc
	gen        uint64 // bumped per connection attempt; stale goroutines check it

	msgs chan Msg

	// retryHook observes scheduled retries; used by tests.
	retryHook func(attempt int, delay time.Duration)
}

// New creates a streamer for one session on one server. The stream is
// not opened until Start.
func New(baseURL, sessionID string, opts ...Option) *Streamer {
	s := &Streamer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpc:      http.DefaultClient,
		baseDelay:  defaultBaseDelay,
		maxRetries: defaultMaxRetries,
		msgs:       make(chan Msg, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Messages returns the notification channel.
func (s *Streamer) Messages() <-chan Msg {
	return s.msgs
}

// State returns the current connection state.
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the stream. No-op unless the streamer is disconnected
// or failed.
func (s *Streamer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected && s.state != StateFailed {
		return
	}
	s.retryCount = 0
	s.connectLocked()
}

// Stop cancels the connection and any pending scheduled retry, and
// returns the streamer to disconnected. Valid in any state and
// idempotent.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.state = StateDisconnected
}

// Reconnect resets the retry counter and re-enters connecting,
// regardless of the current state. A pending scheduled retry is
// cancelled first.
func (s *Streamer) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.retryCount = 0
	s.connectLocked()
}

func (s *Streamer) cancelPendingLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Streamer) connectLocked() {
	s.state = StateConnecting
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, s.gen)
}

func (s *Streamer) run(ctx context.Context, gen uint64) {
	frames, err := s.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // stopped while dialing
		}
		s.scheduleRetry(gen, err)
		return
	}
	defer frames.Close()

	s.mu.Lock()
	if ctx.Err() != nil || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.retryCount = 0
	s.mu.Unlock()
	s.msgs <- ConnectedMsg{}

	for {
		frame, err := frames.Next()
		if err != nil {
			if ctx.Err() != nil {
				return // stopped
			}
			s.scheduleRetry(gen, err)
			return
		}

		switch frame.Type {
		case frameLog:
			s.msgs <- EventMsg{Event: *frame.Event}
		case frameControl:
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return // superseded by a newer connection
			}
			if s.cancel != nil {
				s.cancel()
				s.cancel = nil
			}
			s.state = StateDisconnected
			s.mu.Unlock()
			s.msgs <- ClosedMsg{Reason: frame.Control}
			return
		}
	}
}

// open performs the HTTP request and validates the response.
func (s *Streamer) open(ctx context.Context) (*frameReader, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/logs", s.baseURL, s.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return newFrameReader(resp.Body), nil
}

// scheduleRetry increments the retry counter and arms a timer for
// retryCount * baseDelay. Once the counter exceeds maxRetries the
// streamer transitions to the terminal failed state instead.
func (s *Streamer) scheduleRetry(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateDisconnected || s.state == StateFailed {
		// Stopped, failed, or superseded while the transport was dying.
		s.mu.Unlock()
		return
	}

	s.retryCount++
	if s.retryCount > s.maxRetries {
		s.state = StateFailed
		s.cancel = nil
		s.mu.Unlock()
		s.msgs <- FailedMsg{Err: fmt.Errorf("giving up after %d attempts: %w", s.maxRetries, cause)}
		return
	}

	attempt := s.retryCount
	delay := time.Duration(attempt) * s.baseDelay
	s.state = StateError
	s.cancel = nil
	if s.retryHook != nil {
		s.retryHook(attempt, delay)
	}
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != StateError {
			return // stopped or manually reconnected in the meantime
		}
		s.retryTimer = nil
		s.connectLocked()
	})
	s.mu.Unlock()

	s.msgs <- RetryingMsg{Attempt: attempt, Delay: delay, Err: cause}
}
