package stream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamlog/streamlog/internal/session"
)

// Controller binds one delivery queue to one outgoing frame stream.
// It enforces the single-consumer discipline via the queue's attach
// claim and an idle ceiling independent of any network-level timeout,
// so a stream is always eventually reclaimed.
type Controller struct {
	popTimeout time.Duration // keep-alive cadence while the queue is quiet
	idleLimit  time.Duration // absolute idle ceiling before idle-timeout
	log        zerolog.Logger
}

// NewController creates a controller. popTimeout is how long a single
// dequeue waits before a keep-alive is written; idleLimit is the total
// quiet time after which the stream is terminated with an idle-timeout
// control frame.
func NewController(popTimeout, idleLimit time.Duration, log zerolog.Logger) *Controller {
	if popTimeout <= 0 {
		popTimeout = 15 * time.Second
	}
	if idleLimit <= 0 {
		idleLimit = 5 * time.Minute
	}
	return &Controller{popTimeout: popTimeout, idleLimit: idleLimit, log: log}
}

// Stream drains q into w until a terminal control item arrives, the
// idle ceiling is exhausted, or the peer goes away (ctx cancelled or a
// write fails). It claims the queue's consumer slot for the duration;
// session.ErrConsumerActive is returned, without touching the stream,
// when another consumer already holds it.
func (c *Controller) Stream(ctx context.Context, q *session.Queue, w FrameWriter) error {
	if err := q.Attach(); err != nil {
		return err
	}
	defer q.Detach()

	lastActivity := time.Now()
	for {
		it, err := q.Pop(ctx, c.popTimeout)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// Peer disconnected; producers keep buffering.
			return nil

		case errors.Is(err, session.ErrTimeout):
			if time.Since(lastActivity) >= c.idleLimit {
				c.log.Debug().Msg("stream idle ceiling reached")
				_ = w.WriteControl(session.ControlIdleTimeout)
				return nil
			}
			if err := w.WriteKeepAlive(); err != nil {
				return nil
			}

		case err != nil:
			return err

		case it.IsControl():
			_ = w.WriteControl(it.Control)
			return nil

		default:
			if err := w.WriteEvent(it.Event); err != nil {
				return nil
			}
			lastActivity = time.Now()
		}
	}
}
