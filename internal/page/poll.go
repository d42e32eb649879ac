package page

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultPollInterval is how often completion predicates are re-evaluated
	DefaultPollInterval = 2 * time.Second
	// NoDeadline disables the overall wait deadline
	NoDeadline time.Duration = 0
)

// ErrDeadline is returned when a predicate is still false after the
// configured deadline
var ErrDeadline = errors.New("predicate deadline exceeded")

// Poller suspends until a predicate over the page becomes true
type Poller struct {
	Interval time.Duration
	Deadline time.Duration
}

// NewPoller creates a poller. A non-positive interval falls back to
// DefaultPollInterval; a deadline of NoDeadline waits forever.
func NewPoller(interval, deadline time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if deadline < 0 {
		deadline = NoDeadline
	}
	return &Poller{Interval: interval, Deadline: deadline}
}

// Await evaluates pred immediately and then once per interval until it is
// true, evaluation fails, ctx is done or the deadline passes.
func (p *Poller) Await(ctx context.Context, pg Page, pred Predicate) error {
	if p.Deadline != NoDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := pg.Evaluate(ctx, pred.Script(), &ok); err != nil {
			if ctx.Err() != nil {
				return p.ctxErr(ctx, pred)
			}
			return fmt.Errorf("evaluate %q: %w", pred, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return p.ctxErr(ctx, pred)
		case <-ticker.C:
		}
	}
}

func (p *Poller) ctxErr(ctx context.Context, pred Predicate) error {
	if p.Deadline != NoDeadline && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %q", ErrDeadline, p.Deadline, pred)
	}
	return ctx.Err()
}
