package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/porticus-lab/go-pagecap/internal/session"
)

// Run captures pages until the limit is reached, the host runs out of
// pages or Stop is called. With Config.MaxConsecutiveFailures set, that
// many failed pages in a row also end the run. Pages captured before a
// failure stay in the session.
//
// Only one loop runs at a time. Run returns ErrAlreadyRunning and changes
// nothing while another loop is active, including one that was asked to
// stop and has not exited yet.
func (o *Orchestrator) Run(ctx context.Context, limit int) (Outcome, error) {
	sess, gen, err := o.claim(limit)
	if err != nil {
		return Outcome{}, err
	}
	return o.run(ctx, sess, gen)
}

// Start is Run in a new goroutine. The guard is decided before Start
// returns, so ErrAlreadyRunning is reported to the caller directly. The
// channel receives the outcome when the loop ends.
func (o *Orchestrator) Start(ctx context.Context, limit int) (<-chan Outcome, error) {
	sess, gen, err := o.claim(limit)
	if err != nil {
		return nil, err
	}
	done := make(chan Outcome, 1)
	go func() {
		out, _ := o.run(ctx, sess, gen)
		done <- out
	}()
	return done, nil
}

// Active reports whether a loop holds the session.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) claim(limit int) (*session.Session, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return nil, 0, ErrAlreadyRunning
	}
	if o.sess == nil {
		o.sess = session.New(session.DefaultLimit)
	}
	o.sess.TryStart()
	o.sess.SetLimit(limit)
	o.active = true
	o.gen++
	o.lastErr = nil
	return o.sess, o.gen, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, gen uint64) (Outcome, error) {
	out := o.loop(ctx, sess)
	o.finish(&out, sess, gen)
	return out, out.Err
}

func (o *Orchestrator) loop(ctx context.Context, sess *session.Session) Outcome {
	var out Outcome
	log := o.cfg.Logger

	o.setState(Probing, sess)
	if err := o.Probe(ctx); err != nil {
		out.Err = err
		return out
	}
	if err := sleep(ctx, o.cfg.Timing.FirstSettle); err != nil {
		out.Err = err
		return out
	}

	consecutive := 0
	for {
		if !sess.Running() {
			o.setState(Stopping, sess)
			out.Reason = ReasonStopped
			return out
		}
		if sess.Len() >= sess.Limit() {
			out.Reason = ReasonLimit
			return out
		}

		o.setState(Capturing, sess)
		page, err := o.capture(ctx, sess.Len()+1)
		if err != nil {
			if ctx.Err() != nil {
				out.Err = ctx.Err()
				return out
			}
			consecutive++
			out.Failures++
			log.Warn("orchestrator: page capture failed", "attempt", consecutive, "error", err)
			o.emit(Event{Kind: EventPageFailed, State: Capturing, Total: sess.Len(), Limit: sess.Limit(), Err: err})
			if n := o.cfg.MaxConsecutiveFailures; n > 0 && consecutive >= n {
				out.Err = fmt.Errorf("%w: %w", ErrTooManyFailures, err)
				return out
			}
		} else {
			consecutive = 0
			sess.Append(page)
			out.Captured++
			log.Info("orchestrator: page captured", "page", page.Number, "total", sess.Len(), "limit", sess.Limit())
			o.emit(Event{Kind: EventPageCaptured, State: Capturing, Page: page.Number, Total: sess.Len(), Limit: sess.Limit()})
			if sess.Len() >= sess.Limit() {
				out.Reason = ReasonLimit
				return out
			}
		}

		if !sess.Running() {
			o.setState(Stopping, sess)
			out.Reason = ReasonStopped
			return out
		}

		o.setState(Advancing, sess)
		if err := o.nav.Next(ctx); err != nil {
			if errors.Is(err, ErrEndOfDocument) || errors.Is(err, ErrNoNavigation) {
				log.Info("orchestrator: no further pages", "reason", err)
				out.Reason = ReasonEndOfDocument
				return out
			}
			out.Err = fmt.Errorf("orchestrator: advance: %w", err)
			return out
		}
		if err := sleep(ctx, o.cfg.Timing.AdvanceSettle); err != nil {
			out.Err = err
			return out
		}
	}
}

// finish records the outcome and releases the loop's claim. A stale
// generation never releases a later loop.
func (o *Orchestrator) finish(out *Outcome, sess *session.Session, gen uint64) {
	if out.Err != nil {
		out.State = Failed
		out.Reason = ReasonError
		o.cfg.Logger.Error("orchestrator: capture failed", "captured", out.Captured, "error", out.Err)
	} else {
		out.State = Done
		o.cfg.Logger.Info("orchestrator: capture finished", "reason", out.Reason, "captured", out.Captured)
	}

	o.mu.Lock()
	if gen == o.gen {
		o.state = out.State
		if out.Err != nil {
			o.lastErr = out.Err
		}
		o.active = false
		sess.Stop()
	}
	o.mu.Unlock()
	o.emit(Event{Kind: EventState, State: out.State, Total: sess.Len(), Limit: sess.Limit()})
}

func (o *Orchestrator) setState(s State, sess *session.Session) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(Event{Kind: EventState, State: s, Total: sess.Len(), Limit: sess.Limit()})
}

func (o *Orchestrator) emit(e Event) {
	if o.cfg.OnEvent != nil {
		o.cfg.OnEvent(e)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
