package pump

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

const (
	// minLockValidity is substituted for a negative "remaining" computed
	// from a stale locked-until instant, compensating for clock skew
	// without giving up on renewal entirely.
	minLockValidity = 4 * time.Second

	// maxRenewBuffer caps how much of the remaining lock lifetime is held
	// back as a safety margin, so very long locks still renew on a
	// reasonable cadence.
	maxRenewBuffer = 10 * time.Second

	// renewalRetryFloor is the smallest delay used when rescheduling after
	// a non-terminal renew failure, guarding against a tight failure loop
	// should the computed interval collapse to near zero.
	renewalRetryFloor = 250 * time.Millisecond
)

// nextRenewDelay implements the interval policy of the renewal loop: sleep
// remaining-buffer before the next renew, where buffer is at most half of
// remaining and at most maxRenewBuffer.
func nextRenewDelay(lockedUntil, now time.Time) time.Duration {
	remaining := lockedUntil.Sub(now)
	if remaining < 0 {
		remaining = minLockValidity
	}
	buffer := remaining / 2
	if buffer > maxRenewBuffer {
		buffer = maxRenewBuffer
	}
	delay := remaining - buffer
	if delay < 0 {
		delay = 0
	}
	return delay
}

// isTerminalRenewalError reports whether err makes further renewal
// pointless: the lock is already gone, or the operation (and likely the
// whole pump) is being torn down.
func isTerminalRenewalError(err error) bool {
	return errors.Is(err, azbus.ErrLockLost) || errors.Is(err, azbus.ErrOperationCancelled) || errors.Is(err, context.Canceled)
}

// renewalLoop schedules periodic lock-renewal calls with an adaptive
// interval derived from the current locked-until instant. It is the
// abstraction shared by the message renewal loop and the session renewal
// loop (spec §4.1); those two only differ in their lockedUntil/renew/
// onIteration callbacks.
type renewalLoop struct {
	log    Logger
	phase  ExceptionPhase
	notify ExceptionSink

	// lockedUntil returns the current locked-until instant without
	// performing a renewal, used to size the next sleep.
	lockedUntil func() time.Time

	// renew performs the actual renew call.
	renew func(ctx context.Context) (time.Time, error)

	// onIteration runs before every sleep; returning false terminates the
	// loop cleanly (used by the message renewal loop's stop-at check).
	// May be nil.
	onIteration func() bool

	cancelled atomic.Bool
	cancelOnce sync.Once
	stopCh     chan struct{}
	done       chan struct{}
}

func newRenewalLoop(log Logger, phase ExceptionPhase, notify ExceptionSink, lockedUntil func() time.Time, renew func(context.Context) (time.Time, error), onIteration func() bool) *renewalLoop {
	return &renewalLoop{
		log:         log,
		phase:       phase,
		notify:      notify,
		lockedUntil: lockedUntil,
		renew:       renew,
		onIteration: onIteration,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (l *renewalLoop) start() {
	go l.run()
}

// cancel is idempotent and safe to call from any goroutine, including from
// within the loop itself (the guard-timer path in the session tracker calls
// it from a timer goroutine while the loop may be mid-iteration).
func (l *renewalLoop) cancel() {
	l.cancelOnce.Do(func() {
		l.cancelled.Store(true)
		close(l.stopCh)
	})
}

// wait blocks until the loop goroutine has exited.
func (l *renewalLoop) wait() {
	<-l.done
}

func (l *renewalLoop) run() {
	defer close(l.done)

	for {
		if l.cancelled.Load() {
			return
		}
		if l.onIteration != nil && !l.onIteration() {
			return
		}

		delay := nextRenewDelay(l.lockedUntil(), time.Now())
		timer := time.NewTimer(delay)
		select {
		case <-l.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		// A cancel racing with the timer firing must still prevent the
		// renew call: check again immediately before issuing it.
		if l.cancelled.Load() {
			return
		}

		_, err := l.renew(context.Background())
		if err != nil {
			if l.notify != nil {
				l.notify(err, l.phase)
			}
			if isTerminalRenewalError(err) {
				return
			}
			// Reschedule promptly; the floor below prevents a tight retry
			// loop if lockedUntil is already very close to now.
			if d := nextRenewDelay(l.lockedUntil(), time.Now()); d < renewalRetryFloor {
				select {
				case <-l.stopCh:
					return
				case <-time.After(renewalRetryFloor - d):
				}
			}
		}
	}
}
