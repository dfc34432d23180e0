package pump

import (
	"context"
	"sync"
	"time"
)

// sessionTracker is the per-session coordination state described in spec
// §4.5: it decides, from the N inner worker loops of a single accepted
// session, when every one of them has observed "no message or exception"
// simultaneously, and only then releases the session.
//
// The "shared deferred result" of the source is implemented here as a
// channel that is closed exactly once per parking epoch; the boolean
// outcome is read from retryResult once the channel is closed. A fresh
// epoch (fresh channel) is created lazily, the first time a worker parks
// after the previous epoch resolved - this avoids resolving a stale
// channel and matches notifyMessageReceived's reset of the parked count to
// zero.
type sessionTracker struct {
	log        Logger
	notify     ExceptionSink
	numWorkers int

	session   sessionReceiver
	renewLoop *renewalLoop
	onClose   SessionCloseFunc

	maxAutoRenewDuration time.Duration

	mtx         sync.Mutex
	parked      int
	resolved    bool
	retryResult bool
	retryDone   chan struct{}

	releaseOnce sync.Once
}

func newSessionTracker(log Logger, notify ExceptionSink, session sessionReceiver, numWorkers int, renewLoop *renewalLoop, onClose SessionCloseFunc, maxAutoRenewDuration time.Duration) *sessionTracker {
	return &sessionTracker{
		log:                  log,
		notify:               notify,
		numWorkers:           numWorkers,
		session:              session,
		renewLoop:            renewLoop,
		onClose:              onClose,
		maxAutoRenewDuration: maxAutoRenewDuration,
		resolved:             true, // so the first call creates a fresh epoch
	}
}

// shouldRetryOnNoMessageOrException parks the calling worker. It returns
// true once woken if the worker should go back to receiving (some sibling
// received a message), or false if the session has drained and this
// worker's loop should end, or if ctx is cancelled while parked - a
// closing pump must not leave a parked worker waiting on siblings that
// have already exited via the ctx.Err() guard at the top of their loop
// and will never park again. The worker that observes the Nth park
// performs the session-release handshake synchronously, inline, before
// returning false - by the time that worker returns false,
// OnCloseSessionAsync has already run for that session. Its parked siblings
// are woken as soon as the epoch resolves and may return false before the
// release has finished.
func (t *sessionTracker) shouldRetryOnNoMessageOrException(ctx context.Context) bool {
	t.mtx.Lock()
	if t.resolved {
		t.retryDone = make(chan struct{})
		t.resolved = false
		t.parked = 0
	}
	t.parked++
	ch := t.retryDone
	isLast := t.parked >= t.numWorkers
	if isLast {
		t.retryResult = false
		t.resolved = true
		close(ch)
	}
	t.mtx.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		t.mtx.Lock()
		if t.retryDone == ch && !t.resolved {
			// This epoch never reached quorum and never will from this
			// worker; un-park so it doesn't count toward a quorum that
			// can now only be reached by workers still willing to park.
			t.parked--
		}
		t.mtx.Unlock()
		if isLast {
			t.releaseSession(ctx)
		}
		return false
	}

	t.mtx.Lock()
	result := t.retryResult
	t.mtx.Unlock()

	if isLast {
		t.releaseSession(ctx)
	}
	return result
}

// notifyMessageReceived is called by a worker the moment it successfully
// receives a message. It resolves the current parking epoch with true,
// waking any parked siblings immediately, and resets the parked count so
// the next idle period starts a fresh epoch.
func (t *sessionTracker) notifyMessageReceived() {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if !t.resolved {
		t.retryResult = true
		t.resolved = true
		close(t.retryDone)
	}
	t.parked = 0
}

// releaseSession performs the drain handshake exactly once: cancel the
// session renewal loop under a guard timer (in case the close callback
// hangs), invoke the user's close callback, cancel the guard, cancel the
// renewal loop again defensively (cancel is idempotent - see spec §9 open
// question), close the session, and report any failures. It never
// suspends while sessionTracker's own mutex is held; it always runs after
// the mutex in shouldRetryOnNoMessageOrException has been released.
func (t *sessionTracker) releaseSession(ctx context.Context) {
	t.releaseOnce.Do(func() {
		guard := time.AfterFunc(t.maxAutoRenewDuration, func() {
			t.renewLoop.cancel()
		})

		closeCtx := context.WithoutCancel(ctx)
		if t.onClose != nil {
			if err := t.onClose(closeCtx, t.session); err != nil {
				t.report(err, PhaseUserCallback)
			}
		}

		guard.Stop()
		t.renewLoop.cancel()

		if err := t.session.Close(closeCtx); err != nil {
			t.report(err, PhaseSessionClose)
		}
	})
}

func (t *sessionTracker) report(err error, phase ExceptionPhase) {
	if t.notify != nil {
		t.notify(err, phase)
	}
}
