package pump

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// sessionAcceptBackoff is how long the outer accept loop waits after a
// non-terminal accept failure before trying again (spec §5 step 1,
// "60-second backoff on session-accept failure").
const sessionAcceptBackoff = 60 * time.Second

// runSessionAcceptLoop accepts sessions one at a time for as long as ctx
// is live. Each accepted session gets its own renewal loop, its own
// tracker, and maxConcurrentCallsPerSession inner worker loops; the accept
// loop blocks until that session has fully drained before accepting the
// next one (spec §5: "for each accepted session, N inner worker loops run
// concurrently... when the session is drained... a new session can be
// accepted"). RegisterSessionHandler runs maxConcurrentSessions of these
// loops side by side, so up to that many sessions drain at once.
func (p *Pump) runSessionAcceptLoop(ctx context.Context, handler SessionMessageHandlerFunc, onClose SessionCloseFunc) {
	for {
		if ctx.Err() != nil {
			return
		}

		session, err := p.sessionAcceptor.AcceptNextSession(ctx)
		if err != nil {
			// OperationCancelled means the entity is gone - expected on
			// teardown, not a fault (spec §8 scenario 6).
			if errors.Is(err, azbus.ErrOperationCancelled) || ctx.Err() != nil {
				return
			}
			p.recordException(err, PhaseAcceptSession)
			select {
			case <-ctx.Done():
				return
			case <-time.After(sessionAcceptBackoff):
			}
			continue
		}
		if session == nil {
			continue
		}
		if p.metrics != nil {
			p.metrics.sessionsAccepted.Inc()
		}

		p.runSession(ctx, session, handler, onClose)

		if p.metrics != nil {
			p.metrics.sessionsClosed.Inc()
		}
	}
}

// runSession drives a single accepted session to completion: a renewal
// loop keeps the session lock alive, and maxConcurrentCallsPerSession
// inner loops race to receive and dispatch messages within it,
// coordinated by a tracker that detects simultaneous drain.
func (p *Pump) runSession(ctx context.Context, session sessionReceiver, handler SessionMessageHandlerFunc, onClose SessionCloseFunc) {
	renewal := p.newSessionRenewalLoop(session)
	renewal.start()

	tracker := newSessionTracker(p.log, p.recordException, session, p.maxConcurrentCallsPerSession, renewal, onClose, p.maxAutoRenewDuration)

	done := make(chan struct{})
	for i := 0; i < p.maxConcurrentCallsPerSession; i++ {
		go func() {
			p.runSessionInnerWorker(ctx, session, handler, tracker)
			done <- struct{}{}
		}()
	}
	for i := 0; i < p.maxConcurrentCallsPerSession; i++ {
		<-done
	}

	// On drain the tracker has already cancelled the renewal loop; on
	// shutdown the workers exit without releasing the session, so the loop
	// is cancelled here. cancel is idempotent.
	renewal.cancel()
	renewal.wait()
}

// runSessionInnerWorker is one of the N workers racing within a single
// accepted session (spec §4.5). It returns once the session tracker
// decides, from simultaneous idleness across all siblings, that the
// session has drained.
func (p *Pump) runSessionInnerWorker(ctx context.Context, session sessionReceiver, handler SessionMessageHandlerFunc, tracker *sessionTracker) {
	peekLock := p.receiveMode == azservicebus.ReceiveModePeekLock

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := session.ReceiveMessage(ctx, p.receiveTimeout)
		if err != nil {
			p.recordException(err, PhaseReceive)
			if ctx.Err() != nil {
				return
			}
			if !tracker.shouldRetryOnNoMessageOrException(ctx) {
				return
			}
			continue
		}
		if msg == nil {
			if !tracker.shouldRetryOnNoMessageOrException(ctx) {
				return
			}
			continue
		}

		tracker.notifyMessageReceived()
		if p.metrics != nil {
			p.metrics.messagesReceived.Inc()
		}

		p.processSessionMessage(ctx, session, handler, msg, peekLock, tracker)
	}
}

// processSessionMessage dispatches one message delivered within a
// session and disposes of it via the session's own complete/abandon -
// identical policy to the non-sessioned path, just routed through the
// session rather than the pump's receiver (spec §5 step 5). A
// renewal-cancel guard timer is armed for the duration of the callback:
// if the callback runs longer than maxAutoRenewDuration, the session's
// renewal loop is cancelled out from under it rather than let it renew
// forever.
func (p *Pump) processSessionMessage(ctx context.Context, session sessionReceiver, handler SessionMessageHandlerFunc, msg *azbus.ReceivedMessage, peekLock bool, tracker *sessionTracker) {
	guard := time.AfterFunc(p.maxAutoRenewDuration, func() {
		tracker.renewLoop.cancel()
	})
	err := handler(ctx, session, msg)
	guard.Stop()

	if !peekLock {
		return
	}

	disposeCtx := context.WithoutCancel(ctx)
	if err != nil {
		p.recordException(err, PhaseUserCallback)
		if abErr := session.Abandon(disposeCtx, err, msg); abErr != nil {
			p.recordException(abErr, PhaseAbandon)
		} else if p.metrics != nil {
			p.metrics.messagesAbandoned.Inc()
		}
		return
	}

	if !p.autoComplete {
		return
	}

	if cErr := session.Complete(disposeCtx, msg); cErr != nil {
		p.recordException(cErr, PhaseComplete)
		return
	}
	if p.metrics != nil {
		p.metrics.messagesCompleted.Inc()
	}
}
