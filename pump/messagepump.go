package pump

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// runMessageWorker is one of workerCount identical loops competing for
// messages from the same receiver (spec §3). Each iteration: receive,
// dispatch to handler under a background renewal loop, settle.
func (p *Pump) runMessageWorker(ctx context.Context, handler MessageHandlerFunc) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.receiver.ReceiveMessage(ctx, p.receiveTimeout)
		if err != nil {
			p.recordException(err, PhaseReceive)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if msg == nil {
			continue
		}
		if p.metrics != nil {
			p.metrics.messagesReceived.Inc()
		}

		p.processMessage(ctx, handler, msg)
	}
}

// processMessage runs handler against msg with the message's lock kept
// alive in the background for up to maxAutoRenewDuration, then settles
// the message according to the handler's outcome (spec §6).
func (p *Pump) processMessage(ctx context.Context, handler MessageHandlerFunc, msg *azbus.ReceivedMessage) {
	peekLock := p.receiveMode == azservicebus.ReceiveModePeekLock

	var renewal *renewalLoop
	if peekLock {
		stopAt := time.Now().Add(p.maxAutoRenewDuration)
		renewal = p.newMessageRenewalLoop(msg, stopAt)
		renewal.start()
	}

	err := handler(ctx, msg)

	if renewal != nil {
		renewal.cancel()
		renewal.wait()
	}

	if !peekLock {
		// ReceiveAndDelete: the broker already removed the message: no
		// disposition is possible or required (spec §3 step 4b).
		return
	}

	disposeCtx := context.WithoutCancel(ctx)
	if err != nil {
		p.recordException(err, PhaseUserCallback)
		if abErr := p.receiver.Abandon(disposeCtx, err, msg); abErr != nil {
			p.recordException(abErr, PhaseAbandon)
		} else if p.metrics != nil {
			p.metrics.messagesAbandoned.Inc()
		}
		return
	}

	if !p.autoComplete {
		// The callback succeeded and the caller owns completion: treat as
		// already handled, issue no broker call (spec §3 step 4a).
		return
	}

	if cErr := p.receiver.Complete(disposeCtx, msg); cErr != nil {
		p.recordException(cErr, PhaseComplete)
		return
	}
	if p.metrics != nil {
		p.metrics.messagesCompleted.Inc()
	}
}
