package pump

import (
	"context"
	"time"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// newMessageRenewalLoop builds a renewal loop that renews msg's peek-lock
// until stopAt (arrival time + max-auto-renew duration) is reached, per spec
// §4.2. Once msg.LockedUntil has advanced at or past stopAt, the loop
// terminates cleanly: the user's renewal budget is exhausted and the
// broker will reclaim the message if the callback has not completed by
// then.
func (p *Pump) newMessageRenewalLoop(msg *azbus.ReceivedMessage, stopAt time.Time) *renewalLoop {
	lockedUntil := func() time.Time {
		if msg.LockedUntil != nil {
			return *msg.LockedUntil
		}
		return time.Now().Add(minLockValidity)
	}

	onIteration := func() bool {
		return msg.LockedUntil == nil || msg.LockedUntil.Before(stopAt)
	}

	renew := func(ctx context.Context) (time.Time, error) {
		return p.receiver.RenewMessageLock(ctx, msg)
	}

	return newRenewalLoop(p.log, PhaseRenewMessageLock, p.recordException, lockedUntil, renew, onIteration)
}
