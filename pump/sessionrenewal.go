package pump

import (
	"context"
	"time"
)

// newSessionRenewalLoop builds a renewal loop that renews an accepted
// session's own lock until externally cancelled: by the session tracker on
// drain, or by runSession once its inner workers have exited on shutdown
// (spec §4.3). Unlike the message renewal loop it has no
// stop-at: onIteration is nil.
func (p *Pump) newSessionRenewalLoop(session sessionReceiver) *renewalLoop {
	lockedUntil := func() time.Time { return session.LockedUntil() }
	renew := func(ctx context.Context) (time.Time, error) {
		return session.RenewSessionLock(ctx)
	}
	return newRenewalLoop(p.log, PhaseRenewSessionLock, p.recordException, lockedUntil, renew, nil)
}
