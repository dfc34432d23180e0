package azbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// This file adapts Receiver to the narrow, mockable contract the pump
// package needs (see pump/contracts.go).

// ReceiveMessage fetches a single message, blocking for up to timeout. A nil
// message and nil error together mean "no message arrived before timeout" -
// the caller should simply retry, it is not an error condition.
func (r *Receiver) ReceiveMessage(ctx context.Context, timeout time.Duration) (*ReceivedMessage, error) {
	if err := r.Open(); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages, err := r.receiver.ReceiveMessages(rctx, 1, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		azerr := NewAzbusError(err)
		if errors.Is(azerr, ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: ReceiveMessage failure: %w", r, azerr)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}

// RenewMessageLock renews msg's peek-lock and returns the new expiry.
func (r *Receiver) RenewMessageLock(ctx context.Context, msg *ReceivedMessage) (time.Time, error) {
	err := r.receiver.RenewMessageLock(ctx, msg, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: RenewMessageLock failure: %w", r, NewAzbusError(err))
	}
	if msg.LockedUntil != nil {
		return *msg.LockedUntil, nil
	}
	return time.Now().Add(RenewalTime), nil
}

// Defer defers msg for later retrieval by sequence number. Distinct from
// Reschedule, which is a documented no-op left in place for compatibility:
// this is the real broker-side defer operation.
func (r *Receiver) Defer(ctx context.Context, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	log.Debugf("Defer Message")
	err := r.receiver.DeferMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("Defer: failed to settle message: %w", NewAzbusError(err))
		log.Infof("%s", azerr)
	}
	return nil
}
