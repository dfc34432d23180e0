package azbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReceiveMessage fetches a single message from the session, blocking for up
// to timeout. A nil message and nil error together mean "no message arrived
// before timeout".
func (s *SessionReceiver) ReceiveMessage(ctx context.Context, timeout time.Duration) (*ReceivedMessage, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages, err := s.receiver.ReceiveMessages(rctx, 1, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		azerr := NewAzbusError(err)
		if errors.Is(azerr, ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: ReceiveMessage failure: %w", s, azerr)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}

// RenewMessageLock renews msg's peek-lock within the session and returns the
// new expiry, satisfying the same contract as Receiver.RenewMessageLock.
func (s *SessionReceiver) RenewMessageLock(ctx context.Context, msg *ReceivedMessage) (time.Time, error) {
	err := s.receiver.RenewMessageLock(ctx, msg, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: RenewMessageLock failure: %w", s, NewAzbusError(err))
	}
	if msg.LockedUntil != nil {
		return *msg.LockedUntil, nil
	}
	return time.Now().Add(RenewalTime), nil
}
