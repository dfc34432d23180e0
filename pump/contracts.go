package pump

import (
	"context"
	"time"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// messageReceiver is the narrow, mockable contract the message pump needs
// from a non-sessioned entity. *azbus.Receiver satisfies it directly.
type messageReceiver interface {
	// ReceiveMessage blocks for up to timeout. A nil message and nil error
	// together mean no message arrived - not an error condition.
	ReceiveMessage(ctx context.Context, timeout time.Duration) (*azbus.ReceivedMessage, error)
	RenewMessageLock(ctx context.Context, msg *azbus.ReceivedMessage) (time.Time, error)
	Complete(ctx context.Context, msg *azbus.ReceivedMessage) error
	Abandon(ctx context.Context, err error, msg *azbus.ReceivedMessage) error
	Defer(ctx context.Context, msg *azbus.ReceivedMessage) error
	DeadLetter(ctx context.Context, err error, msg *azbus.ReceivedMessage) error
	Close(ctx context.Context) error
}

// sessionReceiver is the superset messageReceiver plus session-scoped
// operations. *azbus.SessionReceiver satisfies it directly.
type sessionReceiver interface {
	messageReceiver
	SessionID() string
	LockedUntil() time.Time
	RenewSessionLock(ctx context.Context) (time.Time, error)
}

// sessionAcceptor accepts the next available session, with no specific
// session id requested.
type sessionAcceptor interface {
	AcceptNextSession(ctx context.Context) (sessionReceiver, error)
}

// SessionInfo is what handler code sees for an accepted session: enough to
// identify it, never enough to dispose messages outside the pump's control.
type SessionInfo interface {
	SessionID() string
}

// azSessionAcceptor adapts *azbus.SessionAcceptor (which returns the
// concrete *azbus.SessionReceiver) to the sessionAcceptor interface above,
// so the rest of the package only ever depends on the narrow interface and
// can be driven by fakes in tests.
type azSessionAcceptor struct {
	inner *azbus.SessionAcceptor
}

func (a azSessionAcceptor) AcceptNextSession(ctx context.Context) (sessionReceiver, error) {
	sr, err := a.inner.AcceptNextSession(ctx)
	if err != nil {
		return nil, err
	}
	return sr, nil
}
