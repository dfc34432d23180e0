package pump

import (
	"context"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// Disposition façade (spec §4.6). These pass straight through to the
// inner receiver for non-sessioned mode; a handler can call these itself
// instead of relying on its return value, typically paired with
// WithoutAutoComplete. In sessioned mode the pump holds no receiver of
// its own - the accepted session does - so every call here fails with
// ErrUnsupportedOperation and the handler must dispose via the session
// passed to it instead.

func (p *Pump) Complete(ctx context.Context, msg *azbus.ReceivedMessage) error {
	p.mtx.Lock()
	receiver, mode := p.receiver, p.mode
	p.mtx.Unlock()

	if mode == modeSession {
		return ErrUnsupportedOperation
	}
	if receiver == nil {
		return ErrNoReceiver
	}
	return receiver.Complete(context.WithoutCancel(ctx), msg)
}

func (p *Pump) Abandon(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	p.mtx.Lock()
	receiver, mode := p.receiver, p.mode
	p.mtx.Unlock()

	if mode == modeSession {
		return ErrUnsupportedOperation
	}
	if receiver == nil {
		return ErrNoReceiver
	}
	return receiver.Abandon(context.WithoutCancel(ctx), err, msg)
}

func (p *Pump) Defer(ctx context.Context, msg *azbus.ReceivedMessage) error {
	p.mtx.Lock()
	receiver, mode := p.receiver, p.mode
	p.mtx.Unlock()

	if mode == modeSession {
		return ErrUnsupportedOperation
	}
	if receiver == nil {
		return ErrNoReceiver
	}
	if err := receiver.Defer(context.WithoutCancel(ctx), msg); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.messagesDeferred.Inc()
	}
	return nil
}

func (p *Pump) DeadLetter(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	p.mtx.Lock()
	receiver, mode := p.receiver, p.mode
	p.mtx.Unlock()

	if mode == modeSession {
		return ErrUnsupportedOperation
	}
	if receiver == nil {
		return ErrNoReceiver
	}
	if dlErr := receiver.DeadLetter(context.WithoutCancel(ctx), err, msg); dlErr != nil {
		return dlErr
	}
	if p.metrics != nil {
		p.metrics.messagesDeadLetter.Inc()
	}
	return nil
}
