package azbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// SessionAcceptorConfig configures where sessions are accepted from.
type SessionAcceptorConfig struct {
	ConnectionString string

	// Name is the name of the queue or topic.
	TopicOrQueueName string

	// SubscriptionName is the name of the topic subscription. If blank then
	// sessions are accepted from a Queue.
	SubscriptionName string

	ReceiveMode azservicebus.ReceiveMode
}

// SessionAcceptor accepts the next available session from a sessionful queue
// or subscription. It mirrors Receiver's lazy-open, cached-client pattern.
type SessionAcceptor struct {
	azClient AZClient

	Cfg SessionAcceptorConfig

	log     Logger
	options *azservicebus.SessionReceiverOptions
}

func NewSessionAcceptor(log Logger, cfg SessionAcceptorConfig) *SessionAcceptor {
	a := &SessionAcceptor{
		Cfg:      cfg,
		azClient: NewAZClient(cfg.ConnectionString),
		options:  &azservicebus.SessionReceiverOptions{ReceiveMode: cfg.ReceiveMode},
	}
	a.log = log.WithIndex("sessionacceptor", a.String())
	return a
}

func (a *SessionAcceptor) String() string {
	if a.Cfg.SubscriptionName != "" {
		return fmt.Sprintf("%s.%s", a.Cfg.TopicOrQueueName, a.Cfg.SubscriptionName)
	}
	return a.Cfg.TopicOrQueueName
}

// AcceptNextSession blocks until a session becomes available, ctx is
// cancelled, or the broker reports no session currently available (which
// surfaces as ErrTimeout via NewAzbusError).
func (a *SessionAcceptor) AcceptNextSession(ctx context.Context) (*SessionReceiver, error) {
	client, err := a.azClient.azClient()
	if err != nil {
		return nil, err
	}

	var inner *azservicebus.SessionReceiver
	if a.Cfg.SubscriptionName != "" {
		inner, err = client.AcceptNextSessionForSubscription(ctx, a.Cfg.TopicOrQueueName, a.Cfg.SubscriptionName, a.options)
	} else {
		inner, err = client.AcceptNextSessionForQueue(ctx, a.Cfg.TopicOrQueueName, a.options)
	}
	if err != nil {
		azerr := fmt.Errorf("%s: failed to accept session: %w", a, NewAzbusError(err))
		a.log.Infof("%s", azerr)
		return nil, azerr
	}

	s := &SessionReceiver{
		entity:   a.String(),
		receiver: inner,
	}
	s.log = a.log.WithIndex("session", inner.SessionID())
	return s, nil
}

// SessionReceiver wraps a single accepted azservicebus session. Unlike
// Receiver it is not reusable across accept calls: once closed it is
// discarded and a fresh session is obtained from the SessionAcceptor.
type SessionReceiver struct {
	entity   string
	log      Logger
	mtx      sync.Mutex
	receiver *azservicebus.SessionReceiver
}

func (s *SessionReceiver) String() string {
	if s == nil || s.receiver == nil {
		return s.entity
	}
	return fmt.Sprintf("%s/%s", s.entity, s.receiver.SessionID())
}

func (s *SessionReceiver) SessionID() string {
	return s.receiver.SessionID()
}

// LockedUntil reports the session lock's current expiry without renewing it.
func (s *SessionReceiver) LockedUntil() time.Time {
	return s.receiver.LockedUntil()
}

// ReceiveMessages receives up to maxMessages from the session, blocking
// until one arrives, ctx is cancelled, or the broker times the wait out.
func (s *SessionReceiver) ReceiveMessages(ctx context.Context, maxMessages int) ([]*ReceivedMessage, error) {
	messages, err := s.receiver.ReceiveMessages(ctx, maxMessages, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: ReceiveMessages failure: %w", s, NewAzbusError(err))
		s.log.Infof("%s", azerr)
		return nil, azerr
	}
	return messages, nil
}

// RenewSessionLock renews the session's own lock (distinct from any
// individual message lock) and returns the new expiry.
func (s *SessionReceiver) RenewSessionLock(ctx context.Context) (time.Time, error) {
	err := s.receiver.RenewSessionLock(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: RenewSessionLock failure: %w", s, NewAzbusError(err))
	}
	return s.receiver.LockedUntil(), nil
}

func (s *SessionReceiver) Close(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.receiver == nil {
		return nil
	}
	err := s.receiver.Close(ctx)
	s.receiver = nil
	if err != nil {
		azerr := fmt.Errorf("%s: error closing session: %w", s, NewAzbusError(err))
		s.log.Infof("%s", azerr)
		return azerr
	}
	return nil
}

// NB: ALL disposition methods return nil so they can be used in return
// statements, matching Receiver's convention in receiver.go.

func (s *SessionReceiver) Complete(ctx context.Context, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)
	defer log.Close()

	log.Debugf("Complete Message")
	err := s.receiver.CompleteMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("Complete: failed to settle message: %w", NewAzbusError(err))
		log.Infof("%s", azerr)
	}
	return nil
}

func (s *SessionReceiver) Abandon(ctx context.Context, err error, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)
	defer log.Close()

	log.Infof("Abandon Message on DeliveryCount %d: %v", msg.DeliveryCount, err)
	err1 := s.receiver.AbandonMessage(ctx, msg, nil)
	if err1 != nil {
		azerr := fmt.Errorf("Abandon Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
	return nil
}

// Defer defers the message so it can be retrieved later by sequence number.
func (s *SessionReceiver) Defer(ctx context.Context, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)
	defer log.Close()

	log.Debugf("Defer Message")
	err := s.receiver.DeferMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("Defer: failed to settle message: %w", NewAzbusError(err))
		log.Infof("%s", azerr)
	}
	return nil
}

func (s *SessionReceiver) DeadLetter(ctx context.Context, err error, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)
	defer log.Close()

	log.Infof("DeadLetter Message: %v", err)
	options := azservicebus.DeadLetterOptions{
		Reason: to.Ptr(strings.ToValidUTF8(err.Error(), "!!!")),
	}
	err1 := s.receiver.DeadLetterMessage(ctx, msg, &options)
	if err1 != nil {
		azerr := fmt.Errorf("DeadLetter Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
	return nil
}
