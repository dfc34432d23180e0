package pump

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datatrails/go-datatrails-pump/azbus"
	"github.com/datatrails/go-datatrails-pump/logger"
)

// testLogger returns a Logger backed by the real logger package configured
// for tests, matching the convention used throughout this codebase's own
// test suites (logger.New("NOOP") / logger.New("TEST")).
func testLogger() Logger {
	logger.New("NOOP")
	return logger.Sugar
}

// fakeMessageReceiver is an in-memory messageReceiver driven by a queue of
// canned messages/errors, recording every disposition call it receives.
type fakeMessageReceiver struct {
	mtx sync.Mutex

	queue  []fakeDelivery
	closed bool

	completed    []*azbus.ReceivedMessage
	abandoned    []*azbus.ReceivedMessage
	deferred     []*azbus.ReceivedMessage
	deadLettered []*azbus.ReceivedMessage

	renewCalls atomic.Int64
}

type fakeDelivery struct {
	msg *azbus.ReceivedMessage
	err error
}

func (f *fakeMessageReceiver) push(d fakeDelivery) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.queue = append(f.queue, d)
}

func (f *fakeMessageReceiver) ReceiveMessage(ctx context.Context, timeout time.Duration) (*azbus.ReceivedMessage, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	d := f.queue[0]
	f.queue = f.queue[1:]
	return d.msg, d.err
}

func (f *fakeMessageReceiver) RenewMessageLock(ctx context.Context, msg *azbus.ReceivedMessage) (time.Time, error) {
	f.renewCalls.Add(1)
	return time.Now().Add(time.Minute), nil
}

func (f *fakeMessageReceiver) Complete(ctx context.Context, msg *azbus.ReceivedMessage) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.completed = append(f.completed, msg)
	return nil
}

func (f *fakeMessageReceiver) Abandon(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.abandoned = append(f.abandoned, msg)
	return nil
}

func (f *fakeMessageReceiver) Defer(ctx context.Context, msg *azbus.ReceivedMessage) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.deferred = append(f.deferred, msg)
	return nil
}

func (f *fakeMessageReceiver) DeadLetter(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.deadLettered = append(f.deadLettered, msg)
	return nil
}

func (f *fakeMessageReceiver) Close(ctx context.Context) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.closed = true
	return nil
}

// fakeSession is an in-memory sessionReceiver: a single session's worth of
// canned deliveries, plus a counter of how many times it was renewed/closed.
type fakeSession struct {
	mtx sync.Mutex

	id    string
	queue []fakeDelivery

	completed []*azbus.ReceivedMessage
	abandoned []*azbus.ReceivedMessage

	renewCalls atomic.Int64
	closeCalls atomic.Int64
	closeErr   error
}

func (s *fakeSession) push(d fakeDelivery) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.queue = append(s.queue, d)
}

func (s *fakeSession) SessionID() string { return s.id }

func (s *fakeSession) LockedUntil() time.Time { return time.Now().Add(time.Minute) }

func (s *fakeSession) ReceiveMessage(ctx context.Context, timeout time.Duration) (*azbus.ReceivedMessage, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	return d.msg, d.err
}

func (s *fakeSession) RenewSessionLock(ctx context.Context) (time.Time, error) {
	s.renewCalls.Add(1)
	return time.Now().Add(time.Minute), nil
}

func (s *fakeSession) RenewMessageLock(ctx context.Context, msg *azbus.ReceivedMessage) (time.Time, error) {
	s.renewCalls.Add(1)
	return time.Now().Add(time.Minute), nil
}

func (s *fakeSession) Complete(ctx context.Context, msg *azbus.ReceivedMessage) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.completed = append(s.completed, msg)
	return nil
}

func (s *fakeSession) Abandon(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.abandoned = append(s.abandoned, msg)
	return nil
}

func (s *fakeSession) Defer(ctx context.Context, msg *azbus.ReceivedMessage) error {
	return nil
}

func (s *fakeSession) DeadLetter(ctx context.Context, err error, msg *azbus.ReceivedMessage) error {
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closeCalls.Add(1)
	return s.closeErr
}

// fakeSessionAcceptor hands out a fixed list of sessions, one per call, then
// blocks until the context is cancelled (mirroring AcceptNextSession's real
// behaviour of waiting for the next available session).
type fakeSessionAcceptor struct {
	mtx      sync.Mutex
	sessions []sessionReceiver
}

func (a *fakeSessionAcceptor) AcceptNextSession(ctx context.Context) (sessionReceiver, error) {
	a.mtx.Lock()
	if len(a.sessions) > 0 {
		s := a.sessions[0]
		a.sessions = a.sessions[1:]
		a.mtx.Unlock()
		return s, nil
	}
	a.mtx.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}
