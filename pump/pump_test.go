package pump

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

func newTestMessage() *azbus.ReceivedMessage {
	return &azbus.ReceivedMessage{}
}

// waitFor polls until cond returns true or the deadline expires, to avoid
// sleeping a fixed worst-case duration in every test.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestRegisterMessageHandlerHappyPathCompletes(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	receiver.push(fakeDelivery{msg: newTestMessage()})

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))

	var handled atomic.Int32
	err := p.RegisterMessageHandler(context.Background(), func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		handled.Add(1)
		return nil
	})
	assert.NoError(t, err)

	ok := waitFor(t, time.Second, func() bool {
		receiver.mtx.Lock()
		defer receiver.mtx.Unlock()
		return len(receiver.completed) == 1
	})
	assert.True(t, ok, "expected message to be completed")
	assert.Equal(t, int32(1), handled.Load())

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerErrorAbandons(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	receiver.push(fakeDelivery{msg: newTestMessage()})

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))

	boom := errors.New("boom")
	err := p.RegisterMessageHandler(context.Background(), func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		return boom
	})
	assert.NoError(t, err)

	ok := waitFor(t, time.Second, func() bool {
		receiver.mtx.Lock()
		defer receiver.mtx.Unlock()
		return len(receiver.abandoned) == 1
	})
	assert.True(t, ok, "expected message to be abandoned")

	receiver.mtx.Lock()
	assert.Empty(t, receiver.completed)
	receiver.mtx.Unlock()

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerNilMessageIsNotDispatched(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	// no deliveries pushed: every ReceiveMessage call returns (nil, nil)

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))

	var handled atomic.Int32
	err := p.RegisterMessageHandler(context.Background(), func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		handled.Add(1)
		return nil
	})
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), handled.Load())

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerReceiveAndDeleteSkipsDisposition(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	receiver.push(fakeDelivery{msg: newTestMessage()})

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1), WithReceiveMode(azservicebus.ReceiveModeReceiveAndDelete))

	var handled atomic.Int32
	err := p.RegisterMessageHandler(context.Background(), func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		handled.Add(1)
		return nil
	})
	assert.NoError(t, err)

	ok := waitFor(t, time.Second, func() bool { return handled.Load() == 1 })
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	receiver.mtx.Lock()
	assert.Empty(t, receiver.completed)
	assert.Empty(t, receiver.abandoned)
	receiver.mtx.Unlock()

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerWithoutAutoCompleteSkipsComplete(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	receiver.push(fakeDelivery{msg: newTestMessage()})

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1), WithoutAutoComplete())

	var handled atomic.Int32
	err := p.RegisterMessageHandler(context.Background(), func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		handled.Add(1)
		return nil
	})
	assert.NoError(t, err)

	ok := waitFor(t, time.Second, func() bool { return handled.Load() == 1 })
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	receiver.mtx.Lock()
	assert.Empty(t, receiver.completed)
	receiver.mtx.Unlock()

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerRejectsSecondRegistration(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))

	noop := func(ctx context.Context, msg *azbus.ReceivedMessage) error { return nil }
	assert.NoError(t, p.RegisterMessageHandler(context.Background(), noop))
	assert.ErrorIs(t, p.RegisterMessageHandler(context.Background(), noop), ErrAlreadyRegistered)

	assert.NoError(t, p.Close(context.Background()))
}

func TestRegisterMessageHandlerRequiresReceiver(t *testing.T) {
	p := New(testLogger(), WithWorkerCount(1))
	noop := func(ctx context.Context, msg *azbus.ReceivedMessage) error { return nil }
	assert.ErrorIs(t, p.RegisterMessageHandler(context.Background(), noop), ErrNoReceiver)
}

func TestRegisterMessageHandlerRejectedAfterClose(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))
	assert.NoError(t, p.Close(context.Background()))

	noop := func(ctx context.Context, msg *azbus.ReceivedMessage) error { return nil }
	assert.ErrorIs(t, p.RegisterMessageHandler(context.Background(), noop), ErrClosed)
}

func TestDispositionFacadeUnsupportedInSessionMode(t *testing.T) {
	acceptor := &fakeSessionAcceptor{}
	p := New(testLogger(), WithSessionAcceptor(acceptor), WithMaxConcurrentCallsPerSession(1))

	handler := func(ctx context.Context, session SessionInfo, msg *azbus.ReceivedMessage) error { return nil }
	onClose := func(ctx context.Context, session SessionInfo) error { return nil }
	assert.NoError(t, p.RegisterSessionHandler(context.Background(), handler, onClose))

	msg := newTestMessage()
	assert.ErrorIs(t, p.Complete(context.Background(), msg), ErrUnsupportedOperation)
	assert.ErrorIs(t, p.Abandon(context.Background(), errors.New("x"), msg), ErrUnsupportedOperation)
	assert.ErrorIs(t, p.Defer(context.Background(), msg), ErrUnsupportedOperation)
	assert.ErrorIs(t, p.DeadLetter(context.Background(), errors.New("x"), msg), ErrUnsupportedOperation)

	assert.NoError(t, p.Close(context.Background()))
}

func TestDispositionFacadePassesThroughInMessageMode(t *testing.T) {
	receiver := &fakeMessageReceiver{}
	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))

	noop := func(ctx context.Context, msg *azbus.ReceivedMessage) error { return nil }
	assert.NoError(t, p.RegisterMessageHandler(context.Background(), noop))

	msg := newTestMessage()
	assert.NoError(t, p.Complete(context.Background(), msg))
	assert.NoError(t, p.Abandon(context.Background(), errors.New("x"), msg))
	assert.NoError(t, p.Defer(context.Background(), msg))
	assert.NoError(t, p.DeadLetter(context.Background(), errors.New("x"), msg))

	receiver.mtx.Lock()
	defer receiver.mtx.Unlock()
	assert.Len(t, receiver.completed, 1)
	assert.Len(t, receiver.abandoned, 1)
	assert.Len(t, receiver.deferred, 1)
	assert.Len(t, receiver.deadLettered, 1)

	assert.NoError(t, p.Close(context.Background()))
}

// TestSessionDrainReleasesSessionOnce exercises the quorum-of-N-idle-workers
// drain path (spec scenario: every inner worker simultaneously finds nothing
// to do, and the session is closed exactly once as a result).
func TestSessionDrainReleasesSessionOnce(t *testing.T) {
	session := &fakeSession{id: "session-1"}
	session.push(fakeDelivery{msg: newTestMessage()})

	acceptor := &fakeSessionAcceptor{sessions: []sessionReceiver{session}}
	p := New(testLogger(), WithSessionAcceptor(acceptor), WithMaxConcurrentCallsPerSession(2))

	var closes atomic.Int32
	var messages atomic.Int32
	handler := func(ctx context.Context, sess SessionInfo, msg *azbus.ReceivedMessage) error {
		messages.Add(1)
		return nil
	}
	onClose := func(ctx context.Context, sess SessionInfo) error {
		closes.Add(1)
		assert.Equal(t, "session-1", sess.SessionID())
		return nil
	}

	assert.NoError(t, p.RegisterSessionHandler(context.Background(), handler, onClose))

	ok := waitFor(t, 2*time.Second, func() bool { return closes.Load() == 1 })
	assert.True(t, ok, "expected the session to be closed exactly once")
	assert.Equal(t, int32(1), messages.Load())
	assert.Equal(t, int32(1), session.closeCalls.Load())

	assert.NoError(t, p.Close(context.Background()))
}

// TestSessionAcceptTerminalErrorStopsWithoutException confirms that a
// terminal accept-session error (the entity is gone) ends the accept loop
// silently: no exception is reported for it (spec scenario: teardown).
func TestSessionAcceptTerminalErrorStopsWithoutException(t *testing.T) {
	acceptor := &errorSessionAcceptor{err: azbus.ErrOperationCancelled}
	var exceptions int32
	p := New(testLogger(),
		WithSessionAcceptor(acceptor),
		WithMaxConcurrentCallsPerSession(1),
		WithExceptionSink(func(err error, phase ExceptionPhase) {
			atomic.AddInt32(&exceptions, 1)
		}),
	)

	handler := func(ctx context.Context, sess SessionInfo, msg *azbus.ReceivedMessage) error { return nil }
	onClose := func(ctx context.Context, sess SessionInfo) error { return nil }
	assert.NoError(t, p.RegisterSessionHandler(context.Background(), handler, onClose))

	ok := waitFor(t, time.Second, func() bool { return acceptor.calls.Load() >= 1 })
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&exceptions))

	assert.NoError(t, p.Close(context.Background()))
}

// errorSessionAcceptor always fails AcceptNextSession with a fixed error,
// recording how many times it was called.
type errorSessionAcceptor struct {
	calls atomic.Int64
	err   error
}

func (a *errorSessionAcceptor) AcceptNextSession(ctx context.Context) (sessionReceiver, error) {
	a.calls.Add(1)
	return nil, a.err
}

func TestRegisterSessionHandlerRequiresAcceptor(t *testing.T) {
	p := New(testLogger(), WithMaxConcurrentCallsPerSession(1))
	handler := func(ctx context.Context, sess SessionInfo, msg *azbus.ReceivedMessage) error { return nil }
	onClose := func(ctx context.Context, sess SessionInfo) error { return nil }
	assert.ErrorIs(t, p.RegisterSessionHandler(context.Background(), handler, onClose), ErrNoSessionAcceptor)
}

// TestSessionCloseUnblocksParkedWorkerMidCallback reproduces the shutdown
// hang scenario directly: one inner worker is stuck inside the user
// callback (so it will never park again) while its sibling has already
// parked on the empty queue. Closing the pump must unblock the parked
// sibling via ctx.Done() rather than wait for a quorum that can now only
// be reached by a worker that is never coming back.
func TestSessionCloseUnblocksParkedWorkerMidCallback(t *testing.T) {
	session := &fakeSession{id: "session-1"}
	session.push(fakeDelivery{msg: newTestMessage()})

	acceptor := &fakeSessionAcceptor{sessions: []sessionReceiver{session}}

	release := make(chan struct{})
	var inCallback atomic.Bool
	handler := func(ctx context.Context, sess SessionInfo, msg *azbus.ReceivedMessage) error {
		inCallback.Store(true)
		<-release
		return nil
	}
	onClose := func(ctx context.Context, sess SessionInfo) error { return nil }

	p := New(testLogger(), WithSessionAcceptor(acceptor), WithMaxConcurrentCallsPerSession(2))
	assert.NoError(t, p.RegisterSessionHandler(context.Background(), handler, onClose))

	ok := waitFor(t, time.Second, inCallback.Load)
	assert.True(t, ok, "expected handler to be invoked")

	// Give the sibling worker time to park on the empty queue.
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- p.Close(context.Background())
	}()

	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung: parked session worker never unblocked")
	}
}

// TestMaxConcurrentSessionsRunsSessionsConcurrently confirms that
// maxConcurrentSessions controls how many sessions are accepted and
// processed side by side, distinct from maxConcurrentCallsPerSession.
func TestMaxConcurrentSessionsRunsSessionsConcurrently(t *testing.T) {
	sessionA := &fakeSession{id: "session-a"}
	sessionA.push(fakeDelivery{msg: newTestMessage()})
	sessionB := &fakeSession{id: "session-b"}
	sessionB.push(fakeDelivery{msg: newTestMessage()})

	acceptor := &fakeSessionAcceptor{sessions: []sessionReceiver{sessionA, sessionB}}

	release := make(chan struct{})
	var inCallback atomic.Int32
	handler := func(ctx context.Context, sess SessionInfo, msg *azbus.ReceivedMessage) error {
		inCallback.Add(1)
		<-release
		return nil
	}
	onClose := func(ctx context.Context, sess SessionInfo) error { return nil }

	p := New(testLogger(),
		WithSessionAcceptor(acceptor),
		WithMaxConcurrentSessions(2),
		WithMaxConcurrentCallsPerSession(1),
	)
	assert.NoError(t, p.RegisterSessionHandler(context.Background(), handler, onClose))

	ok := waitFor(t, time.Second, func() bool { return inCallback.Load() == 2 })
	assert.True(t, ok, "expected both sessions to be handled concurrently")

	close(release)
	assert.NoError(t, p.Close(context.Background()))
}

func TestCloseIsIdempotentAndSafeWithoutRegistration(t *testing.T) {
	p := New(testLogger())
	assert.NoError(t, p.Close(context.Background()))
	assert.NoError(t, p.Close(context.Background()))
}

// TestCloseTimesOutIfWorkerHangs confirms Close reports the context error
// rather than blocking forever when a worker doesn't exit in time.
func TestCloseTimesOutIfWorkerHangs(t *testing.T) {
	receiver := &blockingMessageReceiver{unblock: make(chan struct{})}
	defer close(receiver.unblock)

	p := New(testLogger(), WithReceiver(receiver), WithWorkerCount(1))
	noop := func(ctx context.Context, msg *azbus.ReceivedMessage) error { return nil }
	assert.NoError(t, p.RegisterMessageHandler(context.Background(), noop))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingMessageReceiver's ReceiveMessage call never returns until
// unblock is closed or ctx is cancelled, simulating a worker stuck deep in
// a broker call past the shutdown deadline.
type blockingMessageReceiver struct {
	fakeMessageReceiver
	unblock chan struct{}
}

func (b *blockingMessageReceiver) ReceiveMessage(ctx context.Context, timeout time.Duration) (*azbus.ReceivedMessage, error) {
	// Deliberately ignores ctx cancellation to simulate a broker call that
	// outlives the pump's shutdown deadline.
	<-b.unblock
	return nil, nil
}
