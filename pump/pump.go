// Package pump implements a concurrent message and session pump over an
// abstract broker receiver: it pulls messages (or, in sessioned mode,
// session-scoped messages) from a receiver under a fixed worker budget,
// dispatches each to a user callback while renewing its lock in the
// background, and settles it according to the callback's outcome.
package pump

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/datatrails/go-datatrails-pump/azbus"
)

// Logger is the logging contract the pump depends on; azbus.Logger and
// logger.Logger both satisfy it.
type Logger = azbus.Logger

// ExceptionSink receives every fault the pump observes that it cannot
// otherwise report through a callback return value (spec §7). It must not
// block for long; the pump does not wait for it.
type ExceptionSink func(err error, phase ExceptionPhase)

// MessageHandlerFunc processes a single message in non-sessioned mode. A
// nil error completes the message; a non-nil error abandons it, and the
// handler should have no expectation that the message will come back to
// it specifically (spec §6).
type MessageHandlerFunc func(ctx context.Context, msg *azbus.ReceivedMessage) error

// SessionMessageHandlerFunc processes a single message delivered within an
// accepted session.
type SessionMessageHandlerFunc func(ctx context.Context, session SessionInfo, msg *azbus.ReceivedMessage) error

// SessionCloseFunc is invoked once, after a session has drained (every
// inner worker simultaneously found nothing to do) and before the session
// lock is released. Errors are reported but never retried - the session
// is released regardless.
type SessionCloseFunc func(ctx context.Context, session SessionInfo) error

// mode distinguishes which of the two registration shapes a Pump was set
// up for; a Pump only ever serves one.
type mode int

const (
	modeUnregistered mode = iota
	modeMessage
	modeSession
)

const (
	defaultWorkerCount                  = 4
	defaultMaxConcurrentSessions        = 1
	defaultMaxConcurrentCallsPerSession = 4
	defaultReceiveTimeout               = 60 * time.Second
	defaultMaxAutoRenewSeconds          = 5 * 60
)

// Pump coordinates concurrent delivery from a single broker entity. It is
// built once with New and then registered with exactly one handler kind;
// registration starts the workers.
type Pump struct {
	log             Logger
	notifyException ExceptionSink

	receiver        messageReceiver
	sessionAcceptor sessionAcceptor

	workerCount                  int
	maxConcurrentSessions        int
	maxConcurrentCallsPerSession int
	receiveTimeout               time.Duration
	maxAutoRenewDuration         time.Duration
	receiveMode                  azservicebus.ReceiveMode
	autoComplete                 bool

	metrics *pumpMetrics

	mtx      sync.Mutex
	mode     mode
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Pump at construction time.
type Option func(*Pump)

// WithReceiver supplies the non-sessioned entity the pump will read from.
// Required before RegisterMessageHandler can succeed.
func WithReceiver(r messageReceiver) Option {
	return func(p *Pump) { p.receiver = r }
}

// WithAzbusReceiver is a convenience wrapper for the common case of
// wiring a live *azbus.Receiver.
func WithAzbusReceiver(r *azbus.Receiver) Option {
	return func(p *Pump) { p.receiver = r }
}

// WithSessionAcceptor supplies the sessionful entity the pump will accept
// sessions from. Required before RegisterSessionHandler can succeed.
func WithSessionAcceptor(a sessionAcceptor) Option {
	return func(p *Pump) { p.sessionAcceptor = a }
}

// WithAzbusSessionAcceptor is a convenience wrapper for the common case of
// wiring a live *azbus.SessionAcceptor.
func WithAzbusSessionAcceptor(a *azbus.SessionAcceptor) Option {
	return func(p *Pump) { p.sessionAcceptor = azSessionAcceptor{inner: a} }
}

// WithWorkerCount sets how many concurrent workers pull from the receiver
// in non-sessioned mode. Defaults to 4. Has no effect in sessioned mode;
// see WithMaxConcurrentSessions and WithMaxConcurrentCallsPerSession.
func WithWorkerCount(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithMaxConcurrentSessions sets how many sessions the sessioned pump
// accepts and processes concurrently - this many independent
// runSessionAcceptLoop instances run side by side, each accepting and
// fully draining one session before accepting its next (spec §4.5).
// Defaults to 1.
func WithMaxConcurrentSessions(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.maxConcurrentSessions = n
		}
	}
}

// WithMaxConcurrentCallsPerSession sets how many inner worker loops run
// concurrently within a single accepted session. Defaults to 4. The
// in-flight callback bound in sessioned mode is
// maxConcurrentSessions * maxConcurrentCallsPerSession.
func WithMaxConcurrentCallsPerSession(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.maxConcurrentCallsPerSession = n
		}
	}
}

// WithReceiveTimeout bounds how long a single receive call may block
// before the worker loops back to check for shutdown. Defaults to 60s.
func WithReceiveTimeout(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.receiveTimeout = d
		}
	}
}

// WithMaxAutoRenewDuration bounds how long a message's or session's lock
// will be kept alive by background renewal before the pump gives up on
// it. Defaults to 5 minutes.
func WithMaxAutoRenewDuration(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.maxAutoRenewDuration = d
		}
	}
}

// WithReceiveMode declares whether the underlying entity was opened in
// PeekLock or ReceiveAndDelete mode; it governs whether the pump performs
// disposition at all (spec §2.1). Defaults to PeekLock.
func WithReceiveMode(m azservicebus.ReceiveMode) Option {
	return func(p *Pump) { p.receiveMode = m }
}

// WithoutAutoComplete disables automatic completion of successfully
// handled messages: the handler (or a direct call to the pump's
// disposition façade) is responsible for completing the message itself.
// A successful callback with auto-complete disabled issues no broker call
// at all (spec §3 step 4a).
func WithoutAutoComplete() Option {
	return func(p *Pump) { p.autoComplete = false }
}

// WithExceptionSink installs the fault reporting callback. If omitted,
// faults are logged at Info level and otherwise dropped.
func WithExceptionSink(sink ExceptionSink) Option {
	return func(p *Pump) { p.notifyException = sink }
}

// WithMetrics enables prometheus instrumentation, registering the pump's
// collectors on m.
func WithMetrics(m metricsRegisterer) Option {
	return func(p *Pump) { p.metrics = newPumpMetrics(m) }
}

// New builds a Pump. It does nothing with the broker until
// RegisterMessageHandler or RegisterSessionHandler is called.
func New(log Logger, opts ...Option) *Pump {
	p := &Pump{
		log:                          log,
		workerCount:                  defaultWorkerCount,
		maxConcurrentSessions:        defaultMaxConcurrentSessions,
		maxConcurrentCallsPerSession: defaultMaxConcurrentCallsPerSession,
		receiveTimeout:               defaultReceiveTimeout,
		maxAutoRenewDuration:         defaultMaxAutoRenewSeconds * time.Second,
		receiveMode:                  azservicebus.ReceiveModePeekLock,
		autoComplete:                 true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifyException == nil {
		p.notifyException = p.logException
	}
	return p
}

func (p *Pump) logException(err error, phase ExceptionPhase) {
	p.log.Infof("%s: %s", phase, err)
}

func (p *Pump) String() string {
	return "pump"
}

// RegisterMessageHandler starts the non-sessioned pump: workerCount
// workers, each independently receiving, dispatching to handler, renewing
// the message lock while handler runs, and settling the outcome. It
// returns once the workers have been started; it does not block for the
// pump's lifetime. Call exactly once per Pump.
func (p *Pump) RegisterMessageHandler(ctx context.Context, handler MessageHandlerFunc) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.mode != modeUnregistered {
		return ErrAlreadyRegistered
	}
	if p.receiver == nil {
		return ErrNoReceiver
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mode = modeMessage

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.runMessageWorker(runCtx, handler)
		}(i)
	}
	return nil
}

// RegisterSessionHandler starts the sessioned pump: maxConcurrentSessions
// independent outer loops each accept sessions one at a time (spec §4.5),
// and for each accepted session spawn maxConcurrentCallsPerSession inner
// workers plus a session-lock renewal loop. Call exactly once per Pump.
func (p *Pump) RegisterSessionHandler(ctx context.Context, handler SessionMessageHandlerFunc, onClose SessionCloseFunc) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.mode != modeUnregistered {
		return ErrAlreadyRegistered
	}
	if p.sessionAcceptor == nil {
		return ErrNoSessionAcceptor
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mode = modeSession

	for i := 0; i < p.maxConcurrentSessions; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runSessionAcceptLoop(runCtx, handler, onClose)
		}()
	}
	return nil
}

// Close signals every worker to stop after its current operation and
// waits for them to exit. It is safe to call multiple times and safe to
// call even if no handler was ever registered.
func (p *Pump) Close(ctx context.Context) error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mtx.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pump: Close: %w", ctx.Err())
	}
}
