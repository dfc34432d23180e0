package pump

import "errors"

// ExceptionPhase identifies where in the pump's pipeline a reported fault
// occurred. It is the full observability contract at this layer - the pump
// never surfaces errors any other way except the ones below.
type ExceptionPhase string

const (
	PhaseReceive          ExceptionPhase = "Receive"
	PhaseUserCallback     ExceptionPhase = "UserCallback"
	PhaseComplete         ExceptionPhase = "Complete"
	PhaseAbandon          ExceptionPhase = "Abandon"
	PhaseDefer            ExceptionPhase = "Defer"
	PhaseDeadLetter       ExceptionPhase = "DeadLetter"
	PhaseRenewMessageLock ExceptionPhase = "RenewMessageLock"
	PhaseRenewSessionLock ExceptionPhase = "RenewSessionLock"
	PhaseAcceptSession    ExceptionPhase = "AcceptSession"
	PhaseSessionClose     ExceptionPhase = "SessionClose"
)

var (
	// ErrAlreadyRegistered is returned by RegisterMessageHandler/
	// RegisterSessionHandler when a handler has already been registered on
	// this pump. Registration is a one-shot transition.
	ErrAlreadyRegistered = errors.New("pump: a handler is already registered")

	// ErrUnsupportedOperation is returned by the disposition façade when
	// called on a pump running a session handler: disposition must be
	// performed on the session directly, since the session holds the lock,
	// not the pump.
	ErrUnsupportedOperation = errors.New("pump: operation not supported in this mode")

	// ErrClosed is returned by RegisterMessageHandler/RegisterSessionHandler
	// once Close has been called.
	ErrClosed = errors.New("pump: pump is closed")

	// ErrNoReceiver/ErrNoSessionAcceptor are returned when the caller tries
	// to register a handler of a kind the pump was not constructed for.
	ErrNoReceiver        = errors.New("pump: no receiver configured for a message handler")
	ErrNoSessionAcceptor = errors.New("pump: no session acceptor configured for a session handler")
)
