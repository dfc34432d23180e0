package pump

import (
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/datatrails/go-datatrails-pump/environment"
)

// Config is the environment-driven shape of a Pump's tuning knobs. Values
// are read with environment.GetRequired; a variable that is unset, does not
// parse, or (for counts and durations) is not positive leaves its default
// in place.
type Config struct {
	WorkerCount                  int
	MaxConcurrentSessions        int
	MaxConcurrentCallsPerSession int
	ReceiveTimeout               time.Duration
	MaxAutoRenewDuration         time.Duration
	ReceiveMode                  azservicebus.ReceiveMode
	AutoComplete                 bool
}

func getOrDefault(key, def string) string {
	value, err := environment.GetRequired(key)
	if err != nil {
		return def
	}
	return value
}

// ConfigFromEnvironment reads PUMP_WORKER_COUNT, PUMP_MAX_CONCURRENT_SESSIONS,
// PUMP_MAX_CONCURRENT_CALLS_PER_SESSION, PUMP_RECEIVE_TIMEOUT_SECONDS,
// PUMP_MAX_AUTO_RENEW_SECONDS, PUMP_RECEIVE_AND_DELETE and
// PUMP_AUTO_COMPLETE, each falling back to the pump's built-in defaults
// when unset.
func ConfigFromEnvironment() Config {
	cfg := Config{
		WorkerCount:                  defaultWorkerCount,
		MaxConcurrentSessions:        defaultMaxConcurrentSessions,
		MaxConcurrentCallsPerSession: defaultMaxConcurrentCallsPerSession,
		ReceiveTimeout:               defaultReceiveTimeout,
		MaxAutoRenewDuration:         defaultMaxAutoRenewSeconds * time.Second,
		ReceiveMode:                  azservicebus.ReceiveModePeekLock,
		AutoComplete:                 true,
	}

	if v, err := strconv.Atoi(getOrDefault("PUMP_WORKER_COUNT", "")); err == nil && v > 0 {
		cfg.WorkerCount = v
	}
	if v, err := strconv.Atoi(getOrDefault("PUMP_MAX_CONCURRENT_SESSIONS", "")); err == nil && v > 0 {
		cfg.MaxConcurrentSessions = v
	}
	if v, err := strconv.Atoi(getOrDefault("PUMP_MAX_CONCURRENT_CALLS_PER_SESSION", "")); err == nil && v > 0 {
		cfg.MaxConcurrentCallsPerSession = v
	}
	if v, err := strconv.Atoi(getOrDefault("PUMP_RECEIVE_TIMEOUT_SECONDS", "")); err == nil && v > 0 {
		cfg.ReceiveTimeout = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(getOrDefault("PUMP_MAX_AUTO_RENEW_SECONDS", "")); err == nil && v > 0 {
		cfg.MaxAutoRenewDuration = time.Duration(v) * time.Second
	}
	if v, err := strconv.ParseBool(getOrDefault("PUMP_RECEIVE_AND_DELETE", "false")); err == nil && v {
		cfg.ReceiveMode = azservicebus.ReceiveModeReceiveAndDelete
	}
	if v, err := strconv.ParseBool(getOrDefault("PUMP_AUTO_COMPLETE", "true")); err == nil {
		cfg.AutoComplete = v
	}
	return cfg
}

// Options converts Config into the functional options New expects.
func (c Config) Options() []Option {
	opts := []Option{
		WithWorkerCount(c.WorkerCount),
		WithMaxConcurrentSessions(c.MaxConcurrentSessions),
		WithMaxConcurrentCallsPerSession(c.MaxConcurrentCallsPerSession),
		WithReceiveTimeout(c.ReceiveTimeout),
		WithMaxAutoRenewDuration(c.MaxAutoRenewDuration),
		WithReceiveMode(c.ReceiveMode),
	}
	if !c.AutoComplete {
		opts = append(opts, WithoutAutoComplete())
	}
	return opts
}
