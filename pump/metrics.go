package pump

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsRegisterer is the narrow contract pump needs from
// metrics.Metrics: Register(...prometheus.Collector). Accepting the
// interface rather than the concrete type keeps pump free of a hard
// dependency on how the collectors get exposed over HTTP.
type metricsRegisterer interface {
	Register(cs ...prometheus.Collector)
}

// pumpMetrics holds the collectors the pump updates as it runs. All are
// counters, matching the style of the other collectors in this
// repository's metrics package.
type pumpMetrics struct {
	messagesReceived   prometheus.Counter
	messagesCompleted  prometheus.Counter
	messagesAbandoned  prometheus.Counter
	messagesDeferred   prometheus.Counter
	messagesDeadLetter prometheus.Counter
	sessionsAccepted   prometheus.Counter
	sessionsClosed     prometheus.Counter
	exceptions         *prometheus.CounterVec
}

func newPumpMetrics(reg metricsRegisterer) *pumpMetrics {
	m := &pumpMetrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_messages_received_total",
			Help: "Total number of messages received from the broker.",
		}),
		messagesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_messages_completed_total",
			Help: "Total number of messages completed.",
		}),
		messagesAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_messages_abandoned_total",
			Help: "Total number of messages abandoned.",
		}),
		messagesDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_messages_deferred_total",
			Help: "Total number of messages deferred.",
		}),
		messagesDeadLetter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_messages_deadlettered_total",
			Help: "Total number of messages dead-lettered.",
		}),
		sessionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_sessions_accepted_total",
			Help: "Total number of sessions accepted.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_sessions_closed_total",
			Help: "Total number of sessions closed after drain.",
		}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_exceptions_total",
			Help: "Total number of faults reported, by phase.",
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.Register(
			m.messagesReceived,
			m.messagesCompleted,
			m.messagesAbandoned,
			m.messagesDeferred,
			m.messagesDeadLetter,
			m.sessionsAccepted,
			m.sessionsClosed,
			m.exceptions,
		)
	}
	return m
}

func (p *Pump) recordException(err error, phase ExceptionPhase) {
	if p.metrics != nil {
		p.metrics.exceptions.WithLabelValues(string(phase)).Inc()
	}
	p.notifyException(err, phase)
}
