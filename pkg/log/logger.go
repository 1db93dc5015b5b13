package log

// Logger receives protocol capture events. Log is called from the
// connection's event loop and reader goroutines, so implementations must be
// safe for concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans every event out to a fixed set of loggers, in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over loggers. Nil and NoopLogger
// entries are dropped and nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch l := l.(type) {
		case nil, NoopLogger, *NoopLogger:
		case *MultiLogger:
			m.loggers = append(m.loggers, l.loggers...)
		default:
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of loggers events are sent to.
func (m *MultiLogger) Len() int { return len(m.loggers) }

// Combine returns the cheapest Logger that sends to all of loggers:
// NoopLogger when none remain, the logger itself when one remains.
func Combine(loggers ...Logger) Logger {
	m := NewMultiLogger(loggers...)
	switch m.Len() {
	case 0:
		return NoopLogger{}
	case 1:
		return m.loggers[0]
	default:
		return m
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
