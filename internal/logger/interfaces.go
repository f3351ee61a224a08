package logger

// Logger is the minimal structured-logging interface used throughout the
// ingestion worker. Every call site passes a map of fields rather than a
// variadic key/value list so that field names are visible at the call site.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// SetLevel adjusts the minimum level logged at runtime.
	SetLevel(level string)

	// WithField and WithFields return a child logger carrying the given
	// fields on every subsequent call, without mutating the receiver.
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogLevel orders the supported severities.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
