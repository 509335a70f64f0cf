package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general operational information
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal errors that require immediate attention
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Output formats accepted by Configure.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger is a component-scoped logger writing structured events through zerolog.
type Logger struct {
	level     *levelState
	zl        zerolog.Logger
	component string
	err       error
}

// levelState is shared by a logger and every logger derived from it.
type levelState struct {
	mu    sync.RWMutex
	value LogLevel
}

func (s *levelState) get() LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *levelState) set(level LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = level
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func newLogger(level LogLevel, component string, w io.Writer, format string) *Logger {
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return &Logger{
		level:     &levelState{value: level},
		zl:        zerolog.New(w).With().Timestamp().Logger(),
		component: component,
	}
}

// InitLogger initializes the default logger
func InitLogger(level LogLevel, component string) {
	once.Do(func() {
		defaultLogger = newLogger(level, component, os.Stdout, FormatJSON)
	})
}

// Configure replaces the default logger. It is meant to be called once from main
// after configuration has been loaded.
func Configure(level LogLevel, component, format string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	once.Do(func() {})
	defaultLogger = newLogger(level, component, w, format)
	return defaultLogger
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	if defaultLogger == nil {
		InitLogger(INFO, "default")
	}
	return defaultLogger
}

// ParseLevel maps a level name such as "debug" or "WARN" to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		level:     l.level,
		zl:        l.zl,
		component: component,
		err:       l.err,
	}
}

// WithError returns a logger that attaches err to every event it writes.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		level:     l.level,
		zl:        l.zl,
		component: l.component,
		err:       err,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.set(level)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level.get()
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// log performs the actual logging
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	event := l.zl.WithLevel(toZerologLevel(level)).Str("component", l.component)
	if l.err != nil {
		event = event.Err(l.err)
	}
	event.Msg(fmt.Sprintf(format, args...))

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs info level messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs error level messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Fatal logs fatal level messages and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}
