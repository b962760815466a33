// Package logging provides the structured logger shared by all locus
// subsystems. Output goes to stderr so command results on stdout stay
// machine-readable.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	// DebugLevel for debug messages
	DebugLevel LogLevel = "debug"
	// InfoLevel for informational messages
	InfoLevel LogLevel = "info"
	// WarnLevel for warning messages
	WarnLevel LogLevel = "warn"
	// ErrorLevel for error messages
	ErrorLevel LogLevel = "error"
)

var logLevelPriority = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// ParseLevel maps a string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return LogLevel(s)
	default:
		return InfoLevel
	}
}

// Format represents the output format for logs
type Format string

const (
	// JSONFormat outputs logs as JSON
	JSONFormat Format = "json"
	// HumanFormat outputs logs in human-readable format
	HumanFormat Format = "human"
)

// Config holds logger configuration
type Config struct {
	Format Format
	Level  LogLevel
	Output io.Writer // Optional, defaults to stderr
}

// Logger provides structured logging
type Logger struct {
	config Config
	writer io.Writer
	base   map[string]interface{} // fields attached to every entry
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config Config) *Logger {
	writer := config.Output
	if writer == nil {
		writer = os.Stderr
	}
	if config.Level == "" {
		config.Level = InfoLevel
	}

	return &Logger{
		config: config,
		writer: writer,
	}
}

// With returns a child logger whose entries always carry the given fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		config: l.config,
		writer: l.writer,
		base:   merged,
	}
}

// logEntry represents a single log entry
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return logLevelPriority[level] >= logLevelPriority[l.config.Level]
}

func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	merged := fields
	if len(l.base) > 0 {
		merged = make(map[string]interface{}, len(l.base)+len(fields))
		for k, v := range l.base {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    merged,
	}

	if l.config.Format == JSONFormat {
		l.logJSON(entry)
	} else {
		l.logHuman(entry)
	}
}

func (l *Logger) logJSON(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) logHuman(entry logEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", entry.Timestamp, entry.Level, entry.Message)

	if len(entry.Fields) > 0 {
		// Stable field order keeps human logs diffable
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}
	b.WriteByte('\n')

	// One Write per entry so concurrent loggers never interleave a line.
	_, _ = io.WriteString(l.writer, b.String())
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(DebugLevel, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(InfoLevel, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(WarnLevel, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(ErrorLevel, message, fields)
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return NewLogger(Config{Format: HumanFormat, Level: ErrorLevel, Output: io.Discard})
}
