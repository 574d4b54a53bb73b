package logger

import (
	"fmt"
	"log"
	"os"
)

// -----------------------------------------------------------------------------

// Level ordering for filtering
var levels = map[string]int{
	"DEBUG":    0,
	"INFO":     1,
	"WARNING":  2,
	"ERROR":    3,
	"CRITICAL": 4,
}

// -----------------------------------------------------------------------------

// Logger provides leveled printf-style logging
type Logger struct {
	name     string
	logger   *log.Logger
	minLevel int
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. level is the minimum level to
// emit ("DEBUG", "INFO", ...); unknown or empty levels default to INFO.
func NewLogger(level string, name string) *Logger {
	min, ok := levels[level]
	if !ok {
		min = levels["INFO"]
	}
	return &Logger{
		name:     name,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		minLevel: min,
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) emit(level string, format string, args ...interface{}) {
	if levels[level] < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.name, level, msg)
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.emit("DEBUG", format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("INFO", format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.emit("WARNING", format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("ERROR", format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.emit("CRITICAL", format, args...)
	os.Exit(1)
}
