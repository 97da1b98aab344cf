package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Level is the minimum severity a message must have to be emitted.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// relay sessions log from many goroutines, so the level is stored
// atomically rather than behind a mutex
var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(INFO))
}

// ParseLevel converts a level name to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetLevel sets the process-wide log level from its string name.
func SetLevel(s string) {
	currentLevel.Store(int32(ParseLevel(s)))
}

// GetLevel returns the current level as a string name.
func GetLevel() string {
	switch Level(currentLevel.Load()) {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

func emit(level Level, tag string, format string, v ...interface{}) {
	if level < Level(currentLevel.Load()) {
		return
	}
	log.Printf("[%s] %s", tag, fmt.Sprintf(format, v...))
}

// Debug logs a debug-level message.
func Debug(format string, v ...interface{}) {
	emit(DEBUG, "DEBUG", format, v...)
}

// Info logs an info-level message.
func Info(format string, v ...interface{}) {
	emit(INFO, "INFO", format, v...)
}

// Warn logs a warning-level message.
func Warn(format string, v ...interface{}) {
	emit(WARN, "WARN", format, v...)
}

// Error logs an error-level message.
func Error(format string, v ...interface{}) {
	emit(ERROR, "ERROR", format, v...)
}
