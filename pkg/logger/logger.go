package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Leveled logger shared by the catalog binaries.
// - package-level API, safe for concurrent use
// - JSON lines via zerolog (time, level, message, optional fields)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Fields are attached to a single log line.
type Fields map[string]interface{}

var (
	mu     sync.RWMutex
	logger zerolog.Logger = newLogger(os.Stdout)
	level  Level          = LevelInfo
	exit                  = os.Exit
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	s := strings.ToLower(strings.TrimSpace(l))
	switch s {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func event(l Level) *zerolog.Event {
	mu.RLock()
	lg := logger
	mu.RUnlock()
	switch l {
	case LevelDebug:
		return lg.Debug()
	case LevelWarn:
		return lg.Warn()
	case LevelError:
		return lg.Error()
	case LevelFatal:
		// WithLevel keeps zerolog from exiting; Fatalf exits itself.
		return lg.WithLevel(zerolog.FatalLevel)
	}
	return lg.Info()
}

func logf(l Level, format string, v ...interface{}) {
	if !shouldLog(l) {
		return
	}
	event(l).Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

func Fatalf(format string, v ...interface{}) {
	event(LevelFatal).Msgf(format, v...)
	exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	event(LevelInfo).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Debugw, Infow, Warnw and Errorw log msg with structured fields.
func Debugw(msg string, f Fields) { logw(LevelDebug, msg, f) }
func Infow(msg string, f Fields)  { logw(LevelInfo, msg, f) }
func Warnw(msg string, f Fields)  { logw(LevelWarn, msg, f) }
func Errorw(msg string, f Fields) { logw(LevelError, msg, f) }

func logw(l Level, msg string, f Fields) {
	if !shouldLog(l) {
		return
	}
	event(l).Fields(map[string]interface{}(f)).Msg(msg)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
