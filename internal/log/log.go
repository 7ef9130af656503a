package log

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Package log is the application-wide structured logging facade. Call sites
// pass alternating key/value pairs: log.Info("Job created", "job_id", id).

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// Configure sets the global log level and output format ("console" or "json").
func Configure(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	mu.Lock()
	logger = l.Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

func Debug(msg string, kv ...interface{}) { emit(zerolog.DebugLevel, msg, kv) }
func Info(msg string, kv ...interface{})  { emit(zerolog.InfoLevel, msg, kv) }
func Warn(msg string, kv ...interface{})  { emit(zerolog.WarnLevel, msg, kv) }
func Error(msg string, kv ...interface{}) { emit(zerolog.ErrorLevel, msg, kv) }

func emit(level zerolog.Level, msg string, kv []interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
