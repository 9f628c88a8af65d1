package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/measprefs/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init replaces the process logger. A nil writer logs to stderr.
func Init(level string, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	log = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)

	return nil
}

// ParseLevel maps a configured level name onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

type componentLogger struct {
	zl zerolog.Logger
}

// New returns a Logger tagged with the given component name.
func New(component string) Logger {
	return &componentLogger{zl: log.With().Str("component", component).Logger()}
}

// FromZerolog wraps an existing zerolog logger, mostly for tests that
// capture output.
func FromZerolog(zl zerolog.Logger) Logger {
	return &componentLogger{zl: zl}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &componentLogger{zl: zerolog.Nop()}
}

func (l *componentLogger) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l *componentLogger) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l *componentLogger) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l *componentLogger) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{l.zl.Error().
		Str("error_code", string(err.Code())).
		Err(err)}
}

func (l *componentLogger) With(component string) Logger {
	return &componentLogger{zl: l.zl.With().Str("component", component).Logger()}
}
