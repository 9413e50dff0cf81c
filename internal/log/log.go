package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zlog zerolog.Logger
}

func NewLogger(level string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return New(output, level)
}

// New builds a logger writing to w. Tests pass io.Discard or a buffer.
func New(w io.Writer, level string) *Logger {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		if level != "" {
			fmt.Printf("Invalid log level '%s', defaulting to 'info'\n", level)
		}
		logLevel = zerolog.InfoLevel
	}

	zlog := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{zlog: zlog}
}

func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Source returns a child logger tagging every line with the given source.
func (l *Logger) Source(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("source", name).Logger()}
}

func (l *Logger) Trace(msg string, args ...interface{}) {
	l.zlog.Trace().Msgf(msg, args...)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zlog.Debug().Msgf(msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.zlog.Info().Msgf(msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zlog.Warn().Msgf(msg, args...)
}

func (l *Logger) Warning(msg string, args ...interface{}) {
	l.zlog.Warn().Msgf(msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.zlog.Error().Msgf(msg, args...)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.zlog.Fatal().Msgf(msg, args...)
}
