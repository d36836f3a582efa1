// Package logging provides the structured logger used by every cmd/
// entrypoint and long-running component (ingest server, worker loop,
// device simulator), wrapping zerolog the way the rest of the pipeline
// expects: level/format configuration, field chaining, and a package-level
// global for places that can't carry a logger value.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is a structured, field-chaining wrapper around zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg, defaulting to stdout/info when unset.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(output).With().Timestamp().Logger().Level(levelOf(cfg.Level))
	return &Logger{z: z}
}

func levelOf(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *Logger) Error(msg string, err error) {
	l.z.Error().Err(err).Msg(msg)
}

// With returns a child logger with one additional field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger with several additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

// Zerolog exposes the underlying zerolog.Logger for call sites that need
// event-level control (e.g. attaching a duration field before Msg).
func (l *Logger) Zerolog() zerolog.Logger { return l.z }

// InitGlobal installs cfg as the package-level default logger used by the
// free Debug/Info/Warn/Error functions below.
func InitGlobal(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(levelOf(cfg.Level))
}

func Debug(msg string) { log.Debug().Msg(msg) }
func Info(msg string)  { log.Info().Msg(msg) }
func Warn(msg string)  { log.Warn().Msg(msg) }
func Error(msg string, err error) {
	log.Error().Err(err).Msg(msg)
}
