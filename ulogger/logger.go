// Package ulogger wraps zerolog with the pretty/JSON console switch used
// throughout slchain, grounded on the teacher repo's ZLoggerWrapper.
package ulogger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger is the interface every slchain component depends on. Passed by
// value at construction time rather than read from a package-level global.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	With(fields map[string]interface{}) Logger
}

// ZLogger is the default Logger implementation, backed by zerolog.Logger.
type ZLogger struct {
	zerolog.Logger
	service string
}

// Option configures a ZLogger at construction time.
type Option func(*options)

type options struct {
	level  zerolog.Level
	writer io.Writer
	pretty bool
}

// WithLevel sets the minimum log level (debug, info, warn, error, fatal).
func WithLevel(level string) Option {
	return func(o *options) {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			o.level = lvl
		}
	}
}

// WithWriter overrides the default destination (os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithPretty forces the colorized console writer on or off, overriding the
// default (pretty when stdout is a terminal and NO_COLOR is unset).
func WithPretty(pretty bool) Option {
	return func(o *options) { o.pretty = pretty }
}

// New builds a ZLogger for the named service.
func New(service string, opts ...Option) *ZLogger {
	o := &options{level: zerolog.InfoLevel, writer: os.Stdout, pretty: isTerminal(os.Stdout) && os.Getenv("NO_COLOR") == ""}
	for _, opt := range opts {
		opt(o)
	}

	var w io.Writer = o.writer
	if o.pretty {
		w = prettyConsoleWriter(o.writer)
	}

	l := zerolog.New(w).Level(o.level).With().Timestamp().Str("service", service).Logger()

	return &ZLogger{Logger: l, service: service}
}

func prettyConsoleWriter(dst io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: dst, TimeFormat: time.RFC3339}
	cw.FormatLevel = func(i interface{}) string {
		level, _ := i.(string)
		return colorize(strings.ToUpper(level), levelColor(level))
	}
	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
	return cw
}

func levelColor(level string) int {
	switch level {
	case "debug":
		return 36 // cyan
	case "info":
		return 32 // green
	case "warn":
		return 33 // yellow
	case "error", "fatal", "panic":
		return 31 // red
	default:
		return 37 // white
	}
}

func colorize(s string, color int) string {
	if os.Getenv("NO_COLOR") != "" {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (z *ZLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *ZLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *ZLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *ZLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *ZLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }

// With returns a new Logger with the given fields attached to every
// subsequent entry.
func (z *ZLogger) With(fields map[string]interface{}) Logger {
	ctx := z.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &ZLogger{Logger: ctx.Logger(), service: z.service}
}
