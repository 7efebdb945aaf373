// Package telemetry provides the node's logging adapter.
//
// The components that log (peer.Peer, node.Node, node.Chain) take a Logger
// at construction; there is no package-level global logger.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the printf-style helpers the rest of the
// codebase is written against.
type Logger struct {
	zerolog.Logger
	service string
}

// NewLogger builds a Logger for the named component. When pretty is true a
// colorized console writer is used (development); otherwise plain JSON
// lines are written to w (production, log aggregation).
func NewLogger(service string, w io.Writer, pretty bool, level string) *Logger {
	if service == "" {
		service = "node"
	}
	if w == nil {
		w = os.Stdout
	}

	var base zerolog.Logger
	if pretty {
		base = prettyLogger(service, w)
	} else {
		base = zerolog.New(w).With().
			Str("service", service).
			Timestamp().
			Logger()
	}

	l := &Logger{Logger: base, service: service}
	l.SetLevel(level)
	return l
}

func prettyLogger(service string, w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	out.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-10s| %s", service, i)
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// SetLevel sets the minimum accepted level from a textual name
// (DEBUG/INFO/WARN/ERROR/FATAL/PANIC), defaulting to INFO.
func (l *Logger) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.Logger = l.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		l.Logger = l.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		l.Logger = l.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		l.Logger = l.Logger.Level(zerolog.FatalLevel)
	case "PANIC":
		l.Logger = l.Logger.Level(zerolog.PanicLevel)
	default:
		l.Logger = l.Logger.Level(zerolog.InfoLevel)
	}
}

// With returns a child Logger with the given field attached, for
// per-connection or per-peer context (address, protocol_version, ...).
func (l *Logger) With(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, value).Timestamp().Logger(), service: l.service}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.Logger.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Logger.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Logger.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Logger.Error().Msgf(format, args...) }

// Nop returns a Logger that discards all output, for tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.New(io.Discard), service: "nop"}
}
