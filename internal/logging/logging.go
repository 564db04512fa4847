// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logLevelMatches = map[string]zerolog.Level{
	"NONE":  zerolog.Disabled,
	"TRACE": zerolog.TraceLevel,
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"FATAL": zerolog.FatalLevel,
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	if l, ok := logLevelMatches[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// Options select where logs go.
type Options struct {
	Level string
	File  string
	// Quiet keeps logs off stdout and stderr, for when a full-screen UI
	// owns the terminal.
	Quiet bool
	// Sink receives every JSON log line in addition to the other outputs.
	Sink io.Writer
}

// Setup installs the global logger. The returned func closes the log file.
func Setup(opts Options) (func(), error) {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	var writers []io.Writer
	closer := func() {}
	if !opts.Quiet {
		writers = append(writers, consoleWriter())
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = func() { _ = f.Close() }
	}
	if opts.Sink != nil {
		writers = append(writers, opts.Sink)
	}

	switch len(writers) {
	case 0:
		log.Logger = zerolog.Nop()
	case 1:
		log.Logger = zerolog.New(writers[0]).With().Timestamp().Logger()
	default:
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	}
	return closer, nil
}

func consoleWriter() io.Writer {
	if isTerminalAttached() {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	}
	return os.Stderr
}

func isTerminalAttached() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) && runtime.GOOS != "windows"
}
