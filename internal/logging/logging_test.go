package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"none":    zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupFileAndSink(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	path := filepath.Join(t.TempDir(), "client.log")

	var lines []Line
	closeLog, err := Setup(Options{
		Level: "debug",
		File:  path,
		Quiet: true,
		Sink:  NewSink(func(l Line) { lines = append(lines, l) }),
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Debug().Str("k", "v").Msg("hello")
	log.Trace().Msg("dropped")
	closeLog()

	if len(lines) != 1 {
		t.Fatalf("sink got %d lines, want 1", len(lines))
	}
	if lines[0].Level != "debug" || lines[0].Message != "hello" {
		t.Errorf("line = %+v", lines[0])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("log file = %s", data)
	}
}

func TestSinkIgnoresGarbage(t *testing.T) {
	called := false
	s := NewSink(func(Line) { called = true })
	n, err := s.Write([]byte("not json"))
	if err != nil || n != 8 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if called {
		t.Fatal("sink called for garbage")
	}
}

func TestSetupBadFile(t *testing.T) {
	if _, err := Setup(Options{File: filepath.Join(t.TempDir(), "missing", "x.log"), Quiet: true}); err == nil {
		t.Fatal("expected error")
	}
}
