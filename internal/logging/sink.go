package logging

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Line is one decoded log record.
type Line struct {
	Time    time.Time
	Level   string
	Message string
	Err     string
}

// Sink decodes zerolog JSON records and hands them to fn. It is used to
// mirror logs into the UI's debug panel.
type Sink struct {
	fn func(Line)
}

// NewSink creates a sink calling fn for every record.
func NewSink(fn func(Line)) *Sink {
	return &Sink{fn: fn}
}

func (s *Sink) Write(p []byte) (int, error) {
	if !gjson.ValidBytes(p) {
		return len(p), nil
	}
	rec := gjson.ParseBytes(p)
	line := Line{
		Level:   rec.Get(zerolog.LevelFieldName).String(),
		Message: rec.Get(zerolog.MessageFieldName).String(),
		Err:     rec.Get(zerolog.ErrorFieldName).String(),
	}
	if ts := rec.Get(zerolog.TimestampFieldName).String(); ts != "" {
		line.Time, _ = time.Parse(zerolog.TimeFieldFormat, ts)
	}
	if line.Time.IsZero() {
		line.Time = time.Now()
	}
	s.fn(line)
	return len(p), nil
}
