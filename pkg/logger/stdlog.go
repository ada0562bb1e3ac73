package logger

import (
	"bytes"
	"log"

	"github.com/rs/zerolog"
)

// levelWriter forwards each line of a standard library logger as one event.
type levelWriter struct {
	level     zerolog.Level
	component string
}

func (w levelWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\n"))
	globalLogger.WithLevel(w.level).Str("component", w.component).Msg(msg)
	return len(p), nil
}

// StdLogger returns a *log.Logger for libraries that only accept the
// standard logger. Every line is logged at level and tagged with component.
func StdLogger(component string, level zerolog.Level) *log.Logger {
	return log.New(levelWriter{level: level, component: component}, "", 0)
}
