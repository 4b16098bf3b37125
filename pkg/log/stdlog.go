package log

import (
	stdlog "log"
	"strings"
)

// RedirectStdLog routes the standard library's global logger through l so
// that dependencies logging via package log share one output and format.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{l: l})
}

type stdLogWriter struct{ l Logger }

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
