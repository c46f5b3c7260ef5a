package process

import (
	"bytes"
	"log/slog"
	"sync"
)

// lineWriter splits a child's raw output stream into lines and emits each as
// a structured log record. Partial lines are buffered until a newline or
// Close.
type lineWriter struct {
	logger *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep for next write
			w.buf.WriteString(line)
			break
		}
		if msg := trimEOL(line); msg != "" {
			w.logger.Info(msg)
		}
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if msg := trimEOL(w.buf.String()); msg != "" {
		w.logger.Info(msg)
	}
	w.buf.Reset()
	return nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
