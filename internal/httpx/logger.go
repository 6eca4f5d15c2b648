package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// slogFormatter writes chi access logs through slog so they share the
// application's JSON stream.
type slogFormatter struct {
	logger *slog.Logger
}

func (f *slogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &slogEntry{
		logger: f.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		),
		r: r,
	}
}

type slogEntry struct {
	logger *slog.Logger
	r      *http.Request
}

func (e *slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.logger.InfoContext(e.r.Context(), "request served",
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

func (e *slogEntry) Panic(v any, stack []byte) {
	e.logger.ErrorContext(e.r.Context(), "request panicked", "panic", v, "stack", string(stack))
}
