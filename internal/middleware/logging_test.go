package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

type logEntry struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	level   slog.Level
	attrs   []slog.Attr
	mu      sync.Mutex
	entries []logEntry
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := map[string]any{}
	for _, attr := range h.attrs {
		attrs[attr.Key] = attr.Value.Any()
	}
	record.Attrs(func(attr slog.Attr) bool {
		attrs[attr.Key] = attr.Value.Any()
		return true
	})

	h.mu.Lock()
	h.entries = append(h.entries, logEntry{
		level: record.Level,
		msg:   record.Message,
		attrs: attrs,
	})
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{
		level:   h.level,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
		entries: h.entries,
	}
}

func (h *recordingHandler) WithGroup(_ string) slog.Handler {
	return &recordingHandler{
		level:   h.level,
		attrs:   h.attrs,
		entries: h.entries,
	}
}

func (h *recordingHandler) Entries() []logEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]logEntry, len(h.entries))
	copy(entries, h.entries)
	return entries
}

func serveLogged(t *testing.T, path string, status int, requestID string) []logEntry {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := &recordingHandler{level: slog.LevelInfo}

	router := gin.New()
	router.Use(RequestID(), RequestLogger(slog.New(handler)))
	router.GET(path, func(c *gin.Context) { c.Status(status) })

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(RequestIDHeader, requestID)
	router.ServeHTTP(httptest.NewRecorder(), req)
	return handler.Entries()
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusTooManyRequests, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			entries := serveLogged(t, "/api/assistant/ask", tt.status, "req-1")
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.level != tt.level || entry.msg != "http_request" {
				t.Fatalf("unexpected entry: %+v", entry)
			}
			if entry.attrs["request_id"] != "req-1" || entry.attrs["path"] != "/api/assistant/ask" {
				t.Fatalf("unexpected attrs: %v", entry.attrs)
			}
			if fmt.Sprint(entry.attrs["status"]) != fmt.Sprint(tt.status) {
				t.Fatalf("unexpected status attr: %v", entry.attrs["status"])
			}
		})
	}
}

func TestRequestLoggerSkipsNoisyPathsOnSuccess(t *testing.T) {
	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		if entries := serveLogged(t, path, http.StatusOK, "req-health"); len(entries) != 0 {
			t.Fatalf("%s: expected no log entry, got %d", path, len(entries))
		}
	}
	if entries := serveLogged(t, "/health/ready", http.StatusServiceUnavailable, "req-down"); len(entries) != 1 {
		t.Fatalf("failed health checks should be logged, got %d", len(entries))
	}
}
