package server

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	router := gin.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		HTTP:   config.HTTPConfig{Host: "127.0.0.1", Port: 8080},
		Gemini: config.GeminiConfig{TimeoutSeconds: 20},
	}

	server := NewHTTPServer(cfg, router, logger)
	if server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr: %s", server.Addr)
	}
	if server.Handler != router {
		t.Fatalf("expected plain router handler")
	}
	if server.WriteTimeout != 35*time.Second {
		t.Fatalf("write timeout must outlast the model timeout, got %s", server.WriteTimeout)
	}
	if server.ErrorLog == nil {
		t.Fatalf("expected error log bridged to slog")
	}

	cfg.HTTP.HTTP2Enabled = true
	server = NewHTTPServer(cfg, router, nil)
	if server.Handler == router {
		t.Fatalf("expected h2c wrapped handler")
	}
}
