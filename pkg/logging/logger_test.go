package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toonranks/toonranks/pkg/config"
)

func TestInitLogger(t *testing.T) {
	oldLogger := Logger
	defer func() { Logger = oldLogger }()

	tests := []struct {
		name   string
		cfg    config.LoggingConfig
		enable zapcore.Level
	}{
		{"json info", config.LoggingConfig{Level: "INFO", Format: "json"}, zapcore.InfoLevel},
		{"text debug", config.LoggingConfig{Level: "debug", Format: "text"}, zapcore.DebugLevel},
		{"bad level falls back to info", config.LoggingConfig{Level: "loud", Format: "json"}, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := InitLogger(&tt.cfg); err != nil {
				t.Fatalf("InitLogger() error = %v", err)
			}
			if !Logger.Core().Enabled(tt.enable) {
				t.Errorf("expected level %v to be enabled", tt.enable)
			}
			if tt.enable > zapcore.DebugLevel && Logger.Core().Enabled(zapcore.DebugLevel) {
				t.Error("debug should be disabled")
			}
		})
	}
}

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	engine := gin.New()
	engine.Use(GinLogger(zap.New(core)))
	engine.GET("/forum/threads/:id", func(c *gin.Context) {
		c.Set(UserIDKey, uint(7))
		c.Status(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forum/threads/12", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("expected warn level for 404, got %v", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/forum/threads/:id" {
		t.Errorf("route = %v", fields["route"])
	}
	if fields["status"] != int64(404) {
		t.Errorf("status = %v", fields["status"])
	}
	if fields["user_id"] != uint64(7) {
		t.Errorf("user_id = %v", fields["user_id"])
	}
}
