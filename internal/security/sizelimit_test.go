package security

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/logger"
	"github.com/hibernaut/hibernaut/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.GetTheme("default"))
}

func TestSizeValidator_RejectsOversizedBody(t *testing.T) {
	sv := NewSizeValidator(config.ServerRequestLimits{MaxBodySize: 10, MaxHeaderSize: 0}, testLogger())
	handler := sv.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/hibernator-api/services", strings.NewReader("this body is far too long"))
	req.ContentLength = int64(len("this body is far too long"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestSizeValidator_AllowsSmallBody(t *testing.T) {
	sv := NewSizeValidator(config.ServerRequestLimits{MaxBodySize: 1024, MaxHeaderSize: 1024}, testLogger())
	handler := sv.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/hibernator-api/services", strings.NewReader("ok"))
	req.ContentLength = 2
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSizeValidator_ZeroLimitDisablesCheck(t *testing.T) {
	sv := NewSizeValidator(config.ServerRequestLimits{}, testLogger())
	result, err := sv.Validate(context.Background(), ports.SecurityRequest{BodySize: 1 << 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected a zero-valued limit to allow everything")
	}
}
