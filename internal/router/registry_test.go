package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibernaut/hibernaut/internal/logger"
	"github.com/hibernaut/hibernaut/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.GetTheme("default"))
}

func TestWireUp_RegistersRoutesAndAppliesMiddleware(t *testing.T) {
	reg := NewRouteRegistry(testLogger())
	reg.Register("/hibernator-api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, "health check")

	var middlewareRan bool
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middlewareRan = true
			next.ServeHTTP(w, r)
		})
	}

	mux := http.NewServeMux()
	reg.WireUp(mux, middleware)

	req := httptest.NewRequest(http.MethodGet, "/hibernator-api/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !middlewareRan {
		t.Fatal("expected middleware to run before the handler")
	}
}

func TestRegisterWithMethod_PreservesInsertionOrder(t *testing.T) {
	reg := NewRouteRegistry(testLogger())
	reg.Register("/a", func(w http.ResponseWriter, r *http.Request) {}, "a")
	reg.RegisterWithMethod("/b", func(w http.ResponseWriter, r *http.Request) {}, "b", http.MethodPost)

	routes := reg.GetRoutes()
	if routes["/a"].Order != 0 || routes["/b"].Order != 1 {
		t.Fatalf("expected insertion-order Order values, got a=%d b=%d", routes["/a"].Order, routes["/b"].Order)
	}
	if routes["/b"].Method != http.MethodPost {
		t.Fatalf("expected POST method on /b, got %s", routes["/b"].Method)
	}
}
