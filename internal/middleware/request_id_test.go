package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestIDReusesIncomingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequestID()(passthrough)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := GetRequestID(c); got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected response header req-123, got %q", got)
	}
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequestID()(passthrough)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := GetRequestID(c)
	if id == "" {
		t.Fatal("expected a generated request ID")
	}
	if rec.Header().Get(RequestIDHeader) != id {
		t.Fatal("expected response header to match context ID")
	}
}
