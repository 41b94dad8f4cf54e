package responsewriter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecorderDefaultsToOK(t *testing.T) {
	t.Parallel()
	rec := New(httptest.NewRecorder())
	if got := rec.Status(); got != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, got)
	}
}

func TestRecorderCapturesFirstStatus(t *testing.T) {
	t.Parallel()
	inner := httptest.NewRecorder()
	rec := New(inner)
	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)
	if got := rec.Status(); got != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, got)
	}
	if inner.Code != http.StatusNotFound {
		t.Fatalf("expected underlying writer to get %d, got %d", http.StatusNotFound, inner.Code)
	}
}

func TestRecorderCountsBytes(t *testing.T) {
	t.Parallel()
	inner := httptest.NewRecorder()
	rec := New(inner)
	if _, err := rec.Write([]byte("hello ")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := rec.ReadFrom(strings.NewReader("world")); err != nil {
		t.Fatalf("read from failed: %v", err)
	}
	if got := rec.BytesWritten(); got != 11 {
		t.Fatalf("expected 11 bytes, got %d", got)
	}
	if got := inner.Body.String(); got != "hello world" {
		t.Fatalf("expected body %q, got %q", "hello world", got)
	}
}

func TestRecorderHijackNotSupported(t *testing.T) {
	t.Parallel()
	rec := New(httptest.NewRecorder())
	_, _, err := rec.Hijack()
	if !errors.Is(err, http.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if rec.Hijacked() {
		t.Fatal("expected recorder not to be marked hijacked")
	}
}

func TestRecorderUnwrap(t *testing.T) {
	t.Parallel()
	inner := httptest.NewRecorder()
	rec := New(inner)
	if rec.Unwrap() != http.ResponseWriter(inner) {
		t.Fatal("expected Unwrap to return the wrapped writer")
	}
}
