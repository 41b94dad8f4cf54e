package dashserve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultCORSOptions(t *testing.T) {
	t.Parallel()
	want := &CORSOptions{
		AllowOrigin:    "*",
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}
	if diff := cmp.Diff(want, DefaultCORSOptions()); diff != "" {
		t.Fatalf("default CORS options mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeCORSOptions(t *testing.T) {
	t.Parallel()
	got := normalizeCORSOptions(&CORSOptions{
		AllowOrigin:    "  https://app.example ",
		AllowedMethods: []string{"get", " GET", "", "options"},
		AllowedHeaders: []string{"Content-Type", "X-Trace", "X-Trace"},
	})
	want := &CORSOptions{
		AllowOrigin:    "https://app.example",
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Trace"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalised options mismatch (-want +got):\n%s", diff)
	}
}

func TestCORSOptionsApply(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Set(headerAllowOrigin, "https://stale.example")
	DefaultCORSOptions().Apply(h)

	want := http.Header{
		"Access-Control-Allow-Origin":  {"*"},
		"Access-Control-Allow-Methods": {"GET, POST, OPTIONS"},
		"Access-Control-Allow-Headers": {"Content-Type"},
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestCORSMiddlewareOnErrorResponses(t *testing.T) {
	t.Parallel()
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(status), status)
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != status {
			t.Errorf("expected status %d, got %d", status, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("status %d: expected allow origin *, got %q", status, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
			t.Errorf("status %d: expected allow methods, got %q", status, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
			t.Errorf("status %d: expected allow headers, got %q", status, got)
		}
	}
}
