package dashserve

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// discardLogger keeps test output readable.
var discardLogger = slog.New(slog.DiscardHandler)

// writeTree creates files below dir; keys are slash separated relative paths.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// newPublicDir returns a document root holding a typical dashboard bundle.
func newPublicDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"index.html":        "<!doctype html><title>Dashboard</title>",
		"dashboard.js":      "console.log('dashboard');",
		"css/main.css":      "body { margin: 0; }",
		"assets/index.html": "<p>assets</p>",
		"empty/.keep":       "",
	})
	return dir
}

// newTestServer builds a server on a loopback ephemeral port without reading the
// process environment or any options file.
func newTestServer(t *testing.T, opts ...ServerOptionFunc) *Server {
	t.Helper()
	base := []ServerOptionFunc{
		WithDocumentRoot(newPublicDir(t)),
		WithAddr("127.0.0.1:0"),
		WithLogger(discardLogger),
	}
	srv, err := newServer(defaultServerOptions(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}
