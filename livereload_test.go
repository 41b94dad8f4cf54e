package dashserve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestTakeSnapshotDetectsChanges(t *testing.T) {
	t.Parallel()
	dir := newPublicDir(t)

	before, err := takeSnapshot(dir)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if before.files != 5 {
		t.Errorf("expected 5 files, got %d", before.files)
	}

	same, _ := takeSnapshot(dir)
	if same != before {
		t.Errorf("expected identical snapshots for an unchanged tree")
	}

	writeTree(t, dir, map[string]string{"chunk-abc.js": "export {}"})
	after, _ := takeSnapshot(dir)
	if after == before {
		t.Error("expected a new file to change the snapshot")
	}
}

func TestTakeSnapshotMissingDir(t *testing.T) {
	t.Parallel()
	if _, err := takeSnapshot(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestLiveReloadScript(t *testing.T) {
	t.Parallel()
	lr := newLiveReload(t.TempDir(), time.Second, discardLogger)
	rec := httptest.NewRecorder()
	lr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LiveReloadScriptPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/javascript; charset=utf-8" {
		t.Errorf("expected javascript content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"`+LiveReloadPath+`"`) {
		t.Errorf("expected script to reference %s, got %q", LiveReloadPath, rec.Body.String())
	}
}

func TestLiveReloadRejectsPlainRequest(t *testing.T) {
	t.Parallel()
	lr := newLiveReload(t.TempDir(), time.Second, discardLogger)
	rec := httptest.NewRecorder()
	lr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LiveReloadPath, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for a non-websocket request, got %d", http.StatusBadRequest, rec.Code)
	}
	if lr.count() != 0 {
		t.Errorf("expected no clients, got %d", lr.count())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLiveReloadBroadcastsOnChange(t *testing.T) {
	t.Parallel()
	dir := newPublicDir(t)
	lr := newLiveReload(dir, 10*time.Millisecond, discardLogger)
	ts := httptest.NewServer(lr)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watching := make(chan struct{})
	initial := lr.snapshot()
	go func() {
		defer close(watching)
		lr.watch(ctx, initial)
	}()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+LiveReloadPath, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
	}
	waitFor(t, "client registration", func() bool { return lr.count() == 1 })

	if err := os.WriteFile(filepath.Join(dir, "chunk-new.js"), []byte("export {}"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg reloadMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected reload message, got error %v", err)
	}
	if msg.Type != "reload" {
		t.Errorf("expected message type reload, got %q", msg.Type)
	}

	cancel()
	<-watching
	if lr.count() != 0 {
		t.Errorf("expected clients to be disconnected, got %d", lr.count())
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going away close frame, got %v", err)
	}
}

func TestLiveReloadRefusesClientsAfterClose(t *testing.T) {
	t.Parallel()
	lr := newLiveReload(t.TempDir(), time.Second, discardLogger)
	ts := httptest.NewServer(lr)
	defer ts.Close()
	lr.close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+LiveReloadPath, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if lr.count() != 0 {
		t.Errorf("expected no clients, got %d", lr.count())
	}
}
