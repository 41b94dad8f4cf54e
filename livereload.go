package dashserve

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Live reload endpoints, only mounted when ServerOptions.LiveReload is set.
const (
	LiveReloadPath       = "/__livereload"
	LiveReloadScriptPath = "/__livereload.js"
)

const liveReloadWriteWait = 2 * time.Second

// liveReloadScript reconnects after the server restarts and reloads the page on change.
const liveReloadScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "` + LiveReloadPath + `");
    ws.onmessage = function (ev) {
      try {
        if (JSON.parse(ev.data).type === "reload") { location.reload(); }
      } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

// reloadMessage is sent to every connected browser when the document root changes.
type reloadMessage struct {
	Type string `json:"type"`
}

// snapshot summarises the document root; any difference means the bundle was rebuilt.
type snapshot struct {
	files   int
	size    int64
	modTime time.Time
}

// liveReload watches the document root and tells connected browsers to reload.
type liveReload struct {
	dir      string
	interval time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

func newLiveReload(dir string, interval time.Duration, log *slog.Logger) *liveReload {
	return &liveReload{
		dir:      dir,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			// the dashboard is served with permissive CORS; accept any origin here too
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP dispatches between the script and the WebSocket endpoint.
func (lr *liveReload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case LiveReloadScriptPath:
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(liveReloadScript))
	case LiveReloadPath:
		lr.serveSocket(w, r)
	default:
		writeError(w, http.StatusNotFound)
	}
}

func (lr *liveReload) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := lr.upgrader.Upgrade(w, r, upgradeHeader(w.Header()))
	if err != nil {
		// Upgrade already replied with an error status
		lr.log.Debug("Live reload upgrade failed", "error", err)
		return
	}
	if !lr.add(conn) {
		conn.Close()
		return
	}
	lr.log.Debug("Live reload client connected", "from", conn.RemoteAddr().String(), "clients", lr.count())

	// drain until the browser goes away; clients never send anything meaningful
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	lr.remove(conn)
	lr.log.Debug("Live reload client disconnected", "clients", lr.count())
}

// upgradeHeader copies the CORS headers set further up the chain, since Upgrade
// writes the 101 response straight to the hijacked connection.
func upgradeHeader(h http.Header) http.Header {
	out := make(http.Header)
	for name, values := range h {
		if strings.HasPrefix(name, "Access-Control-") {
			out[name] = append([]string(nil), values...)
		}
	}
	return out
}

func (lr *liveReload) add(conn *websocket.Conn) bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.closed {
		return false
	}
	lr.clients[conn] = struct{}{}
	return true
}

func (lr *liveReload) remove(conn *websocket.Conn) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if _, ok := lr.clients[conn]; ok {
		delete(lr.clients, conn)
		conn.Close()
	}
}

func (lr *liveReload) count() int {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return len(lr.clients)
}

// broadcast sends msg to every client and drops the ones that fail.
func (lr *liveReload) broadcast(msg reloadMessage) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	for conn := range lr.clients {
		conn.SetWriteDeadline(time.Now().Add(liveReloadWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			lr.log.Debug("Dropping live reload client", "error", err)
			delete(lr.clients, conn)
			conn.Close()
		}
	}
}

// run polls the document root until ctx is done, then disconnects every client.
func (lr *liveReload) run(ctx context.Context) {
	lr.watch(ctx, lr.snapshot())
}

func (lr *liveReload) snapshot() snapshot {
	s, err := takeSnapshot(lr.dir)
	if err != nil {
		lr.log.Warn("Live reload cannot read document root", "error", err)
	}
	return s
}

// watch compares the document root against last on every tick.
func (lr *liveReload) watch(ctx context.Context, last snapshot) {
	ticker := time.NewTicker(lr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lr.close()
			return
		case <-ticker.C:
			current, err := takeSnapshot(lr.dir)
			if err != nil {
				lr.log.Warn("Live reload cannot read document root", "error", err)
				continue
			}
			if current != last {
				last = current
				lr.log.Info("Document root changed, reloading clients", "clients", lr.count())
				lr.broadcast(reloadMessage{Type: "reload"})
			}
		}
	}
}

func (lr *liveReload) close() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.closed = true
	deadline := time.Now().Add(liveReloadWriteWait)
	for conn := range lr.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"), deadline)
		conn.Close()
		delete(lr.clients, conn)
	}
}

// takeSnapshot walks dir and records file count, total size and the newest mtime.
func takeSnapshot(dir string) (snapshot, error) {
	var s snapshot
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// removed between the directory read and the stat
			return nil
		}
		s.files++
		s.size += info.Size()
		if info.ModTime().After(s.modTime) {
			s.modTime = info.ModTime()
		}
		return nil
	})
	return s, err
}
