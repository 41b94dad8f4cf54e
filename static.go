package dashserve

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

const indexDocument = "index.html"

// FileServer serves files below a document root. Lookups go through an [os.Root],
// so neither ".." segments nor symlinks can reach files outside of it.
type FileServer struct {
	dir  string
	root *os.Root
	log  *slog.Logger
}

// NewFileServer opens dir as the document root.
func NewFileServer(dir string) (*FileServer, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening document root: %w", err)
	}
	return &FileServer{dir: dir, root: root, log: logger}, nil
}

// Dir returns the document root the server was opened with.
func (fsrv *FileServer) Dir() string { return fsrv.dir }

// Close releases the document root.
func (fsrv *FileServer) Close() error {
	return fsrv.root.Close()
}

// ServeHTTP streams the file named by the request path. Directories are served through
// their index.html; there is no directory listing.
func (fsrv *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := rootRelative(r.URL.Path)

	fi, err := fsrv.root.Stat(name)
	if err != nil {
		fsrv.respondOpenError(w, name, err)
		return
	}
	if fi.IsDir() {
		name = path.Join(name, indexDocument)
		if fi, err = fsrv.root.Stat(name); err != nil {
			fsrv.respondOpenError(w, name, err)
			return
		}
	}
	if !fi.Mode().IsRegular() {
		writeError(w, http.StatusNotFound)
		return
	}

	f, err := fsrv.root.Open(name)
	if err != nil {
		fsrv.respondOpenError(w, name, err)
		return
	}
	defer f.Close()

	// the name passed to ServeContent only drives the content type lookup
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

// rootRelative turns a URL path into a name relative to the document root.
// path.Clean on a rooted path drops every ".." that would climb above "/".
func rootRelative(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return "."
	}
	return name
}

func (fsrv *FileServer) respondOpenError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound)
		return
	}
	// permission problems and attempts to leave the root end up here
	fsrv.log.Warn("Refusing to serve file", "name", name, "error", err)
	writeError(w, http.StatusForbidden)
}

// writeError writes a minimal plain text body for status.
func writeError(w http.ResponseWriter, status int) {
	http.Error(w, fmt.Sprintf("%d %s", status, http.StatusText(status)), status)
}
