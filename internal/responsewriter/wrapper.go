// Package responsewriter wraps http.ResponseWriter to record what was sent while
// preserving the optional interfaces (Hijacker for WebSocket upgrades, Flusher, ReaderFrom
// for file transfers).
package responsewriter

import (
	"bufio"
	"io"
	"net"
	"net/http"
)

// Wrapper is an interface that all ResponseWriter wrappers should implement
type Wrapper interface {
	http.ResponseWriter
	// Unwrap returns the original ResponseWriter
	Unwrap() http.ResponseWriter
}

// Recorder captures the status code and the number of body bytes written.
// A handler that never calls WriteHeader is recorded as 200 OK.
type Recorder struct {
	http.ResponseWriter
	status   int
	written  int64
	hijacked bool
}

// New wraps w in a Recorder.
func New(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

// Status returns the response status, or 200 if none was written explicitly.
func (rec *Recorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// BytesWritten returns the number of body bytes passed to the underlying writer.
func (rec *Recorder) BytesWritten() int64 { return rec.written }

// Hijacked reports whether the connection was taken over, e.g. by a WebSocket upgrade.
func (rec *Recorder) Hijacked() bool { return rec.hijacked }

// Unwrap returns the original ResponseWriter. It lets http.ResponseController reach it.
func (rec *Recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// WriteHeader records the first status code and forwards it.
func (rec *Recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *Recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Hijack implements http.Hijacker interface if the underlying ResponseWriter supports it
func (rec *Recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		rec.hijacked = true
		if rec.status == 0 {
			rec.status = http.StatusSwitchingProtocols
		}
	}
	return conn, rw, err
}

// Flush implements http.Flusher interface if the underlying ResponseWriter supports it
func (rec *Recorder) Flush() {
	flusher, ok := rec.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

// ReadFrom implements io.ReaderFrom so http.ServeContent keeps using sendfile
// when the underlying writer supports it.
func (rec *Recorder) ReadFrom(r io.Reader) (n int64, err error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rf, ok := rec.ResponseWriter.(io.ReaderFrom)
	if !ok {
		// Fall back to default behavior
		n, err = io.Copy(writerOnly{rec.ResponseWriter}, r)
	} else {
		n, err = rf.ReadFrom(r)
	}
	rec.written += n
	return n, err
}

// writerOnly hides ReadFrom so io.Copy does not recurse into it.
type writerOnly struct{ io.Writer }

// Ensure Recorder implements all optional interfaces
var (
	_ Wrapper       = (*Recorder)(nil)
	_ http.Hijacker = (*Recorder)(nil)
	_ http.Flusher  = (*Recorder)(nil)
	_ io.ReaderFrom = (*Recorder)(nil)
)
