// Copyright 2024 by Oliver Sauer
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

// Package dashserve serves a pre-built single page application from a local document root,
// routing client-side paths to the entry document and adding permissive CORS headers.
package dashserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPortInUse is returned by Listen when another process already holds the address.
	ErrPortInUse = errors.New("address already in use")
	// ErrServerRunning is returned when Listen is called on a server that already listens or has stopped.
	ErrServerRunning = errors.New("server already started")
	// ErrNotListening is returned by Serve when Listen has not succeeded first.
	ErrNotListening = errors.New("server is not listening")
)

// State is the lifecycle position of a Server.
type State int32

const (
	StateNotStarted State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// defaultShutdownTimeout applies when the options leave the timeout at zero.
const defaultShutdownTimeout = 5 * time.Second

// ServerOptionFunc configures a Server in NewServer.
type ServerOptionFunc func(srv *Server)

// Server serves the document root of one dashboard. Instances share no state,
// so several can run side by side on different addresses.
type Server struct {
	Options *ServerOptions

	log        *slog.Logger
	files      *FileServer
	live       *liveReload
	handler    http.Handler
	httpServer *http.Server

	mu        sync.Mutex
	listener  net.Listener
	state     atomic.Int32
	closeOnce sync.Once
}

// NewServer creates a new instance of the Server. Options are layered on top of
// NewServerOptions, the document root is opened and the handler chain is built.
func NewServer(opts ...ServerOptionFunc) (*Server, error) {
	return newServer(NewServerOptions(), opts...)
}

func newServer(options *ServerOptions, opts ...ServerOptionFunc) (*Server, error) {
	srv := &Server{
		Options: options,
		log:     logger,
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.Options.CORS = normalizeCORSOptions(srv.Options.CORS)

	if err := srv.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server options: %w", err)
	}

	files, err := NewFileServer(srv.Options.DocumentRoot)
	if err != nil {
		return nil, err
	}
	files.log = srv.log
	srv.files = files

	if srv.Options.LiveReload {
		srv.live = newLiveReload(srv.Options.DocumentRoot, srv.Options.LiveReloadInterval, srv.log)
	}
	srv.handler = srv.buildHandler()

	srv.httpServer = &http.Server{
		Handler:      srv.handler,
		ReadTimeout:  srv.Options.ReadTimeout,
		WriteTimeout: srv.Options.WriteTimeout,
		IdleTimeout:  srv.Options.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(srv.log.Handler(), LevelWarn),
	}
	return srv, nil
}

// buildHandler composes the chain: CORS headers first so that every outcome carries
// them, then logging, recovery, the method policy, rate limiting and finally the
// live reload endpoints or the rewritten file lookup.
func (srv *Server) buildHandler() http.Handler {
	stack := MiddlewareStack{
		CORSMiddleware(srv.Options.CORS),
		RequestLoggerMiddleware(srv.log),
		RecoveryMiddleware(srv.log),
		MethodMiddleware,
	}
	if srv.Options.RateLimit > 0 {
		stack = append(stack, RateLimitMiddleware(srv.Options.RateLimit, srv.Options.Burst))
	}

	rewrite := SPARewrite(srv.Options.IndexFile, srv.Options.RewritePrefixes...)
	files := RewriteMiddleware(rewrite)(srv.files)

	var final http.Handler = files
	if srv.live != nil {
		live := srv.live
		final = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == LiveReloadPath || r.URL.Path == LiveReloadScriptPath {
				live.ServeHTTP(w, r)
				return
			}
			files.ServeHTTP(w, r)
		})
	}
	return stack.Then(final)
}

// Handler returns the complete request handler, usable without a socket.
func (srv *Server) Handler() http.Handler {
	return srv.handler
}

// State reports where the server is in its lifecycle.
func (srv *Server) State() State {
	return State(srv.state.Load())
}

// Listen binds the configured address. A port held by another process yields an
// error matching ErrPortInUse.
func (srv *Server) Listen() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.State() != StateNotStarted {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", srv.Options.Addr)
	if err != nil {
		if isAddrInUse(err) {
			return fmt.Errorf("listen on %s: %w", srv.Options.Addr, ErrPortInUse)
		}
		return fmt.Errorf("listen on %s: %w", srv.Options.Addr, err)
	}
	srv.listener = ln
	srv.state.Store(int32(StateListening))
	srv.log.Info("Server listening", "addr", ln.Addr().String(), "root", srv.Options.DocumentRoot,
		"rate-limit", formatLimit(srv.Options.RateLimit), "live-reload", srv.Options.LiveReload)
	return nil
}

// Addr returns the bound address, or nil before Listen succeeded.
func (srv *Server) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Listen succeeded.
func (srv *Server) Port() int {
	if addr, ok := srv.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// URL returns the base URL announced to the operator.
func (srv *Server) URL() string {
	return "http://localhost:" + strconv.Itoa(srv.Port())
}

// DashboardURL returns the URL of the dashboard entry route.
func (srv *Server) DashboardURL() string {
	return srv.URL() + srv.Options.DashboardPath
}

// Serve accepts connections until ctx is cancelled, then stops accepting, gives
// in-flight requests up to ShutdownTimeout and returns nil.
func (srv *Server) Serve(ctx context.Context) error {
	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()
	if ln == nil || srv.State() != StateListening {
		return ErrNotListening
	}

	liveCtx, stopLive := context.WithCancel(ctx)
	defer stopLive()
	var wg sync.WaitGroup
	if srv.live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.live.run(liveCtx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.httpServer.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		srv.log.Info("Shutting down server...", "reason", context.Cause(ctx))
		err = srv.shutdown()
		<-serveErr
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	stopLive()
	wg.Wait()
	srv.state.Store(int32(StateStopped))
	if closeErr := srv.closeFiles(); closeErr != nil {
		srv.log.Warn("Failed to close document root", "error", closeErr)
	}
	return err
}

func (srv *Server) shutdown() error {
	timeout := srv.Options.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	// live reload connections are hijacked and not tracked by Shutdown
	if srv.live != nil {
		srv.live.close()
	}
	if err := srv.httpServer.Shutdown(ctx); err != nil {
		srv.log.Error("Server forced to shutdown.", "error", err)
		return srv.httpServer.Close()
	}
	srv.log.Info("Server is shut down.")
	return nil
}

// Run binds the configured address and serves until ctx is cancelled.
func (srv *Server) Run(ctx context.Context) error {
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Close releases the listener and the document root without waiting for in-flight requests.
func (srv *Server) Close() error {
	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()

	var errs []error
	if err := srv.httpServer.Close(); err != nil {
		errs = append(errs, err)
	}
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	srv.state.Store(int32(StateStopped))
	if err := srv.closeFiles(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (srv *Server) closeFiles() error {
	var err error
	srv.closeOnce.Do(func() { err = srv.files.Close() })
	return err
}
