package dashserve

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// Environment management variable names
const (
	paramServerAddr   = "SERVER_ADDR"
	paramPort         = "PORT"
	paramDocumentRoot = "DOCUMENT_ROOT"
	paramLiveReload   = "LIVE_RELOAD"
	paramFileName     = "options.json"
	paramDotEnvName   = ".env"
)

// DefaultPort is the port the dashboard is served on unless configured otherwise.
const DefaultPort = 3000

// publicDirName is the document root below the install directory.
const publicDirName = "public"

// rateLimit limits requests per second per client. Zero disables [RateLimitMiddleware].
type rateLimit = rate.Limit

// ServerOptions is a representation of the Server settings
type ServerOptions struct {
	Addr               string        `json:"addr,omitempty"`
	DocumentRoot       string        `json:"document_root,omitempty"`
	IndexFile          string        `json:"index_file,omitempty"`
	RewritePrefixes    []string      `json:"rewrite_prefixes,omitempty"`
	DashboardPath      string        `json:"dashboard_path,omitempty"`
	CORS               *CORSOptions  `json:"cors,omitempty"`
	ReadTimeout        time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout       time.Duration `json:"write_timeout,omitempty"`
	IdleTimeout        time.Duration `json:"idle_timeout,omitempty"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout,omitempty"`
	RateLimit          rateLimit     `json:"rate_limit,omitempty"`
	Burst              int           `json:"burst,omitempty"`
	LiveReload         bool          `json:"live_reload,omitempty"`
	LiveReloadInterval time.Duration `json:"live_reload_interval,omitempty"`
}

func defaultServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:               ":" + strconv.Itoa(DefaultPort),
		DocumentRoot:       filepath.Join(InstallDir(), publicDirName),
		IndexFile:          "/index.html",
		RewritePrefixes:    []string{"/dashboard"},
		DashboardPath:      "/dashboard",
		CORS:               DefaultCORSOptions(),
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		RateLimit:          0,
		Burst:              20,
		LiveReload:         false,
		LiveReloadInterval: 500 * time.Millisecond,
	}
}

// NewServerOptions creates a new configuration for the server with a priority order.
// 1. Environment variables
// 2. .env file next to the executable
// 3. ServerOptions file (JSON) next to the executable
// 4. Default values
func NewServerOptions() *ServerOptions {
	dir := InstallDir()
	return loadServerOptions(dir, os.LookupEnv)
}

// loadServerOptions applies the configuration layers found in dir on top of the defaults.
// lookup resolves process environment variables and takes precedence over .env values.
func loadServerOptions(dir string, lookup func(string) (string, bool)) *ServerOptions {
	config := defaultServerOptions()
	if dir != "" {
		config.DocumentRoot = filepath.Join(dir, publicDirName)
		applyConfigFile(config, filepath.Join(dir, paramFileName))
	}
	dotenv := readDotEnv(filepath.Join(dir, paramDotEnvName))
	applyEnvVars(config, func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
	return config
}

// InstallDir returns the directory holding the running executable, so the server
// finds its document root regardless of the working directory.
func InstallDir() string {
	exe, err := os.Executable()
	if err != nil {
		logger.Warn("Failed to resolve executable path; using working directory", "error", err)
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// helper to read a options file and apply it to the options
func applyConfigFile(config *ServerOptions, name string) {
	file, err := os.Open(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to open options file.", "error", err, "file", name)
		}
		return
	}

	// make sure file is closed after reading
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			logger.Error("Failed to close file", "error", err, "file-name", file.Name())
		}
	}(file)

	fileConfig := &ServerOptions{}
	if err := json.NewDecoder(file).Decode(fileConfig); err != nil {
		logger.Warn("Options file could not be decoded; using environment and defaults", "error", err, "file", name)
		return
	}
	logger.Info("Server configuration loaded from file", "file", name)
	mergeConfig(config, fileConfig)
}

// readDotEnv reads KEY=value pairs without touching the process environment.
func readDotEnv(name string) map[string]string {
	values, err := godotenv.Read(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to read .env file", "error", err, "file", name)
		}
		return nil
	}
	logger.Debug("Loaded .env file", "file", name, "keys", len(values))
	return values
}

// helper to read environment variables and apply them to the options
func applyEnvVars(config *ServerOptions, lookup func(string) (string, bool)) {
	if addr, ok := lookup(paramServerAddr); ok && addr != "" {
		config.Addr = addr
		logger.Info("Server address set from environment variable", "variable", paramServerAddr, "addr", addr)
	}
	if port, ok := lookup(paramPort); ok && port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			logger.Warn("Ignoring invalid port", "variable", paramPort, "value", port)
		} else {
			host, _, _ := net.SplitHostPort(config.Addr)
			config.Addr = net.JoinHostPort(host, port)
			logger.Info("Server port set from environment variable", "variable", paramPort, "addr", config.Addr)
		}
	}
	if root, ok := lookup(paramDocumentRoot); ok && root != "" {
		config.DocumentRoot = root
		logger.Info("Document root set from environment variable", "variable", paramDocumentRoot, "root", root)
	}
	if live, ok := lookup(paramLiveReload); ok && live != "" {
		enabled, err := strconv.ParseBool(live)
		if err != nil {
			logger.Warn("Ignoring invalid boolean", "variable", paramLiveReload, "value", live)
		} else {
			config.LiveReload = enabled
		}
	}
}

// mergeConfig overrides default options with values of override if set
func mergeConfig(base *ServerOptions, override *ServerOptions) {
	if override.Addr != "" {
		base.Addr = override.Addr
	}
	if override.DocumentRoot != "" {
		base.DocumentRoot = override.DocumentRoot
	}
	if override.IndexFile != "" {
		base.IndexFile = override.IndexFile
	}
	if len(override.RewritePrefixes) > 0 {
		base.RewritePrefixes = override.RewritePrefixes
	}
	if override.DashboardPath != "" {
		base.DashboardPath = override.DashboardPath
	}
	if override.CORS != nil {
		base.CORS = normalizeCORSOptions(override.CORS)
	}
	if override.ReadTimeout != 0 {
		base.ReadTimeout = override.ReadTimeout
	}
	if override.WriteTimeout != 0 {
		base.WriteTimeout = override.WriteTimeout
	}
	if override.IdleTimeout != 0 {
		base.IdleTimeout = override.IdleTimeout
	}
	if override.ShutdownTimeout != 0 {
		base.ShutdownTimeout = override.ShutdownTimeout
	}
	if override.RateLimit != 0 {
		base.RateLimit = override.RateLimit
	}
	if override.Burst != 0 {
		base.Burst = override.Burst
	}
	if override.LiveReload {
		base.LiveReload = true
	}
	if override.LiveReloadInterval != 0 {
		base.LiveReloadInterval = override.LiveReloadInterval
	}
}

// Validate reports the first setting that would keep the server from starting.
func (o *ServerOptions) Validate() error {
	if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", o.Addr, err)
	}
	if o.DocumentRoot == "" {
		return errors.New("document root is not set")
	}
	fi, err := os.Stat(o.DocumentRoot)
	if err != nil {
		return fmt.Errorf("document root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("document root %s is not a directory", o.DocumentRoot)
	}
	if !strings.HasPrefix(o.IndexFile, "/") {
		return fmt.Errorf("index file %q must start with /", o.IndexFile)
	}
	if o.Burst < 0 {
		return fmt.Errorf("burst must not be negative, got %d", o.Burst)
	}
	if o.LiveReload && o.LiveReloadInterval <= 0 {
		return fmt.Errorf("live reload interval must be positive, got %s", o.LiveReloadInterval)
	}
	return nil
}

// WithAddr sets the listen address, e.g. ":3000" or "127.0.0.1:0".
func WithAddr(addr string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.Addr = addr
	}
}

// WithPort keeps the configured host and replaces the port.
func WithPort(port int) ServerOptionFunc {
	return func(srv *Server) {
		host, _, _ := net.SplitHostPort(srv.Options.Addr)
		srv.Options.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

// WithDocumentRoot sets the directory files are served from.
func WithDocumentRoot(dir string) ServerOptionFunc {
	return func(srv *Server) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		srv.Options.DocumentRoot = dir
	}
}

// WithRewrite replaces the SPA entry document and the prefixes routed to it.
func WithRewrite(index string, prefixes ...string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.IndexFile = index
		srv.Options.RewritePrefixes = prefixes
	}
}

// WithCORS replaces the CORS header set.
func WithCORS(opts *CORSOptions) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.CORS = normalizeCORSOptions(opts)
	}
}

// WithTimeouts adds timeouts to the server. Zero values keep the current setting.
func WithTimeouts(readTimeout, writeTimeout, idleTimeout time.Duration) ServerOptionFunc {
	return func(srv *Server) {
		if readTimeout != 0 {
			srv.Options.ReadTimeout = readTimeout
		}
		if writeTimeout != 0 {
			srv.Options.WriteTimeout = writeTimeout
		}
		if idleTimeout != 0 {
			srv.Options.IdleTimeout = idleTimeout
		}
	}
}

// WithShutdownTimeout bounds how long in-flight requests may take after a stop.
func WithShutdownTimeout(d time.Duration) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.ShutdownTimeout = d
	}
}

// WithRateLimit sets rate limiting parameters of the server. A burst of zero or less
// keeps the configured burst.
func WithRateLimit(limit rateLimit, burst int) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.RateLimit = limit
		if burst > 0 {
			srv.Options.Burst = burst
		}
	}
}

// WithLiveReload enables the live reload endpoints and the document root poller.
func WithLiveReload(interval time.Duration) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.LiveReload = true
		if interval > 0 {
			srv.Options.LiveReloadInterval = interval
		}
	}
}

// WithLogger replaces the logger of this server instance.
func WithLogger(l *slog.Logger) ServerOptionFunc {
	return func(srv *Server) {
		if l != nil {
			srv.log = l
		}
	}
}
