// Command dashserve serves the dashboard bundle found in the public directory next to
// the executable on http://localhost:3000.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/osauer/dashserve"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run starts the server and blocks until ctx is cancelled. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("dashserve", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		addr      = flags.String("addr", "", "Listen on `host:port`; overrides -port")
		port      = flags.Int("port", 0, "Port to listen on (default "+strconv.Itoa(dashserve.DefaultPort)+")")
		root      = flags.String("root", "", "Document root (default <install-dir>/public)")
		live      = flags.Bool("live-reload", false, "Reload connected browsers when the document root changes")
		rateLimit = flags.Float64("rate-limit", 0, "Requests per second per client; 0 disables limiting")
		burst     = flags.Int("burst", 0, "Burst size for -rate-limit; 0 keeps the configured burst (default 20)")
		verbose   = flags.Bool("verbose", false, "Enable debug logging")
	)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Dashboard static file server\n\nUsage: dashserve [flags]\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := dashserve.LevelInfo
	if *verbose {
		level = dashserve.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	dashserve.SetDefaultLogger(log)

	opts := []dashserve.ServerOptionFunc{dashserve.WithLogger(log)}
	if *port != 0 {
		opts = append(opts, dashserve.WithPort(*port))
	}
	if *addr != "" {
		opts = append(opts, dashserve.WithAddr(*addr))
	}
	if *root != "" {
		opts = append(opts, dashserve.WithDocumentRoot(*root))
	}
	if *live {
		opts = append(opts, dashserve.WithLiveReload(0))
	}
	if *rateLimit > 0 {
		opts = append(opts, dashserve.WithRateLimit(rate.Limit(*rateLimit), *burst))
	}

	srv, err := dashserve.NewServer(opts...)
	if err != nil {
		failColor.Fprintf(stdout, "Error starting server: %v\n", err)
		return 1
	}

	if err := srv.Listen(); err != nil {
		if errors.Is(err, dashserve.ErrPortInUse) {
			failColor.Fprintf(stdout, "Port %s is already in use. Please stop the existing server or use a different port.\n",
				portOf(srv.Options.Addr))
		} else {
			failColor.Fprintf(stdout, "Error starting server: %v\n", err)
		}
		srv.Close()
		return 1
	}

	okColor.Fprintf(stdout, "DevChronicles Dashboard server running on %s\n", srv.URL())
	okColor.Fprintf(stdout, "Dashboard URL: %s\n", srv.DashboardURL())
	fmt.Fprintln(stdout, "Press Ctrl+C to stop the server")

	if err := srv.Serve(ctx); err != nil {
		failColor.Fprintf(stdout, "Error while serving: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "\nServer stopped")
	return 0
}

// portOf returns the port part of addr, or addr itself if it has none.
func portOf(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return port
	}
	return addr
}
