package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couzic/ts-graph-mcp/internal/format"
	"github.com/couzic/ts-graph-mcp/internal/httpapi"
	"github.com/couzic/ts-graph-mcp/internal/lifecycle"
	"github.com/couzic/ts-graph-mcp/internal/preflight"
	"github.com/couzic/ts-graph-mcp/internal/query"
	"github.com/couzic/ts-graph-mcp/internal/resolve"
	"github.com/couzic/ts-graph-mcp/internal/watcher"
	"github.com/couzic/ts-graph-mcp/internal/xerrors"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query server and file watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind (overrides config)")
	cmd.Flags().IntVar(&port, "port", -1, "Port to bind, 0 for ephemeral (overrides config)")
	return cmd
}

// runServe implements spec §5/§6's server lifecycle: acquire the spawn
// lock, build the query stack, run the watcher pipeline until first
// batch settles, serve HTTP until signalled, then tear down in reverse
// order. Exit codes follow spec §6: 0 normal shutdown, 1 fatal startup
// error, 2 config invalid.
func runServe(ctx context.Context, hostFlag string, portFlag int) error {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return withExitCode(xerrors.ConfigError("failed to resolve project root", err), 2)
	}
	checker := preflight.New(preflight.WithOutput(os.Stderr))
	results := checker.RunAll(ctx, absRoot)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return withExitCode(fmt.Errorf("preflight checks failed for %s", absRoot), 1)
	}

	a, err := newApp(projectRoot)
	if err != nil {
		return withExitCode(xerrors.ConfigError("failed to initialize project", err), 2)
	}
	defer a.Close()

	host := a.cfg.Host
	if hostFlag != "" {
		host = hostFlag
	}
	port := a.cfg.Port
	if portFlag >= 0 {
		port = portFlag
	}

	spawnLock := lifecycle.NewSpawnLock(a.cacheDir)
	acquired, err := spawnLock.TryLock()
	if err != nil {
		return withExitCode(xerrors.IOError("failed to acquire spawn lock", err), 1)
	}
	if !acquired {
		return withExitCode(fmt.Errorf("another server is already running for %s (see %s)", a.root, spawnLock.Path()), 1)
	}
	defer spawnLock.Unlock()

	serverFile := lifecycle.NewServerFile(a.cacheDir)
	defer serverFile.Remove()

	opts := watcher.DefaultOptions()
	if a.cfg.Watch.Debounce > 0 {
		opts.DebounceWindow = time.Duration(a.cfg.Watch.Debounce) * time.Millisecond
	}
	opts.IgnorePatterns = a.cfg.Watch.Exclude
	hw, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return withExitCode(xerrors.IOError("failed to start file watcher", err), 1)
	}

	pipeline, err := watcher.NewPipeline(watcher.PipelineDependencies{
		Registry:     a.registry,
		Indexer:      a.indexer,
		Store:        a.store,
		SearchIndex:  a.search,
		ManifestPath: a.manifestPath,
	}, hw)
	if err != nil {
		return withExitCode(xerrors.IOError("failed to start indexing pipeline", err), 1)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watchErrCh := make(chan error, 1)
	go func() { watchErrCh <- pipeline.Run(watchCtx, a.root) }()

	resolver := resolve.New(a.store)
	orchestrator := query.New(a.store, resolver, a.search, a.embedder)
	formatter := format.New(a.root, format.DefaultContextLines)

	indexedFiles := 0
	ready := false
	go func() {
		<-pipeline.Ready()
		ready = true
		indexedFiles = countIndexedFiles(a)
		if err := serverFile.SetReady(true); err != nil {
			slog.Warn("serve_mark_ready_failed", slog.String("error", err.Error()))
		}
	}()

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return withExitCode(xerrors.NetworkError("failed to bind address", err), 1)
	}
	actualAddr := listener.Addr().(*net.TCPAddr)

	server := httpapi.New(fmt.Sprintf("%s:%d", host, actualAddr.Port), httpapi.Deps{
		Orchestrator: orchestrator,
		Formatter:    formatter,
		Ready:        func() bool { return ready },
		IndexedFiles: func() int { return indexedFiles },
		Metrics:      a.metrics,
	})

	if err := serverFile.Write(lifecycle.ServerStatus{
		PID:         os.Getpid(),
		Port:        actualAddr.Port,
		Host:        host,
		StartedAt:   time.Now(),
		ProjectRoot: a.root,
		Ready:       false,
	}); err != nil {
		return withExitCode(xerrors.IOError("failed to write server.json", err), 1)
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	slog.Info("server_started", slog.String("host", host), slog.Int("port", actualAddr.Port), slog.String("project_root", a.root))

	serveErr := server.Serve(sigCtx, listener)

	cancelWatch()
	pipeline.Close()
	<-watchErrCh

	if serveErr != nil && serveErr != context.Canceled {
		return withExitCode(xerrors.NetworkError("server exited unexpectedly", serveErr), 1)
	}
	return nil
}

func countIndexedFiles(a *app) int {
	m, err := loadManifestCount(a.manifestPath)
	if err != nil {
		return 0
	}
	return m
}
