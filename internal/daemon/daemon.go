// Package daemon wires together the cache, asset store, config service,
// resolver, request graph, and optional worker farm into a running Asset
// Request Driver, then watches the project root for changes and rebuilds
// affected entry points (spec §4.4, §6). Adapted from the teacher's proxy
// daemon: the same PID-file/launchd lifecycle and zerolog setup, applied to
// a build loop instead of an HTTP reverse proxy.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/assetstore"
	"github.com/thornforge/buildcore/internal/cache"
	"github.com/thornforge/buildcore/internal/config"
	"github.com/thornforge/buildcore/internal/configservice"
	"github.com/thornforge/buildcore/internal/dashboard"
	"github.com/thornforge/buildcore/internal/driver"
	"github.com/thornforge/buildcore/internal/farm"
	"github.com/thornforge/buildcore/internal/invalidate"
	"github.com/thornforge/buildcore/internal/reporter"
	"github.com/thornforge/buildcore/internal/requestgraph"
	"github.com/thornforge/buildcore/internal/resolver"
	"github.com/thornforge/buildcore/internal/secrets"
	"github.com/thornforge/buildcore/internal/tracing"
	"github.com/thornforge/buildcore/internal/transformers"
	"github.com/thornforge/buildcore/internal/version"
)

// Run is the main daemon orchestrator. It wires the build stack, performs
// an initial build of entryPoints, and then — if watch mode is enabled —
// blocks rebuilding affected entry points as the invalidation journal
// reports filesystem changes, until a shutdown signal is received.
func Run(cfg *config.Config, entryPoints []string, foreground bool) error {
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "buildcore.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "buildcore").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("buildcore starting")

	if IsRunning(dataDir) {
		return fmt.Errorf("buildcore is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(
			context.Background(),
			cfg.Tracing.ServiceName,
			version.Version,
			cfg.Tracing.Exporter,
			cfg.Tracing.Endpoint,
			cfg.Tracing.SampleRate,
			cfg.Tracing.Insecure,
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to start tracing; continuing without it")
		} else {
			defer func() { _ = shutdownTracing(context.Background()) }()
		}
	}

	store, err := assetstore.Open(filepath.Join(dataDir, "assets.db"))
	if err != nil {
		return fmt.Errorf("opening asset store: %w", err)
	}
	defer store.Close()
	log.Info().Str("path", filepath.Join(dataDir, "assets.db")).Msg("asset store opened")

	sqliteCache, err := cache.OpenSQLiteStore(filepath.Join(cfg.Build.CacheDir, "cache.db"))
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}
	defer sqliteCache.Close()

	ch, err := cache.New(cfg.Build.MaxMemoryCacheEntries, sqliteCache, store)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	collector := reporter.NewCollector()

	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()
	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	configService := configservice.New(nil, cfg.Build.ManifestName)
	graph := requestgraph.New()
	modules := resolver.NewResolver(nil, cfg.Build.CandidateExtensions)
	pipelines := resolver.NewRegistry()
	pipelines.Register([]string{"js", "jsx", "mjs", "cjs", "ts", "tsx"}, transformers.NewJSTransformer())
	pipelines.RegisterFallback(transformers.NewPassthroughTransformer())

	drv := driver.New(graph, configService, ch, store, pipelines, modules, nil, driver.Options{
		Cache:       cfg.Build.CacheEnabled,
		CacheDir:    cfg.Build.CacheDir,
		LockFile:    cfg.Build.LockFile,
		ProjectRoot: cfg.Build.ProjectRoot,
	})

	if cfg.Farm.Enabled {
		drv.SetFarm(newFarm(cfg, drv.RunInProcess, collector))
		log.Info().Msg("worker farm dispatch enabled")
	}

	runEntryPoints := func(ctx context.Context) {
		for _, fp := range entryPoints {
			started := time.Now()
			collector.IncrementActive()
			assets, runErr := drv.RunAssetRequest(ctx, asset.AssetRequestInput{FilePath: fp})
			collector.DecrementActive()

			ev := reporter.BuildEvent{
				FilePath:    fp,
				PipelineExt: filepath.Ext(fp),
				Duration:    time.Since(started),
				CacheHit:    runErr == nil && time.Since(started) < time.Millisecond,
				Err:         runErr,
			}
			if runErr == nil {
				ev.AssetsEmitted = len(assets)
				for _, a := range assets {
					ev.DependenciesEmitted += len(a.Dependencies)
				}
			}
			collector.Record(ev)

			if runErr != nil {
				log.Error().Err(runErr).Str("file", fp).Msg("build failed")
				continue
			}
			log.Info().Str("file", fp).Int("assets", len(assets)).Dur("took", ev.Duration).Msg("build complete")
		}
	}

	runEntryPoints(context.Background())

	if !cfg.Watch.Enabled {
		log.Info().Msg("buildcore stopped")
		return nil
	}

	var journal *invalidate.Journal
	watchDone := make(chan struct{})
	if cfg.Watch.Enabled && cfg.Build.ProjectRoot != "" {
		journal, err = invalidate.NewJournal([]string{cfg.Build.ProjectRoot})
		if err != nil {
			log.Warn().Err(err).Msg("failed to start invalidation journal; watch mode disabled")
			close(watchDone)
		} else {
			defer journal.Close()
			go watchLoop(journal, graph, runEntryPoints, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, watchDone)
			log.Info().Str("root", cfg.Build.ProjectRoot).Msg("watch mode started")
		}
	} else {
		close(watchDone)
	}

	errCh := make(chan error, 1)
	var dashServer *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.DashboardPort)
		dashServer = dashboard.NewServer(collector, cfg, dashAddr)

		go func() {
			if err := dashServer.Start(); err != nil {
				errCh <- fmt.Errorf("dashboard server: %w", err)
			}
		}()

		log.Info().Str("addr", dashAddr).Msg("buildcore is ready")
		if foreground {
			fmt.Printf("\n  buildcore is running!\n")
			fmt.Printf("  Dashboard: http://%s\n\n", dashAddr)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down...")

	if dashServer != nil {
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("dashboard server shutdown error")
		}
	}

	if journal != nil {
		journal.Close()
		<-watchDone
	}

	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("buildcore stopped")
	return nil
}

// watchLoop drains the invalidation journal on a debounce interval,
// invalidates affected request-graph nodes, and reruns the entry points.
// It exits and closes done when the journal's watcher is closed.
func watchLoop(journal *invalidate.Journal, graph *requestgraph.Graph, rebuild func(context.Context), debounce time.Duration, done chan struct{}) {
	defer close(done)
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for range ticker.C {
		events := journal.Drain()
		if len(events) == 0 {
			continue
		}
		log.Info().Int("events", len(events)).Msg("filesystem change detected; rebuilding")
		graph.Invalidate(events)
		rebuild(context.Background())
	}
}

// newFarm wires internal/farm's resilience wrapper (rate limiter, circuit
// breaker, exponential backoff) around run. Today run is always the owning
// Driver's RunInProcess, so every dispatch still executes locally; once a
// remote worker transport exists, run is the only thing that needs to
// change, since the resilience policy layered around it is transport-
// agnostic.
func newFarm(cfg *config.Config, run farm.RunTransformFunc, collector *reporter.Collector) *farm.Farm {
	var breakers *farm.CircuitBreakerRegistry
	if cfg.Farm.CBEnabled {
		breakers = farm.NewCircuitBreakerRegistry(
			cfg.Farm.CBFailureThreshold,
			time.Duration(cfg.Farm.CBResetTimeoutSec)*time.Second,
			cfg.Farm.CBHalfOpenMax,
		)
		breakers.OnStateChange(func(chain string, state farm.CBState) {
			collector.SetCircuitState(chain, circuitStateValue(state))
			log.Info().Str("chain", chain).Str("state", circuitStateName(state)).Msg("farm: circuit breaker state changed")
		})
	}

	limits := make(map[string]struct {
		Rate  float64
		Burst int
	}, len(cfg.Farm.TransformerLimits))
	for name, lim := range cfg.Farm.TransformerLimits {
		limits[name] = struct {
			Rate  float64
			Burst int
		}{Rate: lim.Rate, Burst: lim.Burst}
	}
	limiter := farm.NewRateLimiter(cfg.Farm.DefaultRate, cfg.Farm.DefaultBurst, limits)

	retryCfg := farm.RetryConfig{
		MaxAttempts: cfg.Farm.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Farm.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Farm.RetryMaxDelayMs) * time.Millisecond,
	}

	secretStore := secrets.New()
	_, _ = secretStore.Resolve(cfg.Secrets.FarmEndpointKeyRef)

	return farm.New(run, breakers, limiter, retryCfg)
}

// circuitStateValue maps a circuit breaker state to the numeric gauge value
// internal/reporter.Collector.SetCircuitState records: CBClosed=0,
// CBOpen=1, CBHalfOpen=2.
func circuitStateValue(state farm.CBState) float64 {
	switch state {
	case farm.CBOpen:
		return 1
	case farm.CBHalfOpen:
		return 2
	default:
		return 0
	}
}

func circuitStateName(state farm.CBState) string {
	switch state {
	case farm.CBOpen:
		return "open"
	case farm.CBHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("buildcore does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("buildcore is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to buildcore (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("buildcore is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("buildcore is running (PID %d)\n", pid)

	dashURL := fmt.Sprintf("http://%s:%d/api/stats", cfg.Server.BindAddress, cfg.Server.DashboardPort)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(dashURL)
	if err != nil {
		fmt.Println("  (dashboard unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var stats reporter.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}

	fmt.Printf("\n  Uptime:               %s\n", stats.Uptime)
	fmt.Printf("  Total Requests:       %d\n", stats.TotalRequests)
	fmt.Printf("  Assets Emitted:       %d\n", stats.AssetsEmitted)
	fmt.Printf("  Dependencies Emitted: %d\n", stats.DependenciesEmitted)
	fmt.Printf("  Cache Hit Rate:       %.1f%% (%d hits / %d misses)\n", stats.CacheHitRate, stats.CacheHits, stats.CacheMisses)
	fmt.Printf("  Active Builds:        %d\n", stats.ActiveBuilds)

	return nil
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
