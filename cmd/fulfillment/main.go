// Command fulfillment runs the order fulfillment orchestrator behind its
// HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goclaw/fulfillment/config"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/telemetry/tracing"
	"github.com/goclaw/fulfillment/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")
	watchConfig = flag.Bool("watch", true, "Reload the log level when the config file changes")

	// CLI overrides
	appName     = flag.String("app-name", "", "Override app name")
	serverPort  = flag.Int("port", 0, "Override server port")
	logLevel    = flag.String("log-level", "", "Override log level")
	storageType = flag.String("storage", "", "Override storage backend (memory, badger, redis)")
	debugMode   = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	overrides := buildOverrides()

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg, *debugMode)
	logger.SetGlobal(log)

	log.Info("starting fulfillment",
		"version", version.Version,
		"build_time", version.BuildTime,
		"git_commit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{configPath: *configPath, overrides: overrides, watch: *watchConfig}
	if err := run(ctx, cfg, log, opts); err != nil {
		log.Error("fulfillment stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("fulfillment stopped gracefully")
}

// defaultShutdownTimeout applies when the configuration leaves it unset.
const defaultShutdownTimeout = 15 * time.Second

type runOptions struct {
	configPath string
	overrides  map[string]interface{}
	watch      bool
	// ready, when set, receives the wired app once it is serving.
	ready func(*app)
}

// run serves until ctx is cancelled or the HTTP server fails, then drains.
func run(ctx context.Context, cfg *config.Config, log logger.Logger, opts runOptions) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.websocket.Run(runCtx, a.broadcaster)

	if a.metrics.Enabled() && cfg.Metrics.Port != 0 {
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(runCtx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	if opts.watch && opts.configPath != "" {
		startConfigWatcher(runCtx, opts.configPath, opts.overrides, cfg, log)
	}

	serverErr := make(chan error, 1)
	if cfg.Server.HTTP.Enabled {
		go func() { serverErr <- a.server.Start() }()
	}

	log.Info("fulfillment is running",
		"http_addr", a.server.Addr(),
		"storage", cfg.Storage.Type,
		"signal_mode", cfg.Signal.Mode,
		"events", cfg.Events.Enabled,
	)
	if opts.ready != nil {
		opts.ready(a)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			runErr = err
		}
	}

	shutdown(a, shutdownTracing, log)
	return runErr
}

// shutdown stops accepting traffic, lets in-flight orders finish and then
// releases the components.
func shutdown(a *app, shutdownTracing tracing.ShutdownFunc, log logger.Logger) {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.health.SetReady(false)

	if a.cfg.Server.HTTP.Enabled {
		if err := a.server.Shutdown(ctx); err != nil {
			log.Error("error shutting down HTTP server", "error", err)
		}
	}
	if err := a.close(); err != nil {
		log.Error("error releasing components", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error("error flushing traces", "error", err)
	}
}

func startConfigWatcher(ctx context.Context, path string, overrides map[string]interface{}, cfg *config.Config, log logger.Logger) {
	watcher, err := config.NewWatcher(path,
		config.WithOverrides(overrides),
		config.WithWatcherLogger(log),
	)
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return
	}

	var mu sync.Mutex
	current := config.ExtractHotReloadable(cfg)
	watcher.OnChange(func(next *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		hot := config.ExtractHotReloadable(next)
		if !hot.Changed(current) {
			return
		}
		hot.Apply(log)
		log.Info("applied configuration change", "log_level", hot.LogLevel)
		current = hot
	})

	go func() {
		defer watcher.Stop()
		if err := watcher.Watch(ctx); err != nil {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
}

func newLogger(cfg *config.Config, debug bool) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *storageType != "" {
		overrides["storage.type"] = *storageType
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Fulfillment - Order Fulfillment Orchestrator\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Fulfillment - saga based order fulfillment across payment providers\n\n")
	fmt.Printf("Usage: fulfillment [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  fulfillment                               # Run with default config\n")
	fmt.Printf("  fulfillment -config config.yaml           # Use specific config file\n")
	fmt.Printf("  fulfillment -port 9090 -log-level debug   # Override specific options\n")
	fmt.Printf("  fulfillment -storage badger               # Persist receipts and ledger\n")
	fmt.Printf("  fulfillment -version                      # Print version info\n")
}
