// Specd is the spec-driven development daemon.
//
// It validates requirements, design, and tasks documents, tracks
// requirement traceability across them, and gates feature workflows
// through phase transitions. Tools are served over the Model Context
// Protocol on stdio, with an optional HTTP API for other clients.
//
// Configuration is loaded from ~/.config/specd/config.yaml and
// SPECD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (MCP on stdio)
//	specd
//
//	# Start with the HTTP API enabled
//	SPECD_HTTP_ENABLED=true specd
//
//	# Show version information
//	specd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
	"github.com/fyrsmithlabs/specd/internal/content"
	"github.com/fyrsmithlabs/specd/internal/events"
	httpapi "github.com/fyrsmithlabs/specd/internal/http"
	"github.com/fyrsmithlabs/specd/internal/logging"
	"github.com/fyrsmithlabs/specd/internal/mcp"
	"github.com/fyrsmithlabs/specd/internal/specstore"
	"github.com/fyrsmithlabs/specd/internal/telemetry"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/watch"
	"github.com/fyrsmithlabs/specd/internal/workflow"
	"github.com/fyrsmithlabs/specd/internal/workflow/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  specd           Start the specd daemon\n")
			fmt.Fprintf(os.Stderr, "  specd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("specd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the specd daemon and blocks until the context is
// cancelled or every transport has stopped.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger and telemetry
//  3. Open the workflow store and optional NATS / specs directory
//  4. Build the validation and workflow services
//  5. Serve MCP on stdio, plus the HTTP API when enabled
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("ensuring config directory: %w", err)
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting specd",
		zap.String("version", version),
		zap.Bool("http_enabled", cfg.HTTP.Enabled),
		zap.String("specs_dir", cfg.Specs.Dir),
		zap.String("store_backend", cfg.Store.Backend))

	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	svcs, err := initServices(deps, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    cfg.Server.Name,
		Version: version,
		Logger:  logger,
	}, svcs.validator, svcs.workflows, svcs.library, deps.specs)
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	errCh := make(chan error, 2)
	running := 1

	var httpSrv *httpapi.Server
	if cfg.HTTP.Enabled {
		httpSrv, err = httpapi.NewServer(svcs.validator, svcs.workflows, logger, &httpapi.Config{
			Host:      "localhost",
			Port:      cfg.HTTP.Port,
			RateLimit: cfg.HTTP.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("creating http server: %w", err)
		}
		httpSrv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

		running++
		go func() {
			errCh <- httpSrv.Start()
		}()
	}

	if deps.watcher != nil {
		if err := deps.watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting spec watcher: %w", err)
		}
		recorder, err := watch.NewRecorder(&watch.RecorderConfig{
			Specs:     deps.specs,
			Validator: svcs.validator,
			Workflows: svcs.workflows,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("creating change recorder: %w", err)
		}
		go recorder.Run(ctx, deps.watcher.Events())
		logger.Info("watching specs directory", zap.String("dir", cfg.Specs.Dir))
	}

	go func() {
		errCh <- mcpServer.Run(ctx)
	}()

	// A closed stdin only means no MCP client is attached; the daemon
	// keeps serving HTTP until a signal arrives or nothing is left.
	var runErr error
loop:
	for running > 0 {
		select {
		case err := <-errCh:
			running--
			if !expectedClose(err) {
				runErr = err
				break loop
			}
		case <-ctx.Done():
			break loop
		}
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}

	logger.Info("specd stopped")
	return runErr
}

// expectedClose reports whether an error is a normal transport
// shutdown rather than a failure.
func expectedClose(err error) bool {
	return err == nil ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	store    workflow.Store
	sqlite   *store.SQLite
	natsConn *nats.Conn
	events   events.Publisher
	specs    *specstore.Store
	watcher  *watch.Watcher
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.sqlite != nil {
		_ = d.sqlite.Close()
	}
}

// initDependencies opens the workflow store and connects the optional
// NATS and specs directory integrations.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	switch cfg.Store.Backend {
	case "sqlite":
		sq, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store at %s: %w", cfg.Store.Path, err)
		}
		deps.sqlite = sq
		deps.store = sq
		logger.Info("workflow store ready",
			zap.String("backend", "sqlite"),
			zap.String("path", cfg.Store.Path))
	default:
		deps.store = store.NewMemory()
		logger.Info("workflow store ready", zap.String("backend", "memory"))
	}

	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Events.NATSURL, err)
		}
		deps.natsConn = nc
		deps.events = events.NewNATSPublisher(nc, logger)
		logger.Info("connected to NATS", zap.String("url", cfg.Events.NATSURL))
	}

	if cfg.Specs.Dir != "" {
		specs, err := specstore.New(cfg.Specs.Dir, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("opening specs directory %s: %w", cfg.Specs.Dir, err)
		}
		deps.specs = specs

		if cfg.Specs.Watch {
			watcher, err := watch.NewWatcher(specs, logger)
			if err != nil {
				deps.Close()
				return nil, fmt.Errorf("creating spec watcher: %w", err)
			}
			deps.watcher = watcher
		}
	}

	return deps, nil
}

// services holds all business services.
type services struct {
	validator validation.Service
	workflows workflow.Service
	library   *content.Library
}

// initServices builds the validation and workflow services on top of
// the initialized dependencies.
func initServices(deps *dependencies, logger *zap.Logger) (*services, error) {
	validator := validation.NewService(&validation.Config{Logger: logger})

	workflows, err := workflow.NewService(&workflow.Config{
		Store:  deps.store,
		Events: deps.events,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workflow service: %w", err)
	}

	return &services{
		validator: validator,
		workflows: workflows,
		library:   content.NewLibrary(),
	}, nil
}
