package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/server"
)

// ServeCmd starts the zapd HTTP server and surge worker pool
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the zapd server and surge worker pool",
	Long: `Start the HTTP API, the WebSocket zap stream, and the surge worker pool.

The server recovers orphaned tasks on startup and drains in-flight zaps on
shutdown. Press Ctrl+C once for a graceful stop, twice to force an exit.`,
	RunE: runServe,
}

var serveDBPath string

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Default to Info verbosity for serve; the CLI-wide warn-only default
	// would hide lifecycle logs
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// Re-shape the logger from config: JSON encoding for log shippers,
	// configured level unless -v was given explicitly
	if cfg.Log.JSON {
		if err := logger.Initialize(true); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}
	if cmd.Flags().Changed("verbose") {
		logger.SetLevel(logger.VerbosityToLevel(verbosity))
	} else if level, perr := zapcore.ParseLevel(cfg.Log.Level); perr == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(zapcore.InfoLevel)
	}

	// Open and migrate database
	database, err := openDatabase(cfg, serveDBPath, cfg.Database.AutoMigrate)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	srv, err := server.New(database, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartupBanner(verbosity, cfg, dbPath)

	// Hot-reload runtime settings when the active config file changes
	if active := config.ActiveFile(); active != "" {
		watcher, werr := config.NewWatcher(active)
		if werr != nil {
			logger.Warnw("Config watcher unavailable", logger.FieldError, werr)
		} else {
			watcher.OnReload(srv.ApplyConfigReload)
			watcher.Start()
			config.SetGlobalWatcher(watcher)
			defer watcher.Stop()
		}
	}

	// Sweep expired ACL decisions for the life of the process
	sweepStop := make(chan struct{})
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	srv.Evaluator().StartCacheSweep(sweepWG.Done, sweepStop)
	defer func() {
		close(sweepStop)
		sweepWG.Wait()
	}()

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(cfg.GetServerPort())
	}()

	// Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Server failed to start or stopped unexpectedly
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}
