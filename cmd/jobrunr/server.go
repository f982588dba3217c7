package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akuafrica/jobrunr/internal/config"
	"github.com/akuafrica/jobrunr/internal/connectors/localexec"
	"github.com/akuafrica/jobrunr/internal/controlplane"
	"github.com/akuafrica/jobrunr/internal/dashboard"
	"github.com/akuafrica/jobrunr/internal/logging"
	"github.com/akuafrica/jobrunr/internal/scheduler"
	"github.com/akuafrica/jobrunr/internal/store"
	"github.com/akuafrica/jobrunr/internal/update"
	"github.com/spf13/cobra"
)

// checkForNewVersionTask is the name of the recurring version check.
const checkForNewVersionTask = "check-for-new-version"

var (
	listenAddr     string
	dbPath         string
	logLevel       string
	noVersionCheck bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the jobrunr background job server",
	Long:  `Starts the background job server: the HTTP API, the job workers and the recurring server tasks.`,
	RunE:  runServer,
}

func init() {
	addServerFlags(serverCmd)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	cmd.Flags().BoolVar(&noVersionCheck, "no-version-check", false, "Disable the new-version check")
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if flags.Changed("db") {
		cfg.DB = dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if noVersionCheck {
		cfg.VersionCheck.Enabled = false
	}
}

// loadServerConfig reads the config file, applies flag overrides and
// validates the result.
func loadServerConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log, os.Stderr)
	log.Info().Str("version", update.CurrentVersion()).Msg("Starting jobrunr server")

	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
		return err
	}
	s, err := store.New(cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		log.Info().Msg("Closing database connection")
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}()

	ctx := context.Background()
	if n, err := s.RequeueProcessingJobs(ctx); err != nil {
		return err
	} else if n > 0 {
		log.Warn().Int64("jobs", n).Msg("Requeued jobs left processing by a previous run")
	}
	clusterID, err := s.EnsureClusterID(ctx)
	if err != nil {
		return err
	}
	log.Debug().Str("cluster_id", clusterID).Msg("Cluster identity loaded")

	workDir := cfg.Connectors.LocalExec.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	connector := localexec.New(workDir, cfg.Connectors.LocalExec.Allow)
	notifications := dashboard.NewManager(s)

	sched := scheduler.New(s, connector, &cfg.Scheduler, logging.Component(log, "scheduler"))
	if cfg.VersionCheck.Enabled {
		fetcher := update.NewHTTPFetcher(update.WithBaseURL(cfg.VersionCheck.BaseURL))
		task := update.NewCheckForNewVersionTask(notifications, s, cfg.VersionCheck.AllowAnonymousDataUsage,
			update.WithFetcher(fetcher),
			update.WithLogger(logging.Component(log, "version-check")),
		)
		if err := sched.AddRecurring(checkForNewVersionTask, cfg.VersionCheck.Schedule, true, task.Run); err != nil {
			return err
		}
	}

	service := controlplane.NewService(s, notifications, connector)
	server := controlplane.NewServer(service, s, cfg.Listen, logging.Component(log, "api"))
	server.SetScheduler(sched)

	sched.Start()
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	return nil
}
