package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/alias"
	"github.com/getmasq/masq/internal/config"
	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/logging"
	"github.com/getmasq/masq/internal/proxy"
	"github.com/getmasq/masq/internal/rewrite"
	"github.com/getmasq/masq/internal/routes"
	"github.com/getmasq/masq/internal/server"
)

const (
	proxyStartupTimeout = 5 * time.Second
	webStartupGrace     = 500 * time.Millisecond
	shutdownTimeout     = 30 * time.Second
	initialSyncTimeout  = 5 * time.Second
)

var serveFlags struct {
	configPath string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxies and the management API",
	Long: `Start the forward proxy, the reverse proxy, and the management API.

Configuration is read from --config (default ~/.masq/config.yml) and
may be overridden with MASQ_* environment variables. The management
API accepts unauthenticated requests until the first API key is
generated with 'masq apikey generate'.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.configPath, "config", "", "path to config file (default ~/.masq/config.yml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveFlags.configPath)
	if err != nil {
		return err
	}

	// Logging settings from the config file apply unless the flags (or
	// their MASQ_LOG_* env defaults) already chose something. Silent
	// always wins.
	flags := cmd.Root().PersistentFlags()
	if cfg.Silent || (!flags.Changed("log-level") && !flags.Changed("log-format")) {
		fromCfg, err := logging.New(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Silent: cfg.Silent,
		})
		if err != nil {
			return errors.Wrap(err, "initializing logger")
		}
		logger = fromCfg
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "create data directory %s", dir)
		}
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer database.Close()

	keyCount, err := db.CountAPIKeys(context.Background(), database)
	if err != nil {
		return errors.Wrap(err, "count API keys")
	}
	if keyCount == 0 {
		logger.Warn("management api is open; run 'masq apikey generate' to require authentication")
	}

	bus := events.NewBus()
	persistent := alias.NewStore(database)
	volatile := alias.NewVolatileStore(database, cfg.VolatileTTL())

	sweeper := alias.NewSweeper(database, cfg.CleanupEvery(), bus, logger)
	sweeper.Start()

	if cfg.RoutesPath != "" {
		rs, err := routes.LoadFile(cfg.RoutesPath)
		if err != nil {
			return err
		}
		syncCtx, cancel := context.WithTimeout(context.Background(), initialSyncTimeout)
		err = routes.Sync(syncCtx, database, rs)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("routes file loaded", zap.String("path", cfg.RoutesPath), zap.Int("routes", len(rs)))
	}

	var watcher *routes.Watcher
	if cfg.RoutesPath != "" && cfg.WatchRoutes {
		watcher, err = routes.NewWatcher(cfg.RoutesPath, database, bus, logger)
		if err != nil {
			return errors.Wrap(err, "watch routes file")
		}
		watcher.Start()
	}

	proxies := proxy.NewManager(proxy.ManagerConfig{
		ForwardAddr:   fmt.Sprintf(":%d", cfg.ForwardProxyPort),
		ReverseAddr:   fmt.Sprintf(":%d", cfg.ReverseProxyPort),
		Upstream:      cfg.ReverseUpstream,
		LookupTimeout: cfg.RouteLookupTimeout,
		Source:        &proxy.DBRoutes{DB: database},
		Engine:        &proxy.Passthrough{Logger: logger},
		Bus:           bus,
		Logger:        logger,
	})
	if err := proxies.Start(proxyStartupTimeout); err != nil {
		return err
	}
	logger.Info("proxies started",
		logging.Port(cfg.ForwardProxyPort),
		zap.Int("reverse_port", cfg.ReverseProxyPort))

	apiSrv := &server.APIServer{
		DB:         database,
		Logger:     logger.Named("api"),
		Bus:        bus,
		Persistent: persistent,
		Volatile:   volatile,
		Pipeline:   rewrite.NewPipeline(persistent, volatile, logger),
		Hub:        server.NewHub(bus, logger),
	}

	web := server.NewManagedServer("api", server.DefaultServerConfig(
		fmt.Sprintf(":%d", cfg.WebServerPort), apiSrv.Handler(), logger.Named("api"),
	))
	web.Start()
	if err := web.WaitForStartup(webStartupGrace); err != nil {
		return err
	}
	logger.Info("management api started", logging.Port(cfg.WebServerPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	web.Shutdown(ctx)
	proxies.Shutdown(ctx)
	if watcher != nil {
		_ = watcher.Stop()
	}
	sweeper.Stop()

	return nil
}
