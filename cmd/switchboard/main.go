package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkeep-io/switchboard/internal/adminapi"
	"github.com/arkeep-io/switchboard/internal/cryptosys"
	"github.com/arkeep-io/switchboard/internal/messagelog"
	"github.com/arkeep-io/switchboard/internal/metrics"
	"github.com/arkeep-io/switchboard/internal/switchboard"
	"github.com/arkeep-io/switchboard/internal/wsadapter"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	listenAddr     string
	adminAddr      string
	dhtAlgorithm   string
	redundantCount uint64
	resyncInterval time.Duration
	drainCap       int
	limboQueueCap  int
	messageLogCap  int
	logLevel       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "switchboard",
		Short: "switchboard — rendezvous and gossip coordinator",
		Long: `switchboard is a centralized coordination point for a content-addressed
peer-to-peer network: it tracks which agent owns which connection, relays
direct messages, and drives content replication between agents according
to a pluggable DHT policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.listenAddr, "listen-addr", envOrDefault("SWITCHBOARD_LISTEN_ADDR", ":9000"), "WebSocket listen address")
	root.PersistentFlags().StringVar(&cfg.adminAddr, "admin-addr", envOrDefault("SWITCHBOARD_ADMIN_ADDR", ":9001"), "Admin HTTP listen address (health, metrics, debug)")
	root.PersistentFlags().StringVar(&cfg.dhtAlgorithm, "dht-algorithm", envOrDefault("SWITCHBOARD_DHT_ALGORITHM", "full-sync"), "Replication policy (full-sync or naive-sharding)")
	root.PersistentFlags().Uint64Var(&cfg.redundantCount, "redundant-count", envOrDefaultUint64("SWITCHBOARD_REDUNDANT_COUNT", 3), "Replication factor r for naive-sharding; ignored under full-sync")
	root.PersistentFlags().DurationVar(&cfg.resyncInterval, "resync-interval", envOrDefaultDuration("SWITCHBOARD_RESYNC_INTERVAL", 10*time.Second), "Retry tick period")
	root.PersistentFlags().IntVar(&cfg.drainCap, "drain-cap", envOrDefaultInt("SWITCHBOARD_DRAIN_CAP", 100), "Maximum inbound events drained per event-loop iteration")
	root.PersistentFlags().IntVar(&cfg.limboQueueCap, "limbo-queue-cap", envOrDefaultInt("SWITCHBOARD_LIMBO_QUEUE_CAP", 64), "Maximum messages a connection may queue before joining a space")
	root.PersistentFlags().IntVar(&cfg.messageLogCap, "message-log-capacity", envOrDefaultInt("SWITCHBOARD_MESSAGE_LOG_CAPACITY", 1000), "In-memory message log retention")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("SWITCHBOARD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("switchboard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	dht, err := parseDHTConfig(cfg.dhtAlgorithm, cfg.redundantCount)
	if err != nil {
		return err
	}

	logger.Info("starting switchboard",
		zap.String("version", version),
		zap.String("listen_addr", cfg.listenAddr),
		zap.String("admin_addr", cfg.adminAddr),
		zap.String("dht_algorithm", dht.Algorithm.String()),
		zap.Uint64("redundant_count", dht.RedundantCount),
		zap.Duration("resync_interval", cfg.resyncInterval),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	msgLog := messagelog.New(logger, cfg.messageLogCap)
	crypto := cryptosys.New()

	adapter := wsadapter.New(logger)

	sb, err := switchboard.New(switchboard.Config{
		Crypto:             crypto,
		Adapter:            adapter,
		Logger:             logger,
		Metrics:            m,
		MsgLog:             msgLog,
		DHT:                dht,
		LimboQueueCap:      cfg.limboQueueCap,
		DrainCap:           cfg.drainCap,
		ResyncInterval:     cfg.resyncInterval,
		MessageLogCapacity: cfg.messageLogCap,
	})
	if err != nil {
		return fmt.Errorf("failed to create switchboard: %w", err)
	}

	go func() {
		if err := adapter.Run(ctx); err != nil {
			logger.Error("websocket adapter error", zap.Error(err))
			cancel()
		}
	}()

	go func() {
		if err := sb.Run(ctx); err != nil {
			logger.Error("switchboard core error", zap.Error(err))
			cancel()
		}
	}()

	wsSrv := &http.Server{
		Addr:         cfg.listenAddr,
		Handler:      adapter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("websocket server listening", zap.String("addr", cfg.listenAddr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server error", zap.Error(err))
			cancel()
		}
	}()

	adminRouter := adminapi.NewRouter(adminapi.RouterConfig{
		Switchboard: sb,
		MsgLog:      msgLog,
		Registry:    registry,
		Logger:      logger,
	})
	adminSrv := &http.Server{
		Addr:         cfg.adminAddr,
		Handler:      adminRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("admin server listening", zap.String("addr", cfg.adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down switchboard")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server graceful shutdown error", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server graceful shutdown error", zap.Error(err))
	}

	logger.Info("switchboard stopped")
	return nil
}

func parseDHTConfig(algorithm string, redundantCount uint64) (switchboard.DHTConfig, error) {
	switch algorithm {
	case "full-sync":
		return switchboard.DHTConfig{Algorithm: switchboard.FullSync, RedundantCount: redundantCount}, nil
	case "naive-sharding":
		return switchboard.DHTConfig{Algorithm: switchboard.NaiveSharding, RedundantCount: redundantCount}, nil
	default:
		return switchboard.DHTConfig{}, fmt.Errorf("unknown --dht-algorithm %q (want full-sync or naive-sharding)", algorithm)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envOrDefaultUint64(key string, defaultVal uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
