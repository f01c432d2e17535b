// Boundaryd is a bounded-access gateway between an AI agent and a source
// repository. It serves its tool surface over MCP on stdio; health and
// metrics live on a separate operational HTTP listener.
//
// Usage:
//
//	# Start with defaults
//	boundaryd
//
//	# Use an explicit config file
//	boundaryd --config /etc/boundaryd/config.yaml
//
// Configuration comes from a YAML file plus environment overrides, for
// example LIMITS_MAX_SEARCH_RESULTS=5. See internal/config for the schema.
package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/boundaryd/internal/config"
	"github.com/fyrsmithlabs/boundaryd/internal/embeddings"
	opshttp "github.com/fyrsmithlabs/boundaryd/internal/http"
	"github.com/fyrsmithlabs/boundaryd/internal/logging"
	"github.com/fyrsmithlabs/boundaryd/internal/mcp"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
	"github.com/fyrsmithlabs/boundaryd/internal/sandbox"
	"github.com/fyrsmithlabs/boundaryd/internal/search"
	"github.com/fyrsmithlabs/boundaryd/internal/secrets"
	"github.com/fyrsmithlabs/boundaryd/internal/session"
	"github.com/fyrsmithlabs/boundaryd/internal/telemetry"
	"github.com/fyrsmithlabs/boundaryd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "boundaryd",
	Short:        "Bounded repository access gateway for AI agents",
	Long: `boundaryd mediates an AI agent's access to source repositories over the
Model Context Protocol. Every read is admitted against a per-session
budget, bounded in size, scrubbed of secrets, and recorded in a
provenance ledger.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("boundaryd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.config/boundaryd/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "boundaryd: %v\n", err)
		os.Exit(1)
	}
}

// run wires the full daemon and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting boundaryd",
		zap.String("version", version),
		zap.String("sandbox_profile", cfg.Sandbox.Profile),
		zap.Int("max_tool_calls", cfg.Session.MaxToolCalls),
		zap.Duration("session_idle_timeout", cfg.Session.IdleTimeout))

	tel, err := telemetry.Setup(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	scrubber, err := secrets.New(cfg.Secrets)
	if err != nil {
		return fmt.Errorf("initialize scrubber: %w", err)
	}

	index := buildIndex(cfg, logger)

	manager := session.NewManager(session.Config{
		IdleTimeout:    cfg.Session.IdleTimeout,
		MaxToolCalls:   cfg.Session.MaxToolCalls,
		MaxOutputBytes: cfg.Session.MaxOutputBytes,
		CallsPerSecond: cfg.Session.CallsPerSecond,
		HandleLimits:   cfg.HandleLimits(),
	}, logger)

	if cfg.Audit.Enabled {
		nc, err := nats.Connect(cfg.Audit.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect to NATS at %s: %w", cfg.Audit.URL, err)
		}
		defer nc.Close()

		publisher, err := provenance.NewNATSPublisher(nc, cfg.Audit.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("create audit publisher: %w", err)
		}
		manager.SetPublisher(publisher)
		logger.Info("audit publishing enabled",
			zap.String("url", cfg.Audit.URL),
			zap.String("subject_prefix", cfg.Audit.SubjectPrefix))
	}

	runner := sandbox.NewRunner(sandbox.Config{
		MaxCodeBytes:   cfg.Sandbox.MaxCodeBytes,
		Timeout:        cfg.Sandbox.Timeout,
		MaxMemoryBytes: int64(cfg.Sandbox.MaxMemoryBytes),
		MaxStdoutBytes: cfg.Sandbox.MaxStdoutBytes,
	}, logger)

	profile := sandbox.StrictProfile()
	if cfg.Sandbox.Profile == "trusted" {
		profile = sandbox.TrustedProfile()
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Name:             "boundaryd",
		Version:          version,
		Logger:           logger,
		MaxListItems:     cfg.Limits.MaxListItems,
		MaxSearchResults: cfg.Limits.MaxSearchResults,
		WatchRoots:       true,
	}, manager, index, runner, profile, scrubber)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	manager.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	var ops *opshttp.Server
	if cfg.Server.OpsAddr != "" {
		ops, err = opshttp.NewServer(manager, tel.Handler(), logger,
			&opshttp.Config{Addr: cfg.Server.OpsAddr})
		if err != nil {
			return fmt.Errorf("create operational server: %w", err)
		}
		g.Go(func() error {
			if err := ops.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if ops != nil {
			_ = ops.Shutdown(shutdownCtx)
		}
		_ = srv.Close()
		manager.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// buildIndex assembles the semantic search stack. Failure here degrades
// the daemon to regex-only search instead of refusing to start.
func buildIndex(cfg *config.Config, logger *zap.Logger) *search.Index {
	embedder, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		logger.Warn("embedding provider unavailable, semantic search disabled",
			zap.String("provider", cfg.Embeddings.Provider), zap.Error(err))
		return nil
	}

	store, err := vectorstore.New(cfg.VectorStore, embedder, logger)
	if err != nil {
		logger.Warn("vector store unavailable, semantic search disabled",
			zap.String("provider", cfg.VectorStore.Provider), zap.Error(err))
		_ = embedder.Close()
		return nil
	}

	logger.Info("semantic search enabled",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", embedder.Dimension()))
	return search.NewIndex(store, logger)
}
