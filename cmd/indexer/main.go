package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polwex/hpn-indexer/internal/admin"
	"github.com/polwex/hpn-indexer/internal/config"
)

const defaultAdminURL = "http://127.0.0.1:8081"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hpn-indexer",
		Short:         "Index hypermap provider registrations into a queryable directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the indexer (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context())
		},
	})

	var adminURL string
	var timeout time.Duration
	root.PersistentFlags().StringVar(&adminURL, "admin-url", envOr("INDEXER_ADMIN_URL", defaultAdminURL), "admin API base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "admin request timeout")

	client := func() *admin.Client { return admin.NewClient(adminURL, timeout) }
	root.AddCommand(
		adminCmd("state", "Print the in-memory indexer state", func(ctx context.Context) ([]byte, error) {
			return client().State(ctx)
		}),
		adminCmd("schema", "Check and repair the directory tables", func(ctx context.Context) ([]byte, error) {
			return client().Schema(ctx)
		}),
		adminCmd("reset", "Wipe all state and re-index from the first block", func(ctx context.Context) ([]byte, error) {
			return client().Reset(ctx)
		}),
	)
	return root
}

func adminCmd(use, short string, call func(context.Context) ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		},
	}
}

func runCommand(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := newLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("indexer exited with error", "error", err)
		return err
	}
	logger.Info("indexer shut down gracefully")
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
