package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/config"
	"github.com/masgolf/assetsync/internal/logger"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	outputFormat string
	dryRunFlag   bool

	cfg *config.Config
)

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "assetsync",
		Short:        "Organize and reconcile media assets between the index and object storage",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != "json" && outputFormat != "yaml" {
				return fmt.Errorf("--output must be json or yaml, got %q", outputFormat)
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false,
		"Report what dedupe, reconcile and migrate would change without changing it (defaults to true in production)")

	rootCmd.AddCommand(DBCmd())
	rootCmd.AddCommand(PathCmd())
	rootCmd.AddCommand(IngestCmd())
	rootCmd.AddCommand(TagCmd())
	rootCmd.AddCommand(AssetsCmd())
	rootCmd.AddCommand(DedupeCmd())
	rootCmd.AddCommand(ReconcileCmd())
	rootCmd.AddCommand(MigrateCmd())

	return rootCmd
}

// dryRun resolves --dry-run against the environment default.
func dryRun(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("dry-run") {
		return dryRunFlag
	}
	return cfg.DryRunDefault()
}

// withApp builds the app for one command and cancels the context on
// SIGINT or SIGTERM. Migrations finish their in-flight units first.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil {
				slog.Error("failed to close app", "error", closeErr)
			}
		}()

		return fn(ctx, cmd, a, args)
	}
}

func render(w io.Writer, v any) error {
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// finish prints the result, records metrics and turns failed units into
// a non-zero exit.
func finish(ctx context.Context, cmd *cobra.Command, a *app.App, report *model.BatchReport, result any) error {
	if err := render(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	a.Metrics.Observe(report)
	if a.Cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.Metrics.Push(pushCtx, a.Cfg.PushgatewayURL); err != nil {
			slog.Warn("metrics not pushed", "error", err)
		}
	}
	return report.Err()
}
