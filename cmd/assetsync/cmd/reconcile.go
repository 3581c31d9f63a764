package cmd

import (
	"context"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/spf13/cobra"
)

func ReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Diff the index against object storage",
	}

	var (
		ghostPrefix string
		policy      string
	)
	ghostsCmd := &cobra.Command{
		Use:   "ghosts",
		Short: "Find index rows whose object is missing",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			p, err := service.ParseGhostPolicy(policy)
			if err != nil {
				return err
			}
			result, err := a.Reconciler.Ghosts(ctx, service.GhostOptions{
				Prefix: ghostPrefix,
				Policy: p,
				DryRun: dryRun(cmd),
			})
			if err != nil {
				return err
			}
			return finish(ctx, cmd, a, result.Report, result)
		}),
	}
	ghostsCmd.Flags().StringVar(&ghostPrefix, "prefix", "", "Only check rows under this folder prefix")
	ghostsCmd.Flags().StringVar(&policy, "policy", string(service.GhostReport), "What to do with ghosts: report, delete or relink")

	var orphanPrefix string
	orphansCmd := &cobra.Command{
		Use:   "orphans",
		Short: "Find objects no index row points at",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			result, err := a.Reconciler.Orphans(ctx, service.OrphanOptions{Prefix: orphanPrefix})
			if err != nil {
				return err
			}
			return finish(ctx, cmd, a, result.Report, result)
		}),
	}
	orphansCmd.Flags().StringVar(&orphanPrefix, "prefix", "originals", "Storage prefix to list")

	cmd.AddCommand(ghostsCmd, orphansCmd)
	return cmd
}
