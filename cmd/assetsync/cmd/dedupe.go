package cmd

import (
	"context"
	"fmt"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/spf13/cobra"
)

func DedupeCmd() *cobra.Command {
	var (
		mode   string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse duplicate index rows onto the oldest one",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			m := service.IdentityMode(mode)
			if m != service.ByURL && m != service.ByPath {
				return fmt.Errorf("--by must be url or path, got %q", mode)
			}

			report, err := a.Dedupe.Resolve(ctx, service.DedupeOptions{
				Mode:         m,
				FolderPrefix: prefix,
				DryRun:       dryRun(cmd),
			})
			if err != nil {
				return err
			}
			return finish(ctx, cmd, a, report, report)
		}),
	}

	cmd.Flags().StringVar(&mode, "by", string(service.ByURL), "Identity of a duplicate group: url or path")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only consider rows under this folder prefix")

	return cmd
}
