package cmd

import (
	"context"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <old-prefix> <new-prefix>",
		Short: "Move objects to a new prefix and repoint their index rows",
		Long: `Move every object under old-prefix to new-prefix and repoint the index.

Copies are verified before the index changes, and old objects are
deleted only after their rows point at the new path. A run that fails
or is interrupted can be repeated with the same arguments. If
old-prefix names a single object only that object moves.`,
		Example: `  assetsync migrate originals/customers/leenalgu-8768 originals/customers/leenamgu-8768`,
		Args:    cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			result, err := a.Migrator.Migrate(ctx, service.MigrationRequest{
				OldPrefix: args[0],
				NewPrefix: args[1],
				DryRun:    dryRun(cmd),
			})
			if result == nil {
				return err
			}
			if finishErr := finish(ctx, cmd, a, result.Report, result); err == nil {
				err = finishErr
			}
			return err
		}),
	}
}
