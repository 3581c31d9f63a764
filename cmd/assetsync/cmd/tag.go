package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/spf13/cobra"
)

func TagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage association and classification tags on index rows",
	}

	cmd.AddCommand(linkCmd("add", "Associate rows with an entity, e.g. customer-42", false))
	cmd.AddCommand(linkCmd("remove", "Remove an association from rows", true))
	cmd.AddCommand(classifyCmd("classify", "Add classification tags to a row", false))
	cmd.AddCommand(classifyCmd("declassify", "Remove classification tags from a row", true))

	return cmd
}

func linkCmd(use, short string, remove bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <association> <row-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			assoc, err := model.ParseAssociation(args[0])
			if err != nil {
				return fmt.Errorf("%w (use tag classify for plain labels)", err)
			}
			ids, err := parseRowIDs(args[1:])
			if err != nil {
				return err
			}

			report := a.Tags.LinkMany(ctx, ids, assoc, remove)
			return finish(ctx, cmd, a, report, report)
		}),
	}
}

type tagsOutput struct {
	RowID int64    `json:"row_id" yaml:"row_id"`
	Tags  []string `json:"tags" yaml:"tags"`
}

func classifyCmd(use, short string, remove bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <row-id> <label>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			ids, err := parseRowIDs(args[:1])
			if err != nil {
				return err
			}

			var tags []string
			if remove {
				tags, err = a.Tags.Declassify(ctx, ids[0], args[1:]...)
			} else {
				tags, err = a.Tags.Classify(ctx, ids[0], args[1:]...)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), tagsOutput{RowID: ids[0], Tags: tags})
		}),
	}
}

func parseRowIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid row id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
