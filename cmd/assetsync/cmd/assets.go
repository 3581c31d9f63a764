package cmd

import (
	"context"
	"errors"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/spf13/cobra"
)

func AssetsCmd() *cobra.Command {
	var (
		entity   string
		kind     string
		folder   string
		prefix   string
		url      string
		filePath string
	)

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List index rows by entity, folder, URL or path",
		Example: `  assetsync assets --entity customer-8768 --kind customers --folder leenamgu-8768
  assetsync assets --prefix originals/blog/2024-10-29
  assetsync assets --url https://cdn.example.com/originals/mms/2025-01-02/a.jpg`,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			var rows []*model.IndexRow
			var err error

			switch {
			case entity != "":
				assoc, perr := model.ParseAssociation(entity)
				if perr != nil {
					return perr
				}
				ref := service.EntityRef{Association: assoc, Kind: assetpath.Kind(kind), Folder: folder}
				rows, err = a.Tags.AssetsFor(ctx, ref)
			case prefix != "":
				rows, err = a.Assets.FindByFolder(ctx, prefix, true)
			case url != "":
				rows, err = a.Assets.FindByURL(ctx, url)
			case filePath != "":
				rows, err = a.Assets.FindByPath(ctx, filePath)
			default:
				return errors.New("one of --entity, --prefix, --url or --path is required")
			}
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []*model.IndexRow{}
			}
			return render(cmd.OutOrStdout(), rows)
		}),
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Association tag, e.g. customer-42")
	cmd.Flags().StringVar(&kind, "kind", string(assetpath.KindCustomers), "Kind of the entity folder")
	cmd.Flags().StringVar(&folder, "folder", "", "Entity folder; rows under it match even without the tag")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Folder prefix, children included")
	cmd.Flags().StringVar(&url, "url", "", "Exact public URL")
	cmd.Flags().StringVar(&filePath, "path", "", "Exact storage path")

	return cmd
}
