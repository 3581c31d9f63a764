package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/masgolf/assetsync/internal/app"
	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	var (
		kind      string
		folder    string
		date      string
		subKind   string
		name      string
		source    string
		channel   string
		customers []string
		messages  []string
		providers []string
		labels    []string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a local file to its canonical path and index it",
		Long: `Upload a local file to its canonical path and index it.

Assets of customer, product, component and website kinds whose folder
cannot be resolved are routed to unmatched/{date}/. Existing objects
are never overwritten. Ingest always writes; --dry-run does not apply.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			k, err := assetpath.ParseKind(kind)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			assocs, err := parseAssociations(customers, messages, providers)
			if err != nil {
				return err
			}

			row, err := a.Ingester.Ingest(ctx, service.IngestRequest{
				Kind:         k,
				Folder:       folder,
				Date:         date,
				SubKind:      subKind,
				FileName:     name,
				Body:         body,
				Source:       source,
				Channel:      channel,
				Associations: assocs,
				Labels:       labels,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), row)
		}),
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Asset kind: "+assetpath.KindList())
	cmd.Flags().StringVar(&folder, "folder", "", "Entity folder for folder-keyed kinds")
	cmd.Flags().StringVar(&date, "date", "", "Date folder (default today)")
	cmd.Flags().StringVar(&subKind, "sub-kind", "", "Optional sub-kind segment")
	cmd.Flags().StringVar(&name, "name", "", "Stored file name (default the local base name)")
	cmd.Flags().StringVar(&source, "source", model.SourceUpload, "Index source column")
	cmd.Flags().StringVar(&channel, "channel", "", "Index channel column")
	cmd.Flags().StringSliceVar(&customers, "customer", nil, "Customer id to associate (repeatable)")
	cmd.Flags().StringSliceVar(&messages, "message", nil, "Message id to associate (repeatable)")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Provider id to associate (repeatable)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Classification tag such as survey (repeatable)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func parseAssociations(customers, messages, providers []string) ([]model.Association, error) {
	var assocs []model.Association
	for _, group := range []struct {
		ids    []string
		newTag func(string) (model.Association, error)
	}{
		{customers, model.CustomerTag},
		{messages, model.MessageTag},
		{providers, model.ProviderTag},
	} {
		for _, id := range group.ids {
			a, err := group.newTag(id)
			if err != nil {
				return nil, err
			}
			assocs = append(assocs, a)
		}
	}
	return assocs, nil
}
