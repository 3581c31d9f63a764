package cmd

import (
	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/spf13/cobra"
)

type pathOutput struct {
	Path   string `json:"path" yaml:"path"`
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`
}

func PathCmd() *cobra.Command {
	var (
		folder  string
		date    string
		subKind string
	)

	cmd := &cobra.Command{
		Use:   "path <kind> <file-name>",
		Short: "Print the canonical storage path of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := assetpath.ParseKind(args[0])
			if err != nil {
				return err
			}
			p, err := assetpath.Canonical(assetpath.Key{
				Kind:     kind,
				Folder:   folder,
				Date:     date,
				SubKind:  subKind,
				FileName: args[1],
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), pathOutput{Path: p})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Entity folder, e.g. leenamgu-8768")
	cmd.Flags().StringVar(&date, "date", "", "Date folder in any accepted form (2025-07-21, 2025.07.21, 20250721)")
	cmd.Flags().StringVar(&subKind, "sub-kind", "", "Optional sub-kind segment, e.g. detail")

	var name, phone string
	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "Build a customer folder key from a romanized name and phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := assetpath.FolderName(name, phone)
			if err != nil {
				return err
			}
			p, err := assetpath.Prefix(assetpath.KindCustomers, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), pathOutput{Path: p, Folder: f})
		},
	}
	folderCmd.Flags().StringVar(&name, "name", "", "Romanized customer name")
	folderCmd.Flags().StringVar(&phone, "phone", "", "Customer phone number")
	_ = folderCmd.MarkFlagRequired("name")
	_ = folderCmd.MarkFlagRequired("phone")
	cmd.AddCommand(folderCmd)

	return cmd
}
