package commands

import (
	"ciquery/internal/render"
	"ciquery/internal/sources"

	"github.com/spf13/cobra"
)

var sourcesFormat string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireEnvironments(); err != nil {
			return err
		}
		format, err := render.ParseFormat(sourcesFormat)
		if err != nil {
			return err
		}
		entries, err := sources.Catalog(cfg)
		if err != nil {
			return err
		}
		return render.WriteSources(cmd.OutOrStdout(), format, entries)
	},
}

func init() {
	sourcesCmd.Flags().StringVarP(&sourcesFormat, "format", "f", string(render.Table), "output format: table or json")
}
