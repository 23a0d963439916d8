package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/imagescan/internal/cli/helpers"
	"github.com/coral-mesh/imagescan/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if format == string(helpers.FormatJSON) {
				formatter, err := helpers.NewFormatter(helpers.FormatJSON)
				if err != nil {
					return err
				}
				return formatter.Format(info, cmd.OutOrStdout())
			}
			cmd.Print(info.String())
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, []helpers.OutputFormat{helpers.FormatText, helpers.FormatJSON})
	return cmd
}
