package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var (
		jsonOutput bool
		short      bool
	)

	c := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case jsonOutput:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			case short:
				fmt.Fprintln(cmd.OutOrStdout(), version.Short())
				return nil
			default:
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return nil
			}
		},
	}
	c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	c.Flags().BoolVar(&short, "short", false, "Output only the version number")
	return c
}
