package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redink-ai/redink/internal/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return writeJSON(cmd, version.GetBuildInfo())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "redink", version.GetVersionString())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}
