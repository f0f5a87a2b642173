package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dna-labs/dna/internal/branding"
)

var (
	versionShort bool
	versionJSON  bool
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print version number only")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version info as JSON")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case versionShort:
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
		case versionJSON:
			return printJSON(cmd, versionInfo{Version: buildVersion, Commit: buildCommit, Date: buildDate})
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n",
				branding.DisplayName(), buildVersion, buildCommit, buildDate)
		}
		return nil
	},
}
