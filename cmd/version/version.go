// Package version provides the version command.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
)

// Command creates a new cobra.Command to print build metadata.
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the migrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())
			return err
		},
	}
}
