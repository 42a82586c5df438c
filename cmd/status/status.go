// Package status provides the status command.
package status

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/eventlog-migrator/internal/app"
	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
)

const defaultFailureLimit = 20

// Command creates the status command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var failureLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint and the latest migration run",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.NewEnvironment(settings, build, app.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			return env.Status(cmd.Context(), failureLimit)
		},
	}

	cmd.Flags().IntVar(&failureLimit, "failures", defaultFailureLimit, "Failed records of the latest run to list, 0 hides them")

	return cmd
}
