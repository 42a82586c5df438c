// Package main provides a tool that fills a legacy event store with
// synthetic events and untyped sagas, and verifies the target store after a
// migration run. It is used for load tests and for exercising MySQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "eventgen",
		Short:         "Generate and verify legacy event store fixtures",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Migrator config.yaml with the store connections")

	rootCmd.AddCommand(seedCommand(&configPath), verifyCommand(&configPath))
	return rootCmd
}

func seedCommand(configPath *string) *cobra.Command {
	opts := DefaultSeedOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert synthetic legacy events and sagas",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			stats, err := runSeed(cmd.Context(), settings, opts)
			if err != nil {
				return err
			}
			stats.Print(cmd.OutOrStdout())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Events, "events", opts.Events, "Number of legacy events to insert")
	flags.IntVar(&opts.Aggregates, "aggregates", opts.Aggregates, "Number of aggregates the events are spread over")
	flags.StringSliceVar(&opts.PayloadTypes, "types", opts.PayloadTypes, "Payload types to generate, round robin")
	flags.IntVar(&opts.OldFormatEvery, "old-format-every", opts.OldFormatEvery, "Write every nth event in the oldest serializer format, 0 disables")
	flags.IntVar(&opts.MalformedEvery, "malformed-every", opts.MalformedEvery, "Write every nth event as unreadable XML, 0 disables")
	flags.IntVar(&opts.Sagas, "sagas", opts.Sagas, "Number of untyped sagas to insert into the target store")
	flags.IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "Rows per insert statement")
	flags.BoolVar(&opts.Clean, "clean", opts.Clean, "Delete existing legacy events before seeding")
	flags.StringVar(&opts.MappingFile, "write-mapping", opts.MappingFile, "Write an identifier mapping for the generated types to this file")

	return cmd
}

func verifyCommand(configPath *string) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every legacy event exists in the target store",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			result, err := runVerify(cmd.Context(), settings, batchSize)
			if err != nil {
				return err
			}
			result.Print(cmd.OutOrStdout())
			if result.Missing > 0 {
				return fmt.Errorf("%d legacy events are missing from the target store", result.Missing)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Legacy keys checked per page")

	return cmd
}
