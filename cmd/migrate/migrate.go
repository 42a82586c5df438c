// Package migrate provides the migrate command.
package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/eventlog-migrator/internal/app"
	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/errors"
)

// ErrIncomplete is returned when the run finished but left records behind,
// so scripts can tell from the exit status that another run is needed.
var ErrIncomplete = errors.NewStd("migration did not complete")

// Command creates the migrate command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var opts app.MigrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy events to the new event table",
		Long: `Reads the legacy event table in id order, converts every event to the new
schema and writes it to the target table. The run resumes from the persisted
checkpoint unless --lastprocessedid is given. Events already present in the
target are skipped, so the command can be run again safely.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), settings, build, opts)
		},
	}

	if err := setupFlags(cmd, settings, &opts); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runMigrate(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts app.MigrateOptions) error {
	env, err := app.NewEnvironment(settings, build)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	report, err := env.Migrate(ctx, opts)
	if err != nil {
		return err
	}
	if !report.Complete() {
		return ErrIncomplete
	}
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *app.MigrateOptions) error {
	m := &settings.Migration
	flags := cmd.Flags()
	flags.Int64Var(&m.LastProcessedID, "lastprocessedid", viper.GetInt64("migration.lastprocessedid"), "Start after this legacy id instead of the persisted checkpoint (-1 uses the checkpoint)")
	flags.BoolVar(&m.AutoResolveIdentifier, "autoresolve", viper.GetBool("migration.autoresolveidentifier"), "Guess missing identifier fields from the schema registry")
	flags.StringVar(&m.IdentifierMappingFile, "mapping", viper.GetString("migration.identifiermappingfile"), "YAML file mapping payload types to identifier fields")
	flags.StringVar(&m.SchemaRegistryFile, "schemas", viper.GetString("migration.schemaregistryfile"), "YAML file listing the fields of each payload type")
	flags.IntVar(&m.Workers, "workers", viper.GetInt("migration.workers"), "Number of worker goroutines")
	flags.IntVar(&m.MaxWorkers, "maxworkers", viper.GetInt("migration.maxworkers"), "Upper bound of workers while the queue is full")
	flags.IntVar(&m.PageSize, "pagesize", viper.GetInt("migration.pagesize"), "Legacy records read per page")
	flags.IntVar(&m.SubBatchSize, "subbatchsize", viper.GetInt("migration.subbatchsize"), "Records per unit of concurrent work")
	flags.DurationVar(&m.PageInterval, "pageinterval", viper.GetDuration("migration.pageinterval"), "Minimum delay between page reads")
	flags.StringVar(&m.CheckpointMode, "checkpointmode", viper.GetString("migration.checkpointmode"), "Checkpoint mode: confirmed or read")
	flags.StringVar(&m.TxScope, "txscope", viper.GetString("migration.txscope"), "Transaction scope: subbatch or item")
	flags.BoolVar(&m.LegacyUpcaster, "legacyupcaster", viper.GetBool("migration.legacyupcaster"), "Upcast events from the oldest serializer format")

	flags.BoolVar(&opts.Force, "force", false, "Mark a run left running by a crashed process as interrupted")
	flags.BoolVar(&opts.CreateTargetTable, "create-target-table", false, "Create the new event table if it does not exist")

	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
