// Package sagas provides the sagas command.
package sagas

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/eventlog-migrator/internal/app"
	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
)

// Command creates the sagas command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sagas",
		Short: "Fill in the saga type of stored sagas",
		Long:  "Sets the saga type column of every saga and association value that has none, using the root element name of the serialized saga.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSagas(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runSagas(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	env, err := app.NewEnvironment(settings, build)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	_, err = env.BackfillSagas(ctx)
	return err
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Sagas.PageSize, "sagapagesize", viper.GetInt("sagas.pagesize"), "Sagas updated per transaction")
	cmd.Flags().StringVar(&settings.Sagas.SagaTable, "sagatable", viper.GetString("sagas.sagatable"), "Saga table")
	cmd.Flags().StringVar(&settings.Sagas.AssociationTable, "associationtable", viper.GetString("sagas.associationtable"), "Association value table")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
