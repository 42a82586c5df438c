// Package cmd builds the cobra command tree of the migrator.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/eventlog-migrator/cmd/migrate"
	"github.com/tphakala/eventlog-migrator/cmd/sagas"
	"github.com/tphakala/eventlog-migrator/cmd/status"
	"github.com/tphakala/eventlog-migrator/cmd/version"
	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
)

const configFlag = "config"

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "eventlog-migrator",
		Short:        "Migrate a legacy event store to the new event schema",
		SilenceUsage: true,
	}

	var logLevel string
	if err := setupFlags(rootCmd, settings, &logLevel); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		migrate.Command(settings, build),
		sagas.Command(settings, build),
		status.Command(settings, build),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if cmd.Flags().Changed("loglevel") {
			applyLogLevel(settings, logLevel)
		}
		// Flags write straight into settings, so validate once more.
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, logLevel *string) error {
	flags := rootCmd.PersistentFlags()
	flags.String(configFlag, "", "Path to the configuration file (default searches ./config.yaml)")
	flags.StringVar(logLevel, "loglevel", viper.GetString("logging.defaultlevel"), "Console log level: trace, debug, info, warn or error")

	flags.StringVar(&settings.Legacy.Driver, "legacy-driver", viper.GetString("legacy.driver"), "Legacy store driver (sqlite or mysql)")
	flags.StringVar(&settings.Legacy.Path, "legacy-path", viper.GetString("legacy.path"), "Legacy SQLite database file")
	flags.StringVar(&settings.Legacy.Table, "legacy-table", viper.GetString("legacy.table"), "Legacy event table")
	flags.StringVar(&settings.Target.Driver, "target-driver", viper.GetString("target.driver"), "Target store driver (sqlite or mysql)")
	flags.StringVar(&settings.Target.Path, "target-path", viper.GetString("target.path"), "Target SQLite database file")
	flags.StringVar(&settings.Target.Table, "target-table", viper.GetString("target.table"), "New event table")

	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func applyLogLevel(settings *conf.Settings, level string) {
	level = strings.ToLower(level)
	settings.Logging.DefaultLevel = level
	if settings.Logging.Console != nil {
		settings.Logging.Console.Level = level
	}
}

// ConfigFileFromArgs returns the value of --config in args. The config file
// has to be known before the command tree is built, because flag defaults
// are read from the loaded configuration.
func ConfigFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--"+configFlag && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--"+configFlag+"="):
			return strings.TrimPrefix(arg, "--"+configFlag+"=")
		}
	}
	return ""
}
