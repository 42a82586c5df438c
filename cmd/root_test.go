package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

func TestConfigFileFromArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"absent", []string{"migrate", "--workers", "4"}, ""},
		{"separate value", []string{"--config", "/etc/m.yaml", "migrate"}, "/etc/m.yaml"},
		{"equals form", []string{"migrate", "--config=prod.yaml"}, "prod.yaml"},
		{"missing value", []string{"migrate", "--config"}, ""},
		{"after terminator", []string{"migrate", "--", "--config", "x.yaml"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ConfigFileFromArgs(tt.args))
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("1.0.0", "", ""))

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "sagas", "status", "version"})
}

func TestRootCommand_Version(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("1.0.0", "2026-01-02", ""))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "eventlog-migrator 1.0.0 (built 2026-01-02)\n", out.String())
}

func TestRootCommand_RejectsInvalidSettings(t *testing.T) {
	// Empty settings fail validation before any store is opened.
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("", "", ""))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"status"})

	err := root.Execute()
	require.Error(t, err)
	var ve conf.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestApplyLogLevel(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Logging.Console = &logger.ConsoleOutput{Enabled: true, Level: "info"}
	applyLogLevel(settings, "DEBUG")

	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}
