package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/tphakala/eventlog-migrator/cmd"
	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
)

// buildDate and version are set with ldflags during the build.
var (
	buildDate string
	version   string
)

func main() {
	settings, err := conf.Load(cmd.ConfigFileFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	build := buildinfo.NewContext(version, buildDate, uuid.NewString())

	// SIGINT and SIGTERM stop the migration at the next page boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := cmd.RootCommand(settings, build)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
