package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tphakala/plantid/cmd"
	"github.com/tphakala/plantid/internal/buildinfo"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/telemetry"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	build := buildinfo.Current()

	settings, err := conf.Load(configFileFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
	}
	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(centralLogger)
	defer func() {
		_ = centralLogger.Close()
	}()
	log := centralLogger.Module("main")

	flush, err := telemetry.Init(&settings.Sentry, build.GetVersion(), log.Module("telemetry"))
	if err != nil {
		log.Warn("Error reporting disabled", logger.Error(err))
		flush = func() {}
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings, build)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("Command failed", logger.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// configFileFromArgs picks --config out of the arguments before cobra runs,
// since the flag defaults are read from the loaded configuration.
func configFileFromArgs(args []string) string {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsAllowlist.UnknownFlags = true
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}
