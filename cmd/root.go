package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/plantid/cmd/catalog"
	"github.com/tphakala/plantid/cmd/identify"
	"github.com/tphakala/plantid/cmd/serve"
	"github.com/tphakala/plantid/internal/buildinfo"
	"github.com/tphakala/plantid/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "plantid",
		Short:         "Plant identification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags override values loaded from the config file.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	versionCmd := versionCommand(build)
	rootCmd.AddCommand(
		serve.Command(settings, build),
		identify.Command(settings, build),
		catalog.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags may have changed validated values, check again.
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

func versionCommand(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "plantid %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
		},
	}
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64VarP(&settings.Gate.Threshold, "threshold", "t", viper.GetFloat64("gate.threshold"), "Confidence threshold for accepting a suggestion, 0.0 to 1.0")
	rootCmd.PersistentFlags().StringVar(&settings.Cache.Backend, "cache", viper.GetString("cache.backend"), "Result cache backend (memory or redis)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
