package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/tphakala/plantid/internal/api/v2"
	"github.com/tphakala/plantid/internal/app"
	"github.com/tphakala/plantid/internal/buildinfo"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/httpserver"
	"github.com/tphakala/plantid/internal/logger"
)

// Command creates the serve command, which runs the HTTP API.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identification API server",
		Long:  "Start the HTTP API that accepts plant photos and returns identified species.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, build)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address and port of the API server")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, build *buildinfo.Context) error {
	ctx := cmd.Context()
	log := logger.Global().Module("serve")

	a, err := app.New(ctx, settings, build, log.Module("app"))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Error releasing resources", logger.Error(err))
		}
	}()

	srv, err := httpserver.New(settings, a.Service,
		api.WithSpecies(a.Catalog),
		api.WithDatabase(a.Store),
		api.WithMetrics(a.Metrics.HTTP, a.Metrics.Handler()),
		api.WithVersion(build.GetVersion()),
		api.WithLogger(log.Module("api")),
	)
	if err != nil {
		return err
	}

	log.Info("Starting plantid",
		logger.String("version", build.GetVersion()),
		logger.String("listen", settings.WebServer.Listen))
	return srv.Start(ctx)
}
