package cmd

import (
	"github.com/spf13/cobra"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/profiling"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/bootstrap"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and process replayed items until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				profiling.StartPprofServer(app.Logger)
				profiler, err := profiling.StartPyroscope(bootstrap.ServiceName, app.Logger)
				if err != nil {
					return err
				}
				defer func() {
					if stopErr := profiler.Stop(); stopErr != nil {
						app.Logger.Warn("Failed to stop Pyroscope profiler", infralogger.Error(stopErr))
					}
				}()

				return app.Serve(cmd.Context())
			})
		},
	}
}
