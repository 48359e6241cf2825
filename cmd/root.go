// Package cmd implements the harvester command-line interface.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/bootstrap"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/config"
)

const envPrefix = "HARVESTER"

// rootCmd represents the root command for the harvester CLI.
var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "Fetch, extract and validate property listings",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	mustBind("config", "debug")
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("harvester %s\n", bootstrap.Version)
		},
	})
	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(dlqCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(tokenCommand())
}

func mustBind(names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadConfig reads the file named by --config or HARVESTER_CONFIG and
// builds the logger it configures.
func loadConfig() (*config.Config, infralogger.Logger, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = infralogger.FormatConsole
	}
	log, err := infralogger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(infralogger.String("service", bootstrap.ServiceName)), nil
}

// withApp builds the application, hands it to fn and releases it afterwards.
func withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			log.Warn("Failed to close resources", infralogger.Error(closeErr))
		}
	}()
	return fn(app)
}
