package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/behavior-twin/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "twin",
	Short:         "Behavioral digital twin: clusters, forecasts and insights from activity logs",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file applied before TWIN_* variables")
	rootCmd.AddCommand(serveCmd, replayCmd, inspectCmd, remoteCmd)
}

// #region main
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, config.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	return rootCmd.ExecuteContext(context.Background())
}
// #endregion main

// loadConfig reads the persistent --config and --env-file flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(path, envFile)
}
