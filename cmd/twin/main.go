package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/config"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
)

const defaultConfigPath = "./configs/twin.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// errorLine prefixes structured errors with their numeric code
func errorLine(err error) string {
	if twinerrors.IsTwinError(err) {
		return fmt.Sprintf("Error [%d]: %v", twinerrors.GetCode(err), err)
	}
	return "Error: " + err.Error()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "twin",
		Short:         "Fault-management digital twin of a spacecraft node network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	load := func() (*config.Config, error) {
		return config.LoadConfig(resolveConfigPath(configPath))
	}

	root.AddCommand(
		newServeCmd(load),
		newStressCmd(&configPath),
		newDecodeCmd(),
		newInspectCmd(),
	)
	return root
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

// initLogger builds the process logger from the logging section
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}
