// Package main is the trialfit command: the feasibility API server and
// one-shot CLI runs over a protocol file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/config"
	logpkg "github.com/kailas-cloud/trialfit/internal/logger"
	"github.com/kailas-cloud/trialfit/internal/version"
)

var (
	// configPath overrides the ENV-selected config file
	configPath string
	// logLevel overrides logging.level
	logLevel string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trialfit",
	Short: "Clinical trial protocol feasibility estimation",
	Long: `trialfit extracts structured features from a clinical trial protocol,
retrieves similar historical trials and estimates enrollment rate, screen
failure rate and duration risk with uncertainty intervals.

The configuration is read from config/$ENV.yaml (ENV defaults to "local").`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config/$ENV.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
}

// setup loads the configuration and builds the logger for a command.
func setup() (config.Config, *zap.Logger, error) {
	env := config.GetEnv()

	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
