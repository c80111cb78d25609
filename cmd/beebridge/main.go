// Package main is the entry point for the BeeBridge daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/beebridge/internal/config"
	"github.com/edumarques81/beebridge/internal/version"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "beebridge",
		Short:         "Media key and presence bridge for MusicBee under Wine",
		Version:       version.GetInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug or trace (overrides the config file)")

	root.AddCommand(
		runCmd,
		startCmd,
		stopCmd,
		newConfigFileCmd(),
		versionCmd,
	)
	return root
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
	},
}

// setupLogging configures the global logger. The console writer always
// goes to stderr; the log file, when given, receives the same events.
func setupLogging(level, file string) (io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if file == "" {
		log.Logger = log.Output(console)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Logger = log.Output(console)
		return io.NopCloser(nil), fmt.Errorf("open log file: %w", err)
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, f))
	return f, nil
}
