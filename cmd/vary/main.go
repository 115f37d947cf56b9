package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/vary/internal/cmd/client"
	serverrun "github.com/rzbill/vary/internal/cmd/server"
	cfgpkg "github.com/rzbill/vary/internal/config"
	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
	logpkg "github.com/rzbill/vary/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect VARY_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("VARY_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "vary",
		Short: "Vary experiment runtime CLI",
		Long:  "Vary is a single-binary A/B experiment runtime. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start vary server (HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			configFile, _ := cmd.Flags().GetString("config")
			experimentsFile, _ := cmd.Flags().GetString("experiments")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configFile)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if experimentsFile != "" {
				cfg.ExperimentsFile = experimentsFile
			}
			if logLevel != "" {
				_ = os.Setenv("VARY_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("VARY_LOG_FORMAT", logFormat)
			}
			return serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			})
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("VARY_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("VARY_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().StringP("config", "c", "", "Config file (JSON)")
	serverStartCmd.Flags().String("experiments", "", "Experiment definitions file loaded at startup")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewExperimentCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewAssignCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewTrackCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewResultsCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("VARY_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
