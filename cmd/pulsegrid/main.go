package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/pulsegrid/pulsegrid/internal/cmd/client"
	serverrun "github.com/pulsegrid/pulsegrid/internal/cmd/server"
	cfgpkg "github.com/pulsegrid/pulsegrid/internal/config"
	logpkg "github.com/pulsegrid/pulsegrid/pkg/log"
)

func main() {
	// Respect PULSEGRID_LOG_LEVEL for CLI output before config is loaded
	level := os.Getenv("PULSEGRID_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "pulsegrid",
		Short: "PulseGrid telemetry pipeline CLI",
		Long: "PulseGrid ingests per-source utilization metrics and fans them out to " +
			"live dashboards, either through a durable on-disk queue or a direct " +
			"in-memory aggregation path.",
	}

	rootCmd.AddCommand(durableCmd())
	rootCmd.AddCommand(directCmd())
	rootCmd.AddCommand(clientcmd.NewRoot())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, an optional JSON file, .env, and process env.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("load config: %w", err)
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	cfgpkg.LoadDotEnv(envFile)
	cfgpkg.FromEnv(&cfg)
	applyFlags(cmd, &cfg)
	return cfg, nil
}

// applyFlags lets explicit flags win over file and env values.
func applyFlags(cmd *cobra.Command, cfg *cfgpkg.Config) {
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTPAddr, _ = cmd.Flags().GetString("http")
	}
	if cmd.Flags().Changed("ws") {
		cfg.WSAddr, _ = cmd.Flags().GetString("ws")
	}
	if cmd.Flags().Changed("addr") {
		cfg.DirectAddr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("fsync") {
		cfg.Fsync, _ = cmd.Flags().GetString("fsync")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to a JSON config file")
	cmd.Flags().String("env-file", "", "path to a .env file (default ./.env)")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "log format: text|json")
}

func durableCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "durable", Short: "Durable-queue pipeline commands"}
	start := &cobra.Command{
		Use:     "start",
		Short:   "Start the durable pipeline (HTTP gateway, workers, dashboard fan-out)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := serverrun.RunDurable(context.Background(), cfg); err != nil {
				return fmt.Errorf("durable pipeline: %w", err)
			}
			return nil
		},
	}
	addCommonFlags(start)
	start.Flags().String("data-dir", "", "data directory (default platform-specific)")
	start.Flags().String("http", "", "gateway listen address (default :4000)")
	start.Flags().String("ws", "", "dashboard WebSocket listen address (default :4002)")
	start.Flags().Int("workers", 0, "worker pool size (default 2)")
	start.Flags().String("fsync", "", "fsync mode: always|interval|never (default always)")
	cmd.AddCommand(start)
	return cmd
}

func directCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "direct", Short: "Direct-aggregation pipeline commands"}
	start := &cobra.Command{
		Use:     "start",
		Short:   "Start the direct pipeline (single WebSocket router with in-memory aggregation)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := serverrun.RunDirect(context.Background(), cfg); err != nil {
				return fmt.Errorf("direct pipeline: %w", err)
			}
			return nil
		},
	}
	addCommonFlags(start)
	start.Flags().String("addr", "", "router listen address (default :4100)")
	cmd.AddCommand(start)
	return cmd
}
