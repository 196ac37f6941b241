package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam"
	"github.com/aretw0/roam/internal/config"
	"github.com/aretw0/roam/internal/logging"
	"github.com/aretw0/roam/pkg/adapters/bridge"
	"github.com/aretw0/roam/pkg/adapters/langchain"
	"github.com/aretw0/roam/pkg/adapters/memory"
	redisstore "github.com/aretw0/roam/pkg/adapters/redis"
	"github.com/aretw0/roam/pkg/graph"
	"github.com/aretw0/roam/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "roam",
	Short: "Roam drives a mobile device toward natural-language goals",
	Long: `Roam plans a goal into subgoals and cycles through observing the device
screen, deciding the next UI actions and executing them until the goal
completes.`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, logging.New(os.Stderr, parseLevel(cfg.LogLevel)), nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildEngine assembles the engine from the configuration.
func buildEngine(cfg *config.Config, logger *slog.Logger, extra ...roam.Option) (*roam.Engine, error) {
	device := bridge.New(cfg.Bridge.URL,
		bridge.WithLogger(logger),
		bridge.WithTimeout(cfg.Bridge.Timeout),
	)

	inference, err := langchain.New(cfg.Models, langchain.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("building inference client: %w", err)
	}

	var store ports.StateStore
	switch cfg.Store.Kind {
	case "redis":
		store = redisstore.New(
			cfg.Store.Redis.Address,
			cfg.Store.Redis.Password,
			cfg.Store.Redis.DB,
			redisstore.WithTTL(cfg.Store.Redis.TTL),
		)
	default:
		store = memory.NewStore()
	}

	opts := append([]roam.Option{
		roam.WithLogger(logger),
		roam.WithStore(store),
		roam.WithConfig(graph.Config{
			LockedApp:      cfg.Agent.LockedApp,
			MaxHistory:     cfg.Agent.MaxHistory,
			LaunchAttempts: cfg.Agent.LaunchAttempts,
			LaunchWait:     cfg.Agent.LaunchWait,
			MaxSupersteps:  cfg.Agent.MaxSupersteps,
		}),
	}, extra...)

	return roam.New(device, inference, opts...)
}
