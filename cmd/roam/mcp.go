package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam"
	mcpAdapter "github.com/aretw0/roam/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the engine as an MCP server",
	Long:  `Serves the run_goal, get_session and list_sessions tools over MCP so an outer assistant can drive the device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		engine, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		server := mcpAdapter.NewServer(engine, roam.Version)

		if port, _ := cmd.Flags().GetInt("sse-port"); port > 0 {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ServeSSE(ctx, port)
		}
		return server.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().Int("sse-port", 0, "Serve over SSE on this port instead of stdio")
}
