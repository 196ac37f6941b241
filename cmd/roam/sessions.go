package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam/internal/presentation/tui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted session ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		engine, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		ids, err := engine.Sessions(context.Background())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a persisted session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		engine, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		state, err := engine.Session(context.Background(), args[0])
		if err != nil {
			return err
		}

		printer := tui.NewPrinter(os.Stdout)
		fmt.Printf("goal: %s\ncycles: %d\ndone: %v\n\n", state.Goal, state.Cycle, state.Done)
		printer.PrintPlan(state.Plan, false)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}
