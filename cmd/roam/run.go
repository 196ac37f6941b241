package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam"
	"github.com/aretw0/roam/internal/presentation/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a goal against the connected device",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		goal := strings.Join(args, " ")

		if app, _ := cmd.Flags().GetString("app"); app != "" {
			cfg.Agent.LockedApp = app
		}

		printer := tui.NewPrinter(os.Stdout)
		printer.PrintBanner(roam.Version)

		engine, err := buildEngine(cfg, logger, roam.WithHooks(printer.Hooks()))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		state, err := engine.Run(ctx, goal)
		if state != nil {
			printer.PrintPlan(state.Plan, false)
		}
		if err != nil {
			return err
		}

		if extract, _ := cmd.Flags().GetString("extract"); extract != "" && state != nil {
			out, err := engine.Extract(ctx, state, extract)
			if err != nil {
				return fmt.Errorf("extracting output: %w", err)
			}
			if out.Found {
				fmt.Println(out.Output)
			} else {
				fmt.Printf("not found: %s\n", out.Reason)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("app", "", "Lock the session to one app package")
	runCmd.Flags().String("extract", "", "Data request to extract from the finished session")
}
