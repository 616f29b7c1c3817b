package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/app"
	"github.com/mamadbah2/agrimatch/internal/config"
	"github.com/mamadbah2/agrimatch/internal/scheduler"
	"github.com/mamadbah2/agrimatch/pkg/logger"
)

var (
	envFile    string
	engine     *app.App
	baseLogger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agrimatchctl",
		Short: "Operator tooling for the waste matching engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			baseLogger, err = logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			engine, err = app.New(cmd.Context(), cfg, baseLogger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = baseLogger.Sync()
			return engine.Close(context.Background())
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an env file")

	rootCmd.AddCommand(createProcessCmd())
	rootCmd.AddCommand(createRetriggerCmd())
	rootCmd.AddCommand(createImpactCmd())
	rootCmd.AddCommand(createSweepCmd())
	rootCmd.AddCommand(createSeedIndustriesCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process [batchId]",
		Short: "Run the matching engine for one batch and wait for the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := engine.Orchestrator.Process(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func createRetriggerCmd() *cobra.Command {
	var process bool
	cmd := &cobra.Command{
		Use:   "retrigger [batchId]",
		Short: "Send a batch back to pending under a new generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := engine.Batches.Retrigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !process {
				return printJSON(cmd, b)
			}
			res, err := engine.Orchestrator.Process(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&process, "process", false, "process the batch immediately instead of waiting for a trigger")
	return cmd
}

func createImpactCmd() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Print aggregated impact metrics for a region",
		RunE: func(cmd *cobra.Command, args []string) error {
			if region == "" {
				region = engine.Config.Matching.DefaultRegion
			}
			metrics, err := engine.Reporting.Impact(cmd.Context(), region)
			if err != nil {
				return err
			}
			return printJSON(cmd, metrics)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region to aggregate (defaults to DEFAULT_REGION)")
	return cmd
}

func createSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Process every batch stuck in pending past the stale threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := scheduler.NewScheduler(scheduler.Options{
				StaleAfter: engine.Config.Matching.StaleAfter,
			}, engine.Repo, engine.Process, nil, baseLogger.Named("scheduler"))
			if err != nil {
				return err
			}
			n, err := sched.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d stale batches\n", n)
			return nil
		},
	}
}

func createSeedIndustriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-industries [file.json]",
		Short: "Upsert industries from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			industries, err := loadIndustries(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, ind := range industries {
				if err := engine.Repo.UpsertIndustry(cmd.Context(), ind); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d industries\n", len(industries))
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
