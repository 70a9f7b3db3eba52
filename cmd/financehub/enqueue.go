package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsd-finance/finance-hub/cmd/financehub/cli"
	"github.com/dsd-finance/finance-hub/internal/app"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
	"github.com/dsd-finance/finance-hub/jobs"
)

func newEnqueueCmd() *cobra.Command {
	var currency string
	cmd := &cobra.Command{
		Use:   "enqueue <rule>",
		Short: "Enqueue a reconciliation run",
		Long: fmt.Sprintf(`Enqueue a reconciliation run for the worker.

Rules: %s, or "all".`, ruleList()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := args[0]
			if rule == "all" {
				rule = ""
			}
			return trigger(cmd, jobs.TaskReconcileRun, cli.TriggerOptions{Rule: rule, Currency: currency})
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "", "restrict the run to one ISO currency")
	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var opts cli.TriggerOptions
	triggerCmd := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a task by type (reconcile:run, stripe:sync, pnl:warmup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return trigger(cmd, args[0], opts)
		},
	}
	triggerCmd.Flags().StringVar(&opts.Rule, "rule", "", "reconciliation rule")
	triggerCmd.Flags().StringVar(&opts.Currency, "currency", "", "ISO currency")
	triggerCmd.Flags().DurationVar(&opts.Lookback, "lookback", 0, "stripe sync lookback")
	triggerCmd.Flags().IntVar(&opts.Year, "year", 0, "P&L year")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	}

	cmd.AddCommand(triggerCmd, statsCmd)
	return cmd
}

func trigger(cmd *cobra.Command, task string, opts cli.TriggerOptions) error {
	jobsCLI, err := openJobsCLI()
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	ctx, cancel := contextWithTimeout(cmd, 10*time.Second)
	defer cancel()
	info, err := jobsCLI.Trigger(ctx, task, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return nil
}

func openJobsCLI() (*cli.JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cli.NewJobsCLI(cfg.RedisAddr)
}

func ruleList() string {
	rules := reconcile.Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
