package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/service"
)

type ledgerOpener func(ctx context.Context) (*service.Service, func() error, error)

type cli struct {
	open   ledgerOpener
	out    io.Writer
	actor  string
	pretty bool
}

func newRootCmd(open ledgerOpener, out io.Writer) *cobra.Command {
	c := &cli{open: open, out: out}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the POS ledger from the command line",
		Long: `ledgerctl runs end-of-day and reporting operations against the shared
ledger store. Every command prints JSON on stdout.

Required environment variables:
  DATABASE_URL - Postgres connection string of the ledger store`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.actor, "as", "ledgerctl", "Username recorded on archived days and audit events")
	root.PersistentFlags().BoolVar(&c.pretty, "pretty", false, "Indent JSON output")

	root.AddCommand(
		c.closeDayCmd(),
		c.restoreDayCmd(),
		c.daysCmd(),
		c.reportCmd(),
		c.installmentsCmd(),
		c.lowStockCmd(),
	)
	return root
}

// run opens the ledger, calls fn as an admin actor and prints its result.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) (any, error)) error {
	ctx := service.WithActor(cmd.Context(), domain.Actor{Username: c.actor, DisplayName: c.actor, Role: "admin"})

	svc, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	result, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	if c.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func (c *cli) closeDayCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "close-day",
		Short: "Archive one day's invoices and returns and start a new numbering epoch",
		Example: `  # Close today
  ledgerctl close-day

  # Close a past day
  ledgerctl close-day --date 2026-03-09`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.CloseDay(ctx, date)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to close (format: YYYY-MM-DD, default: today)")
	return cmd
}

func (c *cli) restoreDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-day DATE",
		Short: "Move an archived day back into the live ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.RestoreDay(ctx, args[0])
			})
		},
	}
}

func (c *cli) daysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "days",
		Short: "List archived days, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.ListArchivedDays(ctx)
			})
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Sales reports",
	}

	var date string
	daily := &cobra.Command{
		Use:   "daily",
		Short: "Sales, refunds and per-cashier totals for one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.DailyReport(ctx, date)
			})
		},
	}
	daily.Flags().StringVar(&date, "date", "", "Report day (format: YYYY-MM-DD, default: today's live activity)")

	var year, month int
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Per-day totals for a month, archived days included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.MonthlyReport(ctx, year, month)
			})
		},
	}
	monthly.Flags().IntVar(&year, "year", 0, "Report year (default: current)")
	monthly.Flags().IntVar(&month, "month", 0, "Report month 1-12 (default: current)")

	report.AddCommand(daily, monthly)
	return report
}

func (c *cli) installmentsCmd() *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "installments",
		Short: "Unpaid installments falling due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.UpcomingInstallments(ctx, window)
			})
		},
	}
	cmd.Flags().IntVar(&window, "window", service.DefaultInstallmentWindow, "Days ahead to look")
	return cmd
}

func (c *cli) lowStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "low-stock",
		Short: "Products out of stock or at their minimum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				empty, err := svc.LowStock(ctx)
				if err != nil {
					return nil, err
				}
				below, err := svc.BelowMinimum(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"out_of_stock": empty, "below_minimum": below}, nil
			})
		},
	}
}
