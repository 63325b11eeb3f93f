package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/lock"
	"github.com/warp/harvest-engine/service"
	"github.com/warp/harvest-engine/sim"
	"github.com/warp/harvest-engine/store/sqlite"
)

// openService wires the stored-business commands the same way the server
// does. The returned func closes everything it opened.
func (a *app) openService(ctx context.Context) (*service.Service, func(), error) {
	store, err := sqlite.New(a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{store.Close}

	var locker lock.Locker = lock.NewMemory()
	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
		}
		locker = lock.NewRedis(rdb, a.cfg.LockTTL, 0)
	}

	svc := service.New(store, locker,
		service.WithLogger(a.log),
		service.WithLockTimeout(a.cfg.LockTimeout),
	)
	return svc, func() { closeAll(closers) }, nil
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func createCmd(a *app) *cobra.Command {
	var (
		id    string
		name  string
		start string
	)
	cmd := &cobra.Command{
		Use:   "create <preset>",
		Short: "Store a new business built from a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var startDate calendar.Date
			if start != "" {
				d, err := calendar.Parse(start)
				if err != nil {
					return err
				}
				startDate = d
			}
			svc, done, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			summary, err := svc.Create(cmd.Context(), service.CreateRequest{
				BusinessID: id,
				Name:       name,
				Preset:     args[0],
				StartDate:  startDate,
			})
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "business id (default: random uuid)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the preset's)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default: today)")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			records, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tDATE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Kind, r.CurrentDate)
			}
			return tw.Flush()
		},
	}
}

func stateCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "state <id>",
		Short: "Show a stored business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var summary sim.Summary
			if err := svc.View(cmd.Context(), args[0], func(b *sim.Business) error {
				summary = b.State()
				return nil
			}); err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func advanceCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Simulate days on a stored business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			reports, summary, err := svc.Advance(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "DATE\tREVENUE\tCOGS\tCASH\tDELIVERIES\tSTOCKOUTS\t")
			for _, r := range reports {
				stockouts := 0
				for _, s := range r.Sales {
					if s.Stockout {
						stockouts++
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t\n", r.Date, r.Revenue, r.COGS, r.CashEnd, len(r.Deliveries), stockouts)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return printSummary(out, summary)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "n", 1, "days to simulate")
	return cmd
}

func printSummary(w io.Writer, s sim.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Business\t%s (%s)\n", s.Name, s.BusinessID)
	fmt.Fprintf(tw, "Date\t%s (day %d)\n", s.CurrentDate, s.Day)
	fmt.Fprintf(tw, "Cash\t%s\n", s.Cash)
	fmt.Fprintf(tw, "Inventory\t%s\n", s.InventoryValue)
	fmt.Fprintf(tw, "Lifetime revenue\t%s\n", s.LifetimeRevenue)
	fmt.Fprintf(tw, "Open orders\t%d\n", s.OpenOrders)
	fmt.Fprintf(tw, "Payables\t%s (%d overdue)\n", s.OutstandingPayables, s.OverdueBills)
	fmt.Fprintf(tw, "Loans\t%s\n", s.LoanPrincipal)
	return tw.Flush()
}
