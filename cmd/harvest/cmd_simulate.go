package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/catalog"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/sim"
	"golang.org/x/sync/errgroup"
)

var defaultStart = calendar.MustParse("2025-01-01")

type simulateOptions struct {
	presets   []string
	templates []string
	days      int
	start     string
	restock   bool
	coverDays int
	parallel  int
	jsonOut   bool
}

// simResult is the outcome of one simulated business.
type simResult struct {
	Business      string         `json:"business"`
	Summary       sim.Summary    `json:"summary"`
	NetIncome     money.Money    `json:"net_income"`
	UnitsSold     money.Quantity `json:"units_sold"`
	Stockouts     int            `json:"stockouts"`
	OrdersPlaced  int            `json:"orders_placed"`
	EventsStarted int            `json:"events_started"`
}

func simulateCmd(a *app) *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run businesses in memory and report how they did",
		Long: `Runs one business per preset or template file, in parallel, for the
given number of days. Nothing is stored. With --restock an autopilot
reorders from the cheapest vendor whenever stock plus open orders covers
less than --cover days of projected demand.

Example usage:
  harvest simulate --days 180 --restock
  harvest simulate --preset farm --template ./bakery.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := opts.configs()
			if err != nil {
				return err
			}
			results, err := runSimulations(cmd.Context(), configs, opts, a.log)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.presets, "preset", nil, "preset kinds to run (default: all presets unless --template is given)")
	f.StringSliceVar(&opts.templates, "template", nil, "template files to run")
	f.IntVar(&opts.days, "days", 90, "days to simulate")
	f.StringVar(&opts.start, "start", defaultStart.String(), "start date (YYYY-MM-DD)")
	f.BoolVar(&opts.restock, "restock", false, "reorder automatically before each day")
	f.IntVar(&opts.coverDays, "cover", 14, "days of projected demand the autopilot keeps covered")
	f.IntVar(&opts.parallel, "parallel", 4, "businesses simulated at once")
	f.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")
	return cmd
}

// configs builds one config per requested preset and template file.
func (o simulateOptions) configs() ([]sim.Config, error) {
	if o.days < 1 {
		return nil, fmt.Errorf("--days must be positive, got %d", o.days)
	}
	start, err := calendar.Parse(o.start)
	if err != nil {
		return nil, err
	}

	presets := o.presets
	if len(presets) == 0 && len(o.templates) == 0 {
		presets = catalog.Presets()
	}

	var configs []sim.Config
	for _, kind := range presets {
		tpl, err := catalog.Preset(kind)
		if err != nil {
			return nil, err
		}
		cfg, err := tpl.Config("sim-"+kind, start)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	loader := catalog.NewLoader()
	for _, path := range o.templates {
		tpl, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		id := "sim-" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		cfg, err := tpl.Config(id, start)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func runSimulations(ctx context.Context, configs []sim.Config, opts simulateOptions, log logrus.FieldLogger) ([]simResult, error) {
	results := make([]simResult, len(configs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.parallel, 1))

	for i, cfg := range configs {
		g.Go(func() error {
			res, err := simulate(ctx, cfg, opts, log.WithField("business", cfg.BusinessID))
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.BusinessID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func simulate(ctx context.Context, cfg sim.Config, opts simulateOptions, log logrus.FieldLogger) (simResult, error) {
	b, err := sim.New(cfg, sim.WithLogger(log))
	if err != nil {
		return simResult{}, err
	}
	res := simResult{Business: cfg.BusinessID}
	auto := restocker{coverDays: opts.coverDays, log: log}

	for day := 0; day < opts.days; day++ {
		if err := ctx.Err(); err != nil {
			return simResult{}, err
		}
		if opts.restock {
			placed, err := auto.run(b)
			if err != nil {
				return simResult{}, err
			}
			res.OrdersPlaced += len(placed)
		}
		report, err := b.AdvanceDay()
		if err != nil {
			return simResult{}, err
		}
		for _, s := range report.Sales {
			res.UnitsSold += s.Sold
			if s.Stockout {
				res.Stockouts++
			}
		}
		res.EventsStarted += len(report.EventsStarted)
	}

	period, err := calendar.NewRange(cfg.StartDate, b.CurrentDate())
	if err != nil {
		return simResult{}, err
	}
	income, err := b.IncomeStatement(period)
	if err != nil {
		return simResult{}, err
	}
	res.NetIncome = income.NetIncome
	res.Summary = b.State()
	log.WithFields(logrus.Fields{
		"days":       opts.days,
		"net_income": res.NetIncome.String(),
		"cash":       res.Summary.Cash.String(),
	}).Info("simulation finished")
	return res, nil
}

func printResults(w io.Writer, results []simResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BUSINESS\tDAY\tCASH\tINVENTORY\tREVENUE\tNET INCOME\tSOLD\tSTOCKOUTS\tORDERS\tOVERDUE\t")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t\n",
			r.Business, s.Day, s.Cash, s.InventoryValue, s.LifetimeRevenue, r.NetIncome,
			r.UnitsSold, r.Stockouts, r.OrdersPlaced, s.OverdueBills)
	}
	return tw.Flush()
}
