package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/harvest-engine/catalog"
)

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in business presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tNAME\tCASH\tPRODUCTS\tVENDORS")
			for _, kind := range catalog.Presets() {
				tpl, err := catalog.Preset(kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", tpl.Kind, tpl.Name, tpl.StartingCash, len(tpl.Products), len(tpl.Vendors))
			}
			return tw.Flush()
		},
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect and check business templates",
	}

	show := &cobra.Command{
		Use:   "show <kind>",
		Short: "Print a preset as YAML, a starting point for custom templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := catalog.Preset(args[0])
			if err != nil {
				return err
			}
			out, err := catalog.NewLoader().ToYAML(tpl)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a template file and build its business config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := catalog.NewLoader().Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := tpl.Config("check", defaultStart)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d products, %d vendors, %d expenses, %d events)\n",
				cfg.Name, len(cfg.Products), len(cfg.Vendors), len(cfg.Expenses), len(cfg.Events))
			return nil
		},
	}

	cmd.AddCommand(show, check)
	return cmd
}
