package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/county-atlas/internal/numfmt"
	"github.com/sells-group/county-atlas/internal/pipeline"
	"github.com/sells-group/county-atlas/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <category> <metric>",
	Short: "Print a metric's summary statistics",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("render"); err != nil {
			return err
		}

		engine, err := newEngine(cfg, nil)
		if err != nil {
			return err
		}

		view, err := engine.Render(cmd.Context(), pipeline.Request{Category: args[0], Metric: args[1]})
		if err != nil {
			return err
		}
		sum := view.Summary
		if sum == nil {
			cmd.Printf("%s/%s: no data\n", args[0], args[1])
			return nil
		}

		if sum.Kind == stats.KindCategorical {
			cmd.Printf("%s/%s: %d rows, %d distinct values\n", args[0], args[1], sum.Count, sum.UniqueValues)
			for _, c := range sum.Categories {
				label := c.Value
				if label == "" {
					label = "(empty)"
				}
				cmd.Printf("  %-24s %d\n", label, c.Count)
			}
			return nil
		}

		f := view.Formatter
		if f == nil {
			f = numfmt.New("", false, 0)
		}
		cmd.Printf("%s/%s: %d values\n", args[0], args[1], sum.Count)
		cmd.Printf("  min    %s\n", f.Format(sum.Min))
		cmd.Printf("  median %s\n", f.Format(sum.Median))
		cmd.Printf("  mean   %s\n", f.Format(sum.Mean))
		cmd.Printf("  max    %s\n", f.Format(sum.Max))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
