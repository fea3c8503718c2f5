package main

import (
	"encoding/json"
	"image/color"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/pipeline"
)

var (
	renderOut       string
	renderFilterMin float64
	renderFilterMax float64
)

var renderCmd = &cobra.Command{
	Use:   "render <category> <metric>",
	Short: "Render a metric's colors and legend to JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("render"); err != nil {
			return err
		}

		engine, err := newEngine(cfg, nil)
		if err != nil {
			return err
		}

		req := pipeline.Request{Category: args[0], Metric: args[1]}
		if !math.IsInf(renderFilterMin, -1) || !math.IsInf(renderFilterMax, 1) {
			req.Filter = &encoding.Range{Min: renderFilterMin, Max: renderFilterMax}
		}

		view, err := engine.Render(cmd.Context(), req)
		if err != nil {
			return err
		}

		colors := view.Colors()
		hexes := make([]string, len(colors))
		for i, c := range colors {
			hexes[i] = palette.Hex(color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
		}

		out := cmd.OutOrStdout()
		if renderOut != "" {
			f, err := os.Create(renderOut)
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"category": view.Category,
			"metric":   view.Metric,
			"ids":      view.Dataset.IDs,
			"colors":   hexes,
			"legend":   view.Legend,
			"triggers": view.Triggers(),
		})
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output path (default stdout)")
	renderCmd.Flags().Float64Var(&renderFilterMin, "filter-min", math.Inf(-1), "numeric filter lower bound")
	renderCmd.Flags().Float64Var(&renderFilterMax, "filter-max", math.Inf(1), "numeric filter upper bound")
	rootCmd.AddCommand(renderCmd)
}
