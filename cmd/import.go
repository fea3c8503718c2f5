package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/pack"
)

var (
	importOut   string
	importSheet string
)

var importCmd = &cobra.Command{
	Use:   "import <table.xlsx>",
	Short: "Convert a metric spreadsheet to a pack file",
	Long:  "Reads an xlsx table (first column feature ids, remaining columns metrics) and writes it as a compressed pack.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importOut == "" {
			return eris.New("--out is required")
		}

		file, err := pack.ReadMetricTable(args[0], pack.XLSXOptions{SheetName: importSheet})
		if err != nil {
			return err
		}

		out, err := os.Create(importOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", importOut)
		}
		defer out.Close() //nolint:errcheck

		if err := pack.Encode(out, file); err != nil {
			return err
		}
		zap.L().Info("pack written",
			zap.String("path", importOut),
			zap.Int("rows", len(file.IDs)),
			zap.Int("numeric_columns", len(file.Numeric)),
			zap.Int("string_columns", len(file.Strings)),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importOut, "out", "o", "", "output pack path")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default first sheet)")
	rootCmd.AddCommand(importCmd)
}
