package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/geo"
	"github.com/sells-group/county-atlas/internal/store"
)

var (
	boundariesURL   string
	boundariesSet   string
	boundariesMerge bool
)

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Manage boundary sets",
}

var boundariesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Download a boundary shapefile and persist it as WKB",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		ctx := cmd.Context()

		url := boundariesURL
		if url == "" {
			url = cfg.Boundaries.URL
		}
		set := boundariesSet
		if set == "" {
			set = cfg.Boundaries.Set
		}

		tempDir := cfg.Boundaries.TempDir
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return err
		}

		client := &http.Client{Timeout: 5 * time.Minute}
		col, err := geo.LoadRemote(ctx, client, url, tempDir)
		if err != nil {
			return err
		}

		rows := make([]store.BoundaryRow, 0, col.Len())
		for _, f := range col.Features {
			wkb, err := geo.EncodeWKB(f.Geometry)
			if err != nil {
				return err
			}
			rows = append(rows, store.BoundaryRow{
				ID:   f.ID,
				Name: f.Properties["NAME"],
				WKB:  wkb,
			})
		}

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		if boundariesMerge {
			err = s.MergeBoundaries(ctx, set, rows)
		} else {
			err = s.SaveBoundaries(ctx, set, rows)
		}
		if err != nil {
			return err
		}
		zap.L().Info("boundary set saved",
			zap.String("set", set),
			zap.Bool("merge", boundariesMerge),
			zap.Int("features", len(rows)),
		)
		return nil
	},
}

var boundariesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored boundary set sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		set := boundariesSet
		if set == "" {
			set = cfg.Boundaries.Set
		}
		rows, err := s.LoadBoundaries(ctx, set)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %d features\n", set, len(rows))
		return nil
	},
}

func init() {
	boundariesCmd.PersistentFlags().StringVar(&boundariesSet, "set", "", "boundary set name (default from config)")
	boundariesLoadCmd.Flags().StringVar(&boundariesURL, "url", "", "shapefile zip URL (default from config)")
	boundariesLoadCmd.Flags().BoolVar(&boundariesMerge, "merge", false, "upsert into the set instead of replacing it")
	boundariesCmd.AddCommand(boundariesLoadCmd)
	boundariesCmd.AddCommand(boundariesStatusCmd)
	rootCmd.AddCommand(boundariesCmd)
}
