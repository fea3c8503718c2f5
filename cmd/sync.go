package main

import (
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/dataset"
)

var syncCmd = &cobra.Command{
	Use:   "sync [categories...]",
	Short: "Fetch category packs and cache them in the store",
	Long:  "Downloads each category's pack and caches the raw bytes, so the server can hydrate datasets without hitting the upstream host. Defaults to every category in the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		ctx := cmd.Context()

		categories := args
		if len(categories) == 0 {
			catalog, err := dataset.LoadCatalog(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			for id := range catalog.Categories {
				categories = append(categories, id)
			}
			sort.Strings(categories)
		}

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		fetcher := newFetcher(cfg)
		baseURL := cfg.Packs.BaseURL

		for _, category := range categories {
			url := baseURL + "/" + category + ".pack.gz"
			body, err := fetcher.Download(ctx, url)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(body)
			_ = body.Close()
			if err != nil {
				return err
			}
			if err := s.SavePack(ctx, category, data); err != nil {
				return err
			}
			zap.L().Info("pack cached",
				zap.String("category", category),
				zap.Int("bytes", len(data)),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
