package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/county-atlas/internal/config"
	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/pack"
	"github.com/sells-group/county-atlas/internal/pipeline"
	"github.com/sells-group/county-atlas/internal/store"
)

// newFetcher builds the HTTP pack fetcher from config.
func newFetcher(c *config.Config) *pack.HTTPFetcher {
	return pack.NewHTTPFetcher(pack.HTTPOptions{
		UserAgent:    c.Packs.UserAgent,
		Timeout:      time.Duration(c.Packs.TimeoutSecs) * time.Second,
		MaxRetries:   c.Packs.MaxRetries,
		RateLimiters: pack.DefaultRateLimiters(),
	})
}

// newEngine assembles the rendering engine: catalog, fetcher, loader.
// With a non-nil cache, packs are served from the store and only
// fetched upstream on a miss.
func newEngine(c *config.Config, cache pack.Cache) (*pipeline.Engine, error) {
	catalog, err := dataset.LoadCatalog(c.Catalog.Path)
	if err != nil {
		return nil, err
	}
	var fetcher pack.Fetcher = newFetcher(c)
	if cache != nil {
		fetcher = pack.NewCachedFetcher(fetcher, cache)
	}
	loader := pack.NewLoader(fetcher, c.Packs.BaseURL)
	return pipeline.New(catalog, loader, c.Legend.Steps), nil
}

// openStore opens the configured persistence backend and runs its
// migration.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		s, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		s, err = store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
