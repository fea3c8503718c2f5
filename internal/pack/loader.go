package pack

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/county-atlas/internal/dataset"
)

// Loader fetches category packs and hydrates datasets. Loaded datasets
// are cached for the process lifetime; concurrent requests for the same
// category coalesce into one fetch.
type Loader struct {
	fetcher Fetcher
	baseURL string

	mu       sync.RWMutex
	datasets map[string]*dataset.Dataset

	inflight singleflight.Group
}

// NewLoader creates a loader serving packs from baseURL, where category
// "income" resolves to {baseURL}/income.pack.gz.
func NewLoader(fetcher Fetcher, baseURL string) *Loader {
	return &Loader{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		datasets: make(map[string]*dataset.Dataset),
	}
}

// URL resolves a category's pack location.
func (l *Loader) URL(category string) string {
	return l.baseURL + "/" + category + ".pack.gz"
}

// Cached returns an already-loaded dataset, or nil.
func (l *Loader) Cached(category string) *dataset.Dataset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.datasets[category]
}

// Load returns the category's dataset, fetching and decoding its pack
// on first request. Duplicate concurrent loads of one category share a
// single fetch.
func (l *Loader) Load(ctx context.Context, category string) (*dataset.Dataset, error) {
	if ds := l.Cached(category); ds != nil {
		return ds, nil
	}

	v, err, shared := l.inflight.Do(category, func() (any, error) {
		// Recheck under the flight: a racing caller may have finished.
		if ds := l.Cached(category); ds != nil {
			return ds, nil
		}
		return l.fetch(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("pack: coalesced duplicate load", zap.String("category", category))
	}
	return v.(*dataset.Dataset), nil
}

func (l *Loader) fetch(ctx context.Context, category string) (*dataset.Dataset, error) {
	url := l.URL(category)
	zap.L().Info("pack: loading category",
		zap.String("category", category),
		zap.String("url", url),
	)

	body, err := l.fetcher.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "pack: load category %s", category)
	}
	defer func() { _ = body.Close() }()

	file, err := Decode(body)
	if err != nil {
		return nil, eris.Wrapf(err, "pack: decode category %s", category)
	}

	ds, err := Hydrate(category, file)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Keep the first dataset if another flight won the race: its
	// buffers may already be in use.
	if existing := l.datasets[category]; existing != nil {
		return existing, nil
	}
	l.datasets[category] = ds
	return ds, nil
}

// LoadAll fetches several categories concurrently, e.g. both axes of a
// bivariate pair. Fails on the first error.
func (l *Loader) LoadAll(ctx context.Context, categories []string) (map[string]*dataset.Dataset, error) {
	out := make(map[string]*dataset.Dataset, len(categories))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, category := range categories {
		g.Go(func() error {
			ds, err := l.Load(gctx, category)
			if err != nil {
				return err
			}
			mu.Lock()
			out[category] = ds
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Hydrate builds a dataset from a decoded pack file.
func Hydrate(category string, file *File) (*dataset.Dataset, error) {
	ds, err := dataset.New(category, file.IDs)
	if err != nil {
		return nil, err
	}
	for name, col := range file.Numeric {
		if err := ds.SetColumn(name, col, dataset.NumericMeta{Dtype: "f32"}); err != nil {
			return nil, err
		}
	}
	for name, col := range file.Strings {
		sc := &dataset.StringColumn{Indexes: col.Indexes, Dict: col.Dict}
		if err := ds.SetStringColumn(name, sc); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
