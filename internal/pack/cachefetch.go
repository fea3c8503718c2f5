package pack

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
)

// Cache is the persisted pack store consulted before hitting the
// upstream host. Satisfied by the store package.
type Cache interface {
	LoadPack(ctx context.Context, category string) ([]byte, bool, error)
	SavePack(ctx context.Context, category string, data []byte) error
}

// CachedFetcher serves packs from a persistent cache, falling back to
// the wrapped fetcher and caching what it downloads. Cache errors are
// logged and bypassed, never fatal.
type CachedFetcher struct {
	next  Fetcher
	cache Cache
}

// NewCachedFetcher wraps a fetcher with a pack cache.
func NewCachedFetcher(next Fetcher, cache Cache) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache}
}

// categoryFromURL recovers the category from a pack URL, e.g.
// ".../income.pack.gz" -> "income".
func categoryFromURL(url string) string {
	base := path.Base(url)
	return strings.TrimSuffix(base, ".pack.gz")
}

func (f *CachedFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	category := categoryFromURL(url)

	data, ok, err := f.cache.LoadPack(ctx, category)
	if err != nil {
		zap.L().Warn("pack: cache read failed, fetching upstream",
			zap.String("category", category),
			zap.Error(err),
		)
	} else if ok {
		zap.L().Debug("pack: cache hit", zap.String("category", category))
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	body, err := f.next.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err = io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if err := f.cache.SavePack(ctx, category, data); err != nil {
		zap.L().Warn("pack: cache write failed",
			zap.String("category", category),
			zap.Error(err),
		)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
