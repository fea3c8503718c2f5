package pack

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFetcher serves packs from memory and counts downloads.
type memFetcher struct {
	packs map[string][]byte
	calls atomic.Int64
}

func (m *memFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	m.calls.Add(1)
	body, ok := m.packs[url]
	if !ok {
		return nil, eris.Errorf("no pack at %s", url)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func packBytes(t *testing.T, f *File) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, f))
	return buf.Bytes()
}

func newTestLoader(t *testing.T) (*Loader, *memFetcher) {
	t.Helper()
	fetcher := &memFetcher{packs: map[string][]byte{
		"https://packs.test/v1/income.pack.gz": packBytes(t, &File{
			IDs:     []string{"12086", "12011"},
			Numeric: map[string][]float32{"median_income": {61000, 64500}},
		}),
		"https://packs.test/v1/housing.pack.gz": packBytes(t, &File{
			IDs:     []string{"12086", "12011"},
			Numeric: map[string][]float32{"vacancy_rate": {0.11, 0.08}},
		}),
	}}
	return NewLoader(fetcher, "https://packs.test/v1/"), fetcher
}

func TestLoader_URL(t *testing.T) {
	l, _ := newTestLoader(t)
	assert.Equal(t, "https://packs.test/v1/income.pack.gz", l.URL("income"))
}

func TestLoader_LoadAndCache(t *testing.T) {
	l, fetcher := newTestLoader(t)

	ds, err := l.Load(context.Background(), "income")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Count())
	assert.NotNil(t, ds.Column("median_income"))

	// Second load is a cache hit on the same dataset.
	again, err := l.Load(context.Background(), "income")
	require.NoError(t, err)
	assert.Same(t, ds, again)
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestLoader_CoalescesConcurrentLoads(t *testing.T) {
	l, fetcher := newTestLoader(t)

	var wg sync.WaitGroup
	datasets := make(chan any, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ds, err := l.Load(context.Background(), "income")
			if err != nil {
				datasets <- err
				return
			}
			datasets <- ds
		}()
	}
	wg.Wait()
	close(datasets)

	var first any
	for got := range datasets {
		_, isErr := got.(error)
		require.False(t, isErr, "load failed: %v", got)
		if first == nil {
			first = got
		}
		assert.Same(t, first, got)
	}
	// Coalescing keeps fetches well under the caller count. The exact
	// number can exceed one if a goroutine starts after the first
	// flight completes but before it reads the cache.
	assert.LessOrEqual(t, fetcher.calls.Load(), int64(2))
}

func TestLoader_LoadAll(t *testing.T) {
	l, _ := newTestLoader(t)

	got, err := l.LoadAll(context.Background(), []string{"income", "housing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotNil(t, got["income"].Column("median_income"))
	assert.NotNil(t, got["housing"].Column("vacancy_rate"))
}

func TestLoader_LoadAllPropagatesFailure(t *testing.T) {
	l, _ := newTestLoader(t)
	_, err := l.LoadAll(context.Background(), []string{"income", "nope"})
	require.Error(t, err)
}

func TestLoader_MissingPack(t *testing.T) {
	l, _ := newTestLoader(t)
	_, err := l.Load(context.Background(), "unknown")
	require.Error(t, err)
	assert.Nil(t, l.Cached("unknown"))
}

func TestHydrate_DuplicateIDs(t *testing.T) {
	_, err := Hydrate("income", &File{IDs: []string{"a", "a"}})
	require.Error(t, err)
}
