// Package store persists boundary sets and cached category packs so
// the atlas can serve without refetching census sources on every start.
package store

import (
	"context"
)

// BoundaryRow is one persisted feature: its stable id, display name and
// EWKB-encoded geometry.
type BoundaryRow struct {
	ID   string
	Name string
	WKB  []byte
}

// Store is the persistence interface behind the import and serve
// commands. Pack payloads are stored verbatim (gzip-wrapped pack
// bytes); decoding stays in the pack package.
type Store interface {
	// Boundaries. Save replaces the whole set; Merge upserts rows in
	// place, keeping features absent from the new batch.
	SaveBoundaries(ctx context.Context, set string, rows []BoundaryRow) error
	MergeBoundaries(ctx context.Context, set string, rows []BoundaryRow) error
	LoadBoundaries(ctx context.Context, set string) ([]BoundaryRow, error)

	// Pack cache
	SavePack(ctx context.Context, category string, data []byte) error
	LoadPack(ctx context.Context, category string) ([]byte, bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
