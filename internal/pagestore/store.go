// Package pagestore persists per-page layout state keyed by document and
// page number.
package pagestore

import (
	"context"
	"errors"
	"time"

	"github.com/jackzampolin/relayout/internal/types"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("not found")

// Document is an ingested PDF.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// PageText is the extractor output for one page. Fragments are in PDF point
// space; ScaleX and ScaleY convert them to detector pixel space.
type PageText struct {
	Fragments []types.Fragment `json:"fragments"`
	ScaleX    float64          `json:"scale_x"`
	ScaleY    float64          `json:"scale_y"`
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
}

// Comparison is the inside/outside partition of a page's normalized fragments.
type Comparison struct {
	Inside  []types.Fragment `json:"inside"`
	Outside []types.Fragment `json:"outside"`
}

// Store holds documents and per-page state. Writes for an existing key
// replace the previous value.
type Store interface {
	PutDocument(ctx context.Context, doc Document) error
	Document(ctx context.Context, id string) (*Document, error)

	PutPageText(ctx context.Context, key types.PageKey, page PageText) error
	PageText(ctx context.Context, key types.PageKey) (*PageText, error)

	PutRegions(ctx context.Context, key types.PageKey, regions []types.Region) error
	Regions(ctx context.Context, key types.PageKey) ([]types.Region, error)

	PutComparison(ctx context.Context, key types.PageKey, cmp Comparison) error
	Comparison(ctx context.Context, key types.PageKey) (*Comparison, error)

	PutReclassified(ctx context.Context, key types.PageKey, regions []types.Region) error
	Reclassified(ctx context.Context, key types.PageKey) ([]types.Region, error)

	Ping(ctx context.Context) error
	Close() error
}
