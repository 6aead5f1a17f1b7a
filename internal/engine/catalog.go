package engine

import (
	"context"
	"io"
	"time"
)

// ObjectDescriptor identifies one fetchable object without its content.
type ObjectDescriptor struct {
	ID                string         `json:"id"`
	Name              string         `json:"filename"`
	Uploaded          time.Time      `json:"uploaded"`
	RequireSignedURLs bool           `json:"requireSignedURLs"`
	Variants          []string       `json:"variants"`
	Meta              map[string]any `json:"meta,omitempty"`
}

// Catalog lists every object a run should fetch, in a stable order.
type Catalog interface {
	List(ctx context.Context) ([]ObjectDescriptor, error)
}

// Fetcher opens a byte stream for one object. The returned stream is owned by
// the caller and must be closed.
type Fetcher interface {
	Fetch(ctx context.Context, desc ObjectDescriptor) (io.ReadCloser, error)
}

type CatalogFunc func(ctx context.Context) ([]ObjectDescriptor, error)

func (f CatalogFunc) List(ctx context.Context) ([]ObjectDescriptor, error) {
	return f(ctx)
}

type FetcherFunc func(ctx context.Context, desc ObjectDescriptor) (io.ReadCloser, error)

func (f FetcherFunc) Fetch(ctx context.Context, desc ObjectDescriptor) (io.ReadCloser, error) {
	return f(ctx, desc)
}

// Collector is a catalog backend that can also fetch what it lists.
type Collector interface {
	Named
	Catalog
	Fetcher
	Close(context.Context) error
}
