package services

import (
	"context"
)

// Catalog is the transport the query engine issues requests through.
type Catalog interface {
	// CreateRequest performs a signed GET against the catalog API at path with params.
	CreateRequest(ctx context.Context, path string, params []Param) (*APIResponse, error)

	// Fetch performs an unauthenticated GET of an absolute URL (cover images).
	Fetch(ctx context.Context, rawURL string) (*APIResponse, error)
}

// Param is a single query string parameter. Order is preserved on the wire.
type Param struct {
	Key   string
	Value string
}

// P is shorthand for building a [Param].
func P(key, value string) Param {
	return Param{Key: key, Value: value}
}
