package catalog

import "errors"

var (
	// ErrSourceUnavailable is returned by a Source whose catalog cannot be read.
	// The knowledge base answers it with the fallback catalog.
	ErrSourceUnavailable = errors.New("catalog source unavailable")

	// ErrCacheRequired is returned when a cache is not provided.
	ErrCacheRequired = errors.New("cache required")

	// ErrPipelineRequired is returned when an embedding pipeline is not provided.
	ErrPipelineRequired = errors.New("embedding pipeline required")

	// ErrUnsupportedFormat is returned for catalog files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
)
