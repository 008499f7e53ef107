// Package index provides read access to the prebuilt document index and
// the retriever that embeds a question before searching it.
package index

import (
	"context"
	"errors"
)

var ErrDimensionMismatch = errors.New("query vector dimension does not match index")

// Fragment is one retrieved chunk of program documentation.
type Fragment struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Index performs similarity search over stored fragment embeddings.
// Implementations must be safe for concurrent readers.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Fragment, error)
	Len() int
	Close() error
}
