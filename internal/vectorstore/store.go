// Package vectorstore wraps the Qdrant client behind the narrow contract the
// rest of the server uses: named-vector upsert/search/scroll/retrieve/delete
// with the space-id filter always in force and a reconnect-once retry on
// transport failure.
package vectorstore

import (
	"context"
)

// Point is a stored step: id, one named dense vector, and the payload map.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Scored is a search hit ordered by descending score.
type Scored struct {
	Point
	Score float32
}

// Filter expresses the only two clauses KAIROS reads with. SpaceIDs is
// intersected into every call by the store itself; ChainID is optional.
type Filter struct {
	ChainID  string
	SpaceIDs []string
}

// Store is the vector-store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, f Filter) ([]Scored, error)
	Retrieve(ctx context.Context, ids []string) ([]Point, error)
	Scroll(ctx context.Context, f Filter, limit int) ([]Point, error)
	DeleteByFilter(ctx context.Context, f Filter) error
	DeleteIDs(ctx context.Context, ids []string) error
	SetPayload(ctx context.Context, id string, payload map[string]any) error
	Healthy(ctx context.Context) error
}
