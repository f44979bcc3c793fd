// Package vectorindex is an exact, in-memory nearest neighbour index over embeddings.
// It is intended for a single uploaded document, where a flat scan is fast enough.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

var ErrNoEmbedder = errors.New("vectorindex: no embedder")

// ErrScoreThreshold is returned when vectorstores.WithScoreThreshold is used. Other stores read
// it as a minimum similarity, but scores here are distances, so use WithMaxDistance.
var ErrScoreThreshold = errors.New("vectorindex: score thresholds are not supported, use WithMaxDistance")

// Filter is set as the vectorstores.Options Filters by WithMaxDistance.
type Filter struct {
	// MaxDistance is the largest squared L2 distance returned. Zero means no limit.
	MaxDistance float32
}

// WithMaxDistance drops results further than d from the query.
func WithMaxDistance(d float32) vectorstores.Option {
	return func(o *vectorstores.Options) {
		o.Filters = Filter{MaxDistance: d}
	}
}

func New(embedder embeddings.Embedder) *Index {
	return &Index{
		embedder: embedder,
	}
}

// FromDocuments embeds docs and returns an index containing them.
func FromDocuments(ctx context.Context, docs []schema.Document, embedder embeddings.Embedder) (*Index, error) {
	ix := New(embedder)
	if _, err := ix.AddDocuments(ctx, docs); err != nil {
		return nil, err
	}
	return ix, nil
}

// Index is safe for concurrent use.
type Index struct {
	embedder embeddings.Embedder

	m         sync.RWMutex
	docs      []schema.Document
	vectors   [][]float32
	dimension int
}

var _ vectorstores.VectorStore = (*Index)(nil)

func (ix *Index) Len() int {
	ix.m.RLock()
	defer ix.m.RUnlock()
	return len(ix.docs)
}

func (ix *Index) Dimension() int {
	ix.m.RLock()
	defer ix.m.RUnlock()
	return ix.dimension
}

func getOptions(options []vectorstores.Option) (opts vectorstores.Options) {
	for _, o := range options {
		o(&opts)
	}
	return opts
}

func (ix *Index) embedderFor(opts vectorstores.Options) (embeddings.Embedder, error) {
	if opts.Embedder != nil {
		return opts.Embedder, nil
	}
	if ix.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return ix.embedder, nil
}

// AddDocuments embeds and stores docs. The returned IDs are positions in the index.
func (ix *Index) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) (ids []string, err error) {
	opts := getOptions(options)
	embedder, err := ix.embedderFor(opts)
	if err != nil {
		return nil, err
	}
	if opts.Deduplicater != nil {
		docs = slices.DeleteFunc(slices.Clone(docs), func(d schema.Document) bool {
			return opts.Deduplicater(ctx, d)
		})
	}
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: failed to embed documents: %w", err)
	}
	return ix.AddVectors(docs, vectors)
}

// AddVectors stores pre-computed embeddings. All vectors must share the index dimension,
// which is set by the first vector added.
func (ix *Index) AddVectors(docs []schema.Document, vectors [][]float32) (ids []string, err error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("vectorindex: %d documents but %d vectors", len(docs), len(vectors))
	}
	ix.m.Lock()
	defer ix.m.Unlock()
	dimension := ix.dimension
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("vectorindex: vector %d is empty", i)
		}
		if dimension == 0 {
			dimension = len(v)
		}
		if len(v) != dimension {
			return nil, fmt.Errorf("vectorindex: vector %d has dimension %d, expected %d", i, len(v), dimension)
		}
	}
	ix.dimension = dimension
	ids = make([]string, len(docs))
	for i := range docs {
		ids[i] = strconv.Itoa(len(ix.docs))
		ix.docs = append(ix.docs, docs[i])
		ix.vectors = append(ix.vectors, slices.Clone(vectors[i]))
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents closest to the query. Each result's
// Score is its squared L2 distance, lower is closer.
func (ix *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := getOptions(options)
	if opts.ScoreThreshold != 0 {
		return nil, ErrScoreThreshold
	}
	var filter Filter
	if opts.Filters != nil {
		f, ok := opts.Filters.(Filter)
		if !ok {
			return nil, fmt.Errorf("vectorindex: unsupported filter type %T", opts.Filters)
		}
		filter = f
	}
	embedder, err := ix.embedderFor(opts)
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: failed to embed query: %w", err)
	}
	return ix.Search(vector, numDocuments, filter.MaxDistance)
}

type scored struct {
	index    int
	distance float32
}

// Search is an exact k-nearest-neighbour search. Ties keep insertion order.
func (ix *Index) Search(vector []float32, k int, maxDistance float32) ([]schema.Document, error) {
	if maxDistance < 0 {
		return nil, fmt.Errorf("vectorindex: maximum distance %v is negative", maxDistance)
	}
	ix.m.RLock()
	defer ix.m.RUnlock()
	if len(ix.docs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("vectorindex: query has dimension %d, expected %d", len(vector), ix.dimension)
	}
	candidates := make([]scored, len(ix.vectors))
	for i, v := range ix.vectors {
		candidates[i] = scored{index: i, distance: squaredL2(vector, v)}
	}
	slices.SortStableFunc(candidates, func(a, b scored) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		}
		return 0
	})
	results := make([]schema.Document, 0, min(k, len(candidates)))
	for _, c := range candidates {
		if len(results) == k {
			break
		}
		if maxDistance > 0 && c.distance > maxDistance {
			break
		}
		d := ix.docs[c.index]
		d.Metadata = maps.Clone(d.Metadata)
		d.Score = c.distance
		results = append(results, d)
	}
	return results, nil
}

func squaredL2(a, b []float32) (sum float32) {
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
