package imaging

import (
	"context"
	"image"
	"sort"

	"github.com/google/uuid"
)

// IndexEntry is one searchable descriptor with its owning product and image.
type IndexEntry struct {
	ProductID  uuid.UUID
	ImageID    uuid.UUID
	Descriptor string
}

// Match is one search result. Distance is the Hamming distance to the query;
// Similarity rescales it to [0,1] where 1 means identical.
type Match struct {
	IndexEntry
	Distance   int
	Similarity float64
}

// Engine ranks indexed descriptors against a query image.
type Engine struct {
	hasher Hasher
}

// NewEngine builds a search engine over the given hasher.
func NewEngine(hasher Hasher) *Engine {
	if hasher == nil {
		hasher = NewPerceptualHasher()
	}
	return &Engine{hasher: hasher}
}

// Hasher exposes the engine's descriptor implementation so the indexing side
// of the pipeline produces comparable descriptors.
func (e *Engine) Hasher() Hasher {
	return e.hasher
}

// Search hashes the query image and returns every entry within threshold,
// nearest first, capped at maxResults (0 means unlimited). A query image
// identical to an indexed one always matches itself with distance 0. An
// empty result is not an error.
func (e *Engine) Search(ctx context.Context, query image.Image, entries []IndexEntry, threshold, maxResults int) ([]Match, error) {
	qd, err := e.hasher.Compute(query)
	if err != nil {
		return nil, err
	}
	return e.SearchByDescriptor(ctx, qd, entries, threshold, maxResults)
}

// SearchByDescriptor ranks entries against an already-computed descriptor.
func (e *Engine) SearchByDescriptor(ctx context.Context, descriptor string, entries []IndexEntry, threshold, maxResults int) ([]Match, error) {
	if threshold < 0 || threshold > DescriptorBits {
		threshold = DescriptorBits
	}

	matches := make([]Match, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := e.hasher.Distance(descriptor, entry.Descriptor)
		if err != nil {
			// A corrupt stored descriptor must not sink the whole query.
			continue
		}
		if d > threshold {
			continue
		}
		matches = append(matches, Match{
			IndexEntry: entry,
			Distance:   d,
			Similarity: 1 - float64(d)/float64(DescriptorBits),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}
