// Package vecindex provides per-user exact nearest-neighbour search over
// embedding vectors, persisted as a single versioned file per user so the
// vectors and their chunk-id mapping can never diverge.
package vecindex

import (
	"fmt"
	"sort"
)

// Hit is a single search result: the slot of the matched vector and its
// squared Euclidean distance from the query.
type Hit struct {
	Slot     int
	Distance float32
}

// flat is an in-memory exact-L2 index. Slots are assigned in insertion
// order and are dense: slot i is the i-th vector ever added.
type flat struct {
	dim     int
	vectors [][]float32
}

func newFlat(dim int) *flat {
	return &flat{dim: dim}
}

// add appends vectors and returns the slot of the first one. Every vector
// must match the index dimension.
func (f *flat) add(vectors [][]float32) (int, error) {
	for i, vec := range vectors {
		if len(vec) != f.dim {
			return 0, fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(vec), f.dim)
		}
	}
	first := len(f.vectors)
	f.vectors = append(f.vectors, vectors...)
	return first, nil
}

// search returns up to k hits ordered by ascending squared L2 distance,
// ties broken by ascending slot.
func (f *flat) search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), f.dim)
	}
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.vectors))
	for slot, vec := range f.vectors {
		hits[slot] = Hit{Slot: slot, Distance: squaredL2(query, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Slot < hits[j].Slot
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (f *flat) size() int {
	return len(f.vectors)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
