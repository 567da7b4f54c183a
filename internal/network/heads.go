package network

import (
	"math/rand/v2"
)

// SelectHeads chooses the head segments to extract. With limit <= 0 every head is returned in
// ascending id order. Otherwise a uniform sample of min(limit, heads) is drawn without
// replacement; the same seed always yields the same sample in the same order.
func SelectHeads(store *Store, limit int, seed int64) []SegmentID {
	heads := store.Heads()
	if limit <= 0 || len(heads) == 0 {
		return heads
	}

	n := min(limit, len(heads))
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))

	// partial Fisher-Yates over a sorted copy
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(heads)-i)
		heads[i], heads[j] = heads[j], heads[i]
	}
	return heads[:n:n]
}
