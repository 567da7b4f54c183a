package network

import (
	"errors"
	"fmt"
)

const noLink = -1

// Ambiguity records a segment whose end point coincides with the start point of more than one
// other segment. The lowest candidate id is taken as the downstream link.
type Ambiguity struct {
	Segment    SegmentID   `json:"segment" msgpack:"segment"`
	Candidates []SegmentID `json:"candidates" msgpack:"candidates"`
	Chosen     SegmentID   `json:"chosen" msgpack:"chosen"`
}

// Edge is a resolved flows-into relation
type Edge struct {
	From SegmentID
	To   SegmentID
}

// FlowLink is the resolved flows-into relation over a Store. Like the store it is read-only
// once built and may be shared between goroutines.
type FlowLink struct {
	store       *Store
	next        []int
	ambiguities []Ambiguity
}

// Resolve links every segment to the segment it flows into by probing the store's index of
// start points with each segment's end point. Ambiguous junctions never fail resolution; they
// are tie-broken by lowest id and reported through Ambiguities.
func Resolve(store *Store) (*FlowLink, error) {
	if store == nil {
		return nil, errors.New("resolve: nil store")
	}
	if store.Len() == 0 {
		return nil, ErrEmptyNetwork
	}
	if store.starts == nil {
		return nil, fmt.Errorf("resolve: %w: store has no start point index", ErrIndexBuild)
	}

	f := &FlowLink{
		store: store,
		next:  make([]int, store.Len()),
	}

	for i, seg := range store.segments {
		candidates := store.matches(store.starts, seg.End(), i)
		switch len(candidates) {
		case 0:
			f.next[i] = noLink
		case 1:
			f.next[i] = candidates[0]
		default:
			// buckets are filled in id order, so the first candidate has the lowest id
			f.next[i] = candidates[0]
			a := Ambiguity{
				Segment:    seg.ID,
				Candidates: make([]SegmentID, len(candidates)),
				Chosen:     store.segments[candidates[0]].ID,
			}
			for j, c := range candidates {
				a.Candidates[j] = store.segments[c].ID
			}
			f.ambiguities = append(f.ambiguities, a)
		}
	}

	return f, nil
}

// Store returns the store the relation was resolved over
func (f *FlowLink) Store() *Store {
	return f.store
}

// FlowsInto returns the downstream segment of id. ok is false for outlets and unknown ids.
func (f *FlowLink) FlowsInto(id SegmentID) (SegmentID, bool) {
	i, ok := f.store.pos[id]
	if !ok || f.next[i] == noLink {
		return 0, false
	}
	return f.store.segments[f.next[i]].ID, true
}

// Ambiguities returns every junction resolved by tie-break, ordered by segment id
func (f *FlowLink) Ambiguities() []Ambiguity {
	out := make([]Ambiguity, len(f.ambiguities))
	copy(out, f.ambiguities)
	return out
}

// Edges returns all resolved links ordered by upstream segment id
func (f *FlowLink) Edges() []Edge {
	edges := make([]Edge, 0, len(f.next))
	for i, n := range f.next {
		if n == noLink {
			continue
		}
		edges = append(edges, Edge{From: f.store.segments[i].ID, To: f.store.segments[n].ID})
	}
	return edges
}
