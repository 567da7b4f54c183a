package network

import (
	"fmt"
	"math"
	"slices"
)

// coordKey is the map key used for coincidence tests. With no snap tolerance it holds the raw
// coordinates, so two points coincide only when both components are equal under IEEE-754
// (+0 and -0 compare equal, NaN never does).
type coordKey struct {
	x, y float64
}

type coordIndex map[coordKey][]int

// Store holds the ingested segments for the lifetime of a run. It is immutable after Ingest
// returns and safe for concurrent readers.
type Store struct {
	segments []Segment
	pos      map[SegmentID]int
	class    []Class
	starts   coordIndex
	ends     coordIndex
	snap     float64
}

// Option configures Ingest
type Option func(*Store)

// WithSnapTolerance makes coordinates coincide when they fall in the same cell of a grid with
// the given spacing. Zero keeps exact matching. Points straddling a grid line will not match
// even when closer than the tolerance.
func WithSnapTolerance(tolerance float64) Option {
	return func(s *Store) {
		s.snap = tolerance
	}
}

// Ingest validates and copies segments into a new Store, builds its coordinate indexes and
// classifies every segment as head, interior or outlet.
func Ingest(segments []Segment, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.snap < 0 || math.IsNaN(s.snap) || math.IsInf(s.snap, 0) {
		return nil, fmt.Errorf("%w: snap tolerance must be a finite value >= 0, got %v", ErrIndexBuild, s.snap)
	}

	if len(segments) == 0 {
		return nil, ErrEmptyNetwork
	}
	if uint64(len(segments)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d segments exceeds index capacity", ErrIndexBuild, len(segments))
	}

	s.segments = make([]Segment, 0, len(segments))
	s.pos = make(map[SegmentID]int, len(segments))
	for _, seg := range segments {
		if len(seg.Vertices) < 2 {
			return nil, fmt.Errorf("%w: segment %d has %d vertices", ErrInvalidSegment, seg.ID, len(seg.Vertices))
		}
		for _, v := range seg.Vertices {
			if !v.finite() {
				return nil, fmt.Errorf("%w: segment %d has non-finite vertex %v", ErrInvalidSegment, seg.ID, v)
			}
		}
		if _, dup := s.pos[seg.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSegment, seg.ID)
		}
		s.pos[seg.ID] = -1
		s.segments = append(s.segments, Segment{ID: seg.ID, Vertices: slices.Clone(seg.Vertices)})
	}

	slices.SortFunc(s.segments, func(a, b Segment) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i, seg := range s.segments {
		s.pos[seg.ID] = i
	}

	if err := s.buildIndexes(); err != nil {
		return nil, err
	}
	s.classify()

	return s, nil
}

func (s *Store) key(p Point) (coordKey, error) {
	if s.snap == 0 {
		return coordKey{p.X, p.Y}, nil
	}
	k := coordKey{math.Round(p.X / s.snap), math.Round(p.Y / s.snap)}
	if math.IsInf(k.x, 0) || math.IsInf(k.y, 0) {
		return coordKey{}, fmt.Errorf("%w: %v overflows snap grid %v", ErrIndexBuild, p, s.snap)
	}
	return k, nil
}

// Coincident reports whether two points are the same location under the store's matching rule
func (s *Store) Coincident(a, b Point) bool {
	ka, errA := s.key(a)
	kb, errB := s.key(b)
	return errA == nil && errB == nil && ka == kb
}

// buildIndexes keys every segment position by its start and end point. Positions are appended
// in id order, so every bucket is sorted by segment id.
func (s *Store) buildIndexes() error {
	s.starts = make(coordIndex, len(s.segments))
	s.ends = make(coordIndex, len(s.segments))
	for i, seg := range s.segments {
		ks, err := s.key(seg.Start())
		if err != nil {
			return err
		}
		ke, err := s.key(seg.End())
		if err != nil {
			return err
		}
		s.starts[ks] = append(s.starts[ks], i)
		s.ends[ke] = append(s.ends[ke], i)
	}
	return nil
}

// matches returns the positions in idx whose point coincides with p, excluding self
func (s *Store) matches(idx coordIndex, p Point, self int) []int {
	k, err := s.key(p)
	if err != nil {
		return nil
	}
	var out []int
	for _, i := range idx[k] {
		if i != self {
			out = append(out, i)
		}
	}
	return out
}

func (s *Store) classify() {
	s.class = make([]Class, len(s.segments))
	for i, seg := range s.segments {
		var c Class
		if len(s.matches(s.ends, seg.Start(), i)) == 0 {
			c |= ClassHead
		}
		if len(s.matches(s.starts, seg.End(), i)) == 0 {
			c |= ClassOutlet
		}
		if c == ClassUnknown {
			c = ClassInterior
		}
		s.class[i] = c
	}
}

// Classify returns the classification of every segment, keyed by id
func (s *Store) Classify() map[SegmentID]Class {
	out := make(map[SegmentID]Class, len(s.segments))
	for i, seg := range s.segments {
		out[seg.ID] = s.class[i]
	}
	return out
}

// Class returns the classification of one segment
func (s *Store) Class(id SegmentID) (Class, bool) {
	i, ok := s.pos[id]
	if !ok {
		return ClassUnknown, false
	}
	return s.class[i], true
}

// Segment returns the segment with the given id. The vertex slice is shared with the store
// and must not be modified.
func (s *Store) Segment(id SegmentID) (Segment, bool) {
	i, ok := s.pos[id]
	if !ok {
		return Segment{}, false
	}
	return s.segments[i], true
}

// Segments returns all segments ordered by id. Vertex slices are shared with the store.
func (s *Store) Segments() []Segment {
	return slices.Clone(s.segments)
}

// Heads returns the ids of all head segments in ascending order
func (s *Store) Heads() []SegmentID {
	var heads []SegmentID
	for i, seg := range s.segments {
		if s.class[i].IsHead() {
			heads = append(heads, seg.ID)
		}
	}
	return heads
}

// Len returns the number of segments in the store
func (s *Store) Len() int {
	return len(s.segments)
}

// SnapTolerance returns the grid spacing used for coincidence tests, zero for exact matching
func (s *Store) SnapTolerance() float64 {
	return s.snap
}
