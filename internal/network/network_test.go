package network

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(id SegmentID, pts ...float64) Segment {
	s := Segment{ID: id}
	for i := 0; i+1 < len(pts); i += 2 {
		s.Vertices = append(s.Vertices, Point{X: pts[i], Y: pts[i+1]})
	}
	return s
}

// chain is A(0,0 -> 1,1) -> B(1,1 -> 2,2) -> C(2,2 -> 3,3)
func chain() []Segment {
	return []Segment{
		seg(1, 0, 0, 1, 1),
		seg(2, 1, 1, 2, 2),
		seg(3, 2, 2, 3, 3),
	}
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		opts     []Option
		wantErr  error
	}{
		{name: "empty network", segments: nil, wantErr: ErrEmptyNetwork},
		{name: "single vertex", segments: []Segment{seg(1, 0, 0)}, wantErr: ErrInvalidSegment},
		{name: "nan vertex", segments: []Segment{seg(1, 0, 0, math.NaN(), 1)}, wantErr: ErrInvalidSegment},
		{name: "infinite vertex", segments: []Segment{seg(1, 0, 0, math.Inf(1), 1)}, wantErr: ErrInvalidSegment},
		{name: "duplicate id", segments: []Segment{seg(1, 0, 0, 1, 1), seg(1, 2, 2, 3, 3)}, wantErr: ErrDuplicateSegment},
		{name: "negative tolerance", segments: chain(), opts: []Option{WithSnapTolerance(-1)}, wantErr: ErrIndexBuild},
		{name: "tolerance overflow", segments: []Segment{seg(1, 1e308, 0, 1, 1)}, opts: []Option{WithSnapTolerance(1e-300)}, wantErr: ErrIndexBuild},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Ingest(tt.segments, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestIngestCopiesInput(t *testing.T) {
	in := chain()
	s, err := Ingest(in)
	require.NoError(t, err)

	in[0].Vertices[0] = Point{X: 99, Y: 99}
	got, ok := s.Segment(1)
	require.True(t, ok)
	assert.Equal(t, Point{X: 0, Y: 0}, got.Start())
}

func TestClassifyChain(t *testing.T) {
	s, err := Ingest(chain())
	require.NoError(t, err)

	assert.Equal(t, map[SegmentID]Class{
		1: ClassHead,
		2: ClassInterior,
		3: ClassOutlet,
	}, s.Classify())
	assert.Equal(t, []SegmentID{1}, s.Heads())
}

func TestClassifyIsolatedSegment(t *testing.T) {
	s, err := Ingest([]Segment{seg(7, 0, 0, 5, 5), seg(8, 10, 10, 11, 11)})
	require.NoError(t, err)

	c, ok := s.Class(7)
	require.True(t, ok)
	assert.True(t, c.IsHead())
	assert.True(t, c.IsOutlet())
	assert.Equal(t, "head+outlet", c.String())
}

func TestClassifyConfluence(t *testing.T) {
	// 1 and 2 both end at (5,5), where 3 starts
	s, err := Ingest([]Segment{
		seg(1, 0, 10, 5, 5),
		seg(2, 10, 10, 5, 5),
		seg(3, 5, 5, 5, 0),
	})
	require.NoError(t, err)

	classes := s.Classify()
	assert.Equal(t, ClassHead, classes[1])
	assert.Equal(t, ClassHead, classes[2])
	assert.Equal(t, ClassOutlet, classes[3])
}

func TestResolveChain(t *testing.T) {
	s, err := Ingest(chain())
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	next, ok := link.FlowsInto(1)
	require.True(t, ok)
	assert.Equal(t, SegmentID(2), next)
	next, ok = link.FlowsInto(2)
	require.True(t, ok)
	assert.Equal(t, SegmentID(3), next)
	_, ok = link.FlowsInto(3)
	assert.False(t, ok)
	assert.Empty(t, link.Ambiguities())
	assert.Equal(t, []Edge{{From: 1, To: 2}, {From: 2, To: 3}}, link.Edges())
}

func TestResolveConfluence(t *testing.T) {
	s, err := Ingest([]Segment{
		seg(1, 0, 10, 5, 5),
		seg(2, 10, 10, 5, 5),
		seg(3, 5, 5, 5, 0),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	for _, id := range []SegmentID{1, 2} {
		next, ok := link.FlowsInto(id)
		require.True(t, ok)
		assert.Equal(t, SegmentID(3), next)
	}
	assert.Empty(t, link.Ambiguities())
}

func TestResolveAmbiguousTieBreak(t *testing.T) {
	// 5 ends at (1,1) where both 9 and 6 start; 6 is chosen
	s, err := Ingest([]Segment{
		seg(9, 1, 1, 2, 0),
		seg(5, 0, 0, 1, 1),
		seg(6, 1, 1, 0, 2),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	next, ok := link.FlowsInto(5)
	require.True(t, ok)
	assert.Equal(t, SegmentID(6), next)
	assert.Equal(t, []Ambiguity{{Segment: 5, Candidates: []SegmentID{6, 9}, Chosen: 6}}, link.Ambiguities())
}

func TestResolveIgnoresSelfLoop(t *testing.T) {
	s, err := Ingest([]Segment{seg(1, 0, 0, 1, 0, 0, 0)})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	_, ok := link.FlowsInto(1)
	assert.False(t, ok)
	c, _ := s.Class(1)
	assert.Equal(t, ClassHead|ClassOutlet, c)
}

func TestResolvedLinksAreCoincident(t *testing.T) {
	s, err := Ingest([]Segment{
		seg(1, 0, 10, 5, 5),
		seg(2, 10, 10, 5, 5),
		seg(3, 5, 5, 5, 0),
		seg(4, 5, 0, 6, -1),
		seg(5, 20, 20, 21, 21),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	for _, e := range link.Edges() {
		from, _ := s.Segment(e.From)
		to, _ := s.Segment(e.To)
		assert.Equal(t, from.End(), to.Start(), "edge %d -> %d", e.From, e.To)
	}
	for _, h := range s.Heads() {
		head, _ := s.Segment(h)
		for _, other := range s.Segments() {
			if other.ID != h {
				assert.NotEqual(t, head.Start(), other.End(), "head %d fed by %d", h, other.ID)
			}
		}
	}
}

func TestExactMatchingDoesNotTolerateDrift(t *testing.T) {
	segments := []Segment{
		seg(1, 0, 0, 1, 1),
		seg(2, 1.0000001, 1, 2, 2),
	}

	exact, err := Ingest(segments)
	require.NoError(t, err)
	link, err := Resolve(exact)
	require.NoError(t, err)
	_, ok := link.FlowsInto(1)
	assert.False(t, ok)

	snapped, err := Ingest(segments, WithSnapTolerance(0.001))
	require.NoError(t, err)
	link, err = Resolve(snapped)
	require.NoError(t, err)
	next, ok := link.FlowsInto(1)
	require.True(t, ok)
	assert.Equal(t, SegmentID(2), next)
}

func TestSignedZeroCoincides(t *testing.T) {
	s, err := Ingest([]Segment{
		seg(1, 5, 5, math.Copysign(0, -1), 0),
		seg(2, 0, 0, 1, 1),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)
	next, ok := link.FlowsInto(1)
	require.True(t, ok)
	assert.Equal(t, SegmentID(2), next)
}

func TestReconstructChain(t *testing.T) {
	s, err := Ingest(chain())
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	path, err := Reconstruct(1, link)
	require.NoError(t, err)
	assert.Equal(t, []SegmentID{1, 2, 3}, path.IDs())
	assert.Equal(t, SegmentID(3), path.Outlet())
}

func TestReconstructIsolated(t *testing.T) {
	s, err := Ingest([]Segment{seg(4, 0, 0, 1, 1)})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	path, err := Reconstruct(4, link)
	require.NoError(t, err)
	assert.Equal(t, []SegmentID{4}, path.IDs())
}

func TestReconstructDetectsCycle(t *testing.T) {
	// head 1 drains into a loop 2 -> 3 -> 2
	s, err := Ingest([]Segment{
		seg(1, 5, 5, 0, 0),
		seg(2, 0, 0, 1, 1),
		seg(3, 1, 1, 0, 0),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)
	require.Equal(t, []SegmentID{1}, s.Heads())

	_, err = Reconstruct(1, link)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, SegmentID(1), cycle.Head)
	assert.Equal(t, SegmentID(2), cycle.Segment)
	assert.Equal(t, 3, cycle.Steps)
}

func TestReconstructUnknownHead(t *testing.T) {
	s, err := Ingest(chain())
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	_, err = Reconstruct(42, link)
	assert.True(t, errors.Is(err, ErrUnknownSegment))
}

func TestReconstructNeverRepeats(t *testing.T) {
	// a binary tree of confluences draining to one outlet
	s, err := Ingest([]Segment{
		seg(1, 0, 4, 1, 3),
		seg(2, 2, 4, 1, 3),
		seg(3, 4, 4, 3, 3),
		seg(4, 6, 4, 3, 3),
		seg(5, 1, 3, 2, 2),
		seg(6, 3, 3, 2, 2),
		seg(7, 2, 2, 2, 0),
	})
	require.NoError(t, err)
	link, err := Resolve(s)
	require.NoError(t, err)

	for _, h := range s.Heads() {
		path, err := Reconstruct(h, link)
		require.NoError(t, err)
		seen := map[SegmentID]bool{}
		for _, id := range path.IDs() {
			assert.False(t, seen[id], "segment %d repeated from head %d", id, h)
			seen[id] = true
		}
		assert.Equal(t, SegmentID(7), path.Outlet())
		assert.Len(t, path.Segments, 3)
	}
}
