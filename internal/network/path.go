package network

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// RiverPath is the ordered chain of segments from a head down to its outlet
type RiverPath struct {
	Head     SegmentID
	Segments []Segment
}

// IDs returns the segment ids along the path
func (p RiverPath) IDs() []SegmentID {
	ids := make([]SegmentID, len(p.Segments))
	for i, s := range p.Segments {
		ids[i] = s.ID
	}
	return ids
}

// Outlet returns the last segment id on the path
func (p RiverPath) Outlet() SegmentID {
	return p.Segments[len(p.Segments)-1].ID
}

// Reconstruct walks the flow links from head until an outlet is reached. The walk is iterative
// and tracks visited segments, so malformed topology yields a *CycleError instead of looping.
func Reconstruct(head SegmentID, link *FlowLink) (RiverPath, error) {
	s := link.store
	i, ok := s.pos[head]
	if !ok {
		return RiverPath{}, fmt.Errorf("%w: %d", ErrUnknownSegment, head)
	}

	path := RiverPath{Head: head}
	visited := roaring.New()

	for i != noLink {
		if !visited.CheckedAdd(uint32(i)) {
			return RiverPath{}, &CycleError{Head: head, Segment: s.segments[i].ID, Steps: len(path.Segments)}
		}
		path.Segments = append(path.Segments, s.segments[i])
		i = link.next[i]
	}

	return path, nil
}
