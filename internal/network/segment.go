// Package network holds the stream segment store and the topology built on top of it:
// flow links between segments, head selection and downstream path reconstruction.
package network

import (
	"fmt"
	"math"
)

// SegmentID identifies a stream segment as emitted by the upstream vectorisation step
type SegmentID int64

// Point is a vertex in the projected coordinate system shared by all segments and rasters
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Distance returns the Euclidean distance between two points
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Segment is one directed piece of the stream network. Vertices run downstream.
type Segment struct {
	ID       SegmentID
	Vertices []Point
}

// Start returns the upstream end point of the segment
func (s Segment) Start() Point {
	return s.Vertices[0]
}

// End returns the downstream end point of the segment
func (s Segment) End() Point {
	return s.Vertices[len(s.Vertices)-1]
}

// Class describes where a segment sits in the network. A segment that nothing flows into and
// that flows into nothing carries both ClassHead and ClassOutlet.
type Class uint8

const (
	ClassUnknown  Class = 0
	ClassInterior Class = 1 << 0
	ClassHead     Class = 1 << 1
	ClassOutlet   Class = 1 << 2
)

// IsHead reports whether no other segment flows into this one
func (c Class) IsHead() bool { return c&ClassHead != 0 }

// IsOutlet reports whether this segment flows into nothing within the network extent
func (c Class) IsOutlet() bool { return c&ClassOutlet != 0 }

func (c Class) String() string {
	switch {
	case c.IsHead() && c.IsOutlet():
		return "head+outlet"
	case c.IsHead():
		return "head"
	case c.IsOutlet():
		return "outlet"
	case c == ClassInterior:
		return "interior"
	}
	return "unknown"
}
