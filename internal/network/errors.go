package network

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyNetwork is returned when ingestion yields no segments. Nothing downstream can run.
	ErrEmptyNetwork = errors.New("stream network contains no segments")
	// ErrIndexBuild is returned when the coordinate index over segment end points cannot be built
	ErrIndexBuild = errors.New("unable to build coordinate index")
	// ErrInvalidSegment is returned for segments with fewer than two vertices or non-finite coordinates
	ErrInvalidSegment = errors.New("invalid segment")
	// ErrDuplicateSegment is returned when two segments share an identifier
	ErrDuplicateSegment = errors.New("duplicate segment identifier")
	// ErrUnknownSegment is returned when a segment id is not present in the store
	ErrUnknownSegment = errors.New("unknown segment")
	// ErrCycleDetected matches any *CycleError
	ErrCycleDetected = errors.New("cycle detected in flow topology")
)

// CycleError reports a path walk that came back to a segment it had already visited
type CycleError struct {
	Head    SegmentID
	Segment SegmentID
	Steps   int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected walking from head %d: segment %d revisited after %d steps", e.Head, e.Segment, e.Steps)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
