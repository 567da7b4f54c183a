// Package sink defines the destinations extracted profiles are written to. Implementations
// live in the subpackages; the managers package fans profiles out to every configured sink.
package sink

import (
	"context"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
)

// Sink persists profiles. A sink is driven by a single goroutine and need not be safe for
// concurrent use.
type Sink interface {
	Name() string
	WriteProfile(ctx context.Context, p *profile.Profile) error
	Close() error
}

// RunRecorder is implemented by sinks that also persist the run diagnostics
type RunRecorder interface {
	RecordRun(ctx context.Context, d *types.Diagnostics) error
}

// RiverFileName is the per-river file name used by file and object sinks
func RiverFileName(head network.SegmentID, ext string) string {
	return fmt.Sprintf("river_%d%s", head, ext)
}
