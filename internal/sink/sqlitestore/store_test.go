package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func river(head network.SegmentID) *profile.Profile {
	return &profile.Profile{
		Head:     head,
		Outlet:   100,
		Segments: []network.SegmentID{head, 100},
		Points: []profile.Point{
			{X: 0, Y: 0, Distance: 0, Elevation: ptr(20), Accumulation: ptr(1), DrainageArea: ptr(25)},
			{X: 0, Y: 10, Distance: 10, Elevation: ptr(15), Accumulation: nil, DrainageArea: nil},
		},
		Summary: profile.Summary{Vertices: 2, Length: 10, Relief: 5, MeanGradient: 0.5, GradientValid: true, MissingArea: 1},
	}
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")

	s, err := Open(path, "run-1")
	require.NoError(t, err)
	require.NoError(t, s.WriteProfile(ctx, river(7)))
	require.NoError(t, s.WriteProfile(ctx, river(3)))
	// rewriting a river replaces its points
	require.NoError(t, s.WriteProfile(ctx, river(7)))
	require.NoError(t, s.Close())

	r, err := Open(path, "")
	require.NoError(t, err)
	defer r.Close()

	rivers, err := r.Rivers(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rivers, 2)
	assert.Equal(t, network.SegmentID(3), rivers[0].Head)
	assert.Equal(t, network.SegmentID(7), rivers[1].Head)
	assert.Equal(t, river(7).Summary, rivers[1].Summary)

	got, err := r.Profile(ctx, "run-1", 7)
	require.NoError(t, err)
	assert.Equal(t, river(7), got)

	_, err = r.Profile(ctx, "run-1", 99)
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := r.Rivers(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteWithoutRunID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"), "")
	require.NoError(t, err)
	defer s.Close()
	assert.Error(t, s.WriteProfile(context.Background(), river(1)))
}

func TestLatestRun(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"), "")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	older := &types.Diagnostics{RunID: "old", StartedAt: base, FinishedAt: base.Add(time.Minute), Selected: 1}
	newer := &types.Diagnostics{
		RunID: "new", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(2 * time.Hour),
		Seed: 9, Selected: 3, Extracted: 2, Cycles: 1,
		Ambiguities: []network.Ambiguity{{Segment: 5, Candidates: []network.SegmentID{6, 9}, Chosen: 6}},
		Failures:    []types.Failure{{Head: 4, Reason: types.ReasonCycle, Error: "cycle detected"}},
	}
	require.NoError(t, s.RecordRun(ctx, newer))
	require.NoError(t, s.RecordRun(ctx, older))

	got, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)
	assert.True(t, newer.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, newer.Ambiguities, got.Ambiguities)
	assert.Equal(t, newer.Failures, got.Failures)
	assert.Equal(t, 1, got.Failed())
}
