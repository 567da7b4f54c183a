package graphexport

import (
	"context"
	"errors"
	"testing"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	cypher string
	params map[string]any
}

type fakeWriter struct {
	calls  []call
	failOn string
}

func (f *fakeWriter) ExecuteWrite(_ context.Context, cypher string, params map[string]any) error {
	if f.failOn != "" && cypher == f.failOn {
		return errors.New("bolt connection reset")
	}
	f.calls = append(f.calls, call{cypher: cypher, params: params})
	return nil
}

func (f *fakeWriter) Close(context.Context) error { return nil }

func resolved(t *testing.T, segs ...network.Segment) *network.FlowLink {
	t.Helper()
	store, err := network.Ingest(segs)
	require.NoError(t, err)
	link, err := network.Resolve(store)
	require.NoError(t, err)
	return link
}

func line(id network.SegmentID, x0, y0, x1, y1 float64) network.Segment {
	return network.Segment{ID: id, Vertices: []network.Point{{X: x0, Y: y0}, {X: x1, Y: y1}}}
}

func TestExport(t *testing.T) {
	link := resolved(t,
		line(1, 0, 0, 1, 1),
		line(2, 1, 1, 2, 2),
		line(3, 1, 1, 1, 2),
	)

	fw := &fakeWriter{}
	e := &Exporter{w: fw}
	require.NoError(t, e.Export(context.Background(), link, "run-9"))

	require.Len(t, fw.calls, 3)
	assert.Equal(t, constraintCypher, fw.calls[0].cypher)

	segs := fw.calls[1].params["rows"].([]any)
	require.Len(t, segs, 3)
	assert.Equal(t, "run-9", fw.calls[1].params["run"])
	first := segs[0].(map[string]any)
	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, "head", first["class"])
	assert.Equal(t, 1.0, first["end_x"])

	edges := fw.calls[2].params["rows"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, map[string]any{"from": int64(1), "to": int64(2), "ambiguous": true}, edges[0])
}

func TestExportScopesNodesByRun(t *testing.T) {
	fw := &fakeWriter{}
	e := &Exporter{w: fw}
	require.NoError(t, e.Export(context.Background(), resolved(t, line(1, 0, 0, 1, 1), line(2, 1, 1, 2, 2)), "run-a"))
	require.NoError(t, e.Export(context.Background(), resolved(t, line(1, 0, 0, 1, 1), line(2, 5, 5, 6, 6)), "run-b"))

	var edgeRuns []any
	for _, c := range fw.calls {
		switch c.cypher {
		case segmentCypher:
			assert.Contains(t, c.cypher, "{run: $run, id: row.id}")
		case edgeCypher:
			assert.Contains(t, c.cypher, "(a:Segment {run: $run, id: row.from})")
			edgeRuns = append(edgeRuns, c.params["run"])
		}
	}
	// the second network has no links, so nothing from run-a is matched under run-b
	assert.Equal(t, []any{"run-a"}, edgeRuns)
}

func TestExportBatches(t *testing.T) {
	var segs []network.Segment
	for i := 0; i < batchSize+5; i++ {
		x := float64(i)
		segs = append(segs, line(network.SegmentID(i+1), x, 0, x+1, 0))
	}
	fw := &fakeWriter{}
	require.NoError(t, (&Exporter{w: fw}).Export(context.Background(), resolved(t, segs...), "r"))

	var segmentBatches, edgeBatches []int
	for _, c := range fw.calls {
		switch c.cypher {
		case segmentCypher:
			segmentBatches = append(segmentBatches, len(c.params["rows"].([]any)))
		case edgeCypher:
			edgeBatches = append(edgeBatches, len(c.params["rows"].([]any)))
		}
	}
	assert.Equal(t, []int{batchSize, 5}, segmentBatches)
	assert.Equal(t, []int{batchSize, 4}, edgeBatches)
}

func TestExportError(t *testing.T) {
	fw := &fakeWriter{failOn: edgeCypher}
	err := (&Exporter{w: fw}).Export(context.Background(), resolved(t, line(1, 0, 0, 1, 1), line(2, 1, 1, 2, 2)), "r")
	assert.ErrorContains(t, err, "writing flow links")
}

func TestNewRequiresURI(t *testing.T) {
	_, err := New(context.Background(), &config.Neo4jData{})
	assert.ErrorIs(t, err, ErrMissingURI)
}
