// Package graphexport writes a resolved stream network to Neo4j as Segment nodes joined by
// FLOWS_INTO relationships, for inspecting topology problems with Cypher.
package graphexport

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrMissingURI is returned when no Bolt URI is configured
var ErrMissingURI = errors.New("graph export: neo4j uri is required")

const batchSize = 1000

// Nodes are keyed by (run, id) so that runs over different networks never share edges.
const (
	constraintCypher = `CREATE CONSTRAINT segment_run_id IF NOT EXISTS FOR (s:Segment) REQUIRE (s.run, s.id) IS UNIQUE`

	segmentCypher = `UNWIND $rows AS row
MERGE (s:Segment {run: $run, id: row.id})
SET s.class = row.class, s.start_x = row.start_x, s.start_y = row.start_y,
    s.end_x = row.end_x, s.end_y = row.end_y, s.vertices = row.vertices`

	edgeCypher = `UNWIND $rows AS row
MATCH (a:Segment {run: $run, id: row.from}), (b:Segment {run: $run, id: row.to})
MERGE (a)-[r:FLOWS_INTO]->(b)
SET r.ambiguous = row.ambiguous`
)

// writer runs a write query
type writer interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error
	Close(ctx context.Context) error
}

// Exporter writes networks to a graph database
type Exporter struct {
	w writer
}

// New connects to Neo4j and verifies connectivity
func New(ctx context.Context, c *config.Neo4jData) (*Exporter, error) {
	if c.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if c.Username != "" {
		auth = neo4j.BasicAuth(c.Username, c.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(c.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}
	return &Exporter{w: &neo4jWriter{driver: driver, database: c.Database}}, nil
}

// Close releases the driver
func (e *Exporter) Close(ctx context.Context) error {
	return e.w.Close(ctx)
}

// Export merges every segment and resolved link of the network, tagged with the run id
func (e *Exporter) Export(ctx context.Context, link *network.FlowLink, runID string) error {
	if err := e.w.ExecuteWrite(ctx, constraintCypher, nil); err != nil {
		return fmt.Errorf("creating segment constraint: %w", err)
	}

	segments, edges := rows(link)
	for batch := range chunks(segments, batchSize) {
		if err := e.w.ExecuteWrite(ctx, segmentCypher, map[string]any{"rows": batch, "run": runID}); err != nil {
			return fmt.Errorf("writing segments: %w", err)
		}
	}
	for batch := range chunks(edges, batchSize) {
		if err := e.w.ExecuteWrite(ctx, edgeCypher, map[string]any{"rows": batch, "run": runID}); err != nil {
			return fmt.Errorf("writing flow links: %w", err)
		}
	}
	return nil
}

func rows(link *network.FlowLink) (segments, edges []any) {
	store := link.Store()
	for _, s := range store.Segments() {
		class, _ := store.Class(s.ID)
		start, end := s.Start(), s.End()
		segments = append(segments, map[string]any{
			"id":       int64(s.ID),
			"class":    class.String(),
			"start_x":  start.X,
			"start_y":  start.Y,
			"end_x":    end.X,
			"end_y":    end.Y,
			"vertices": int64(len(s.Vertices)),
		})
	}

	ambiguous := make(map[network.SegmentID]bool)
	for _, a := range link.Ambiguities() {
		ambiguous[a.Segment] = true
	}
	for _, edge := range link.Edges() {
		edges = append(edges, map[string]any{
			"from":      int64(edge.From),
			"to":        int64(edge.To),
			"ambiguous": ambiguous[edge.From],
		})
	}
	return segments, edges
}

// chunks yields consecutive slices of at most n rows
func chunks(rows []any, n int) func(yield func([]any) bool) {
	return func(yield func([]any) bool) {
		for len(rows) > 0 {
			k := min(n, len(rows))
			if !yield(rows[:k]) {
				return
			}
			rows = rows[k:]
		}
	}
}

type neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
}

func (w *neo4jWriter) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: w.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (w *neo4jWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}
