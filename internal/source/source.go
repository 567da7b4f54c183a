// Package source loads stream segments produced by the raster-to-vector stream delineation
// step from files and databases.
package source

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/pkg/config"
)

// SegmentSource yields the raw segments of a stream network
type SegmentSource interface {
	Segments(ctx context.Context) ([]network.Segment, error)
	Close() error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// New returns the segment source described by the network configuration
func New(ctx context.Context, c config.NetworkData) (SegmentSource, error) {
	switch c.Source {
	case config.SourceGeoJSON:
		return NewGeoJSONSource(c.Path, c.IDProperty), nil
	case config.SourceSQLite:
		return NewSQLiteSource(c.Path, c.Table)
	case config.SourcePostgres:
		return NewPostgresSource(ctx, c.ConnectionString, c.Table)
	}
	return nil, fmt.Errorf("unsupported network source %q", c.Source)
}

// vertexQuery selects one row per vertex, ordered so that rows group into segments
func vertexQuery(table string) (string, error) {
	if !identifier.MatchString(table) {
		return "", fmt.Errorf("invalid vertex table name %q", table)
	}
	return "SELECT segment_id, seq, x, y FROM " + table + " ORDER BY segment_id, seq", nil
}

// vertexRows is the subset of database/sql and pgx row iteration used to read vertex tables
type vertexRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectVertices groups ordered (segment_id, seq, x, y) rows into segments
func collectVertices(rows vertexRows) ([]network.Segment, error) {
	var segments []network.Segment
	var cur *network.Segment

	for rows.Next() {
		var id, seq int64
		var x, y float64
		if err := rows.Scan(&id, &seq, &x, &y); err != nil {
			return nil, fmt.Errorf("scanning vertex row: %w", err)
		}
		if cur == nil || cur.ID != network.SegmentID(id) {
			segments = append(segments, network.Segment{ID: network.SegmentID(id)})
			cur = &segments[len(segments)-1]
		}
		cur.Vertices = append(cur.Vertices, network.Point{X: x, Y: y})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}
