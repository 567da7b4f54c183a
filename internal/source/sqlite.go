package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	_ "modernc.org/sqlite"
)

// SQLiteSource reads segment vertices from a table in a SQLite database with the columns
// segment_id, seq, x and y
type SQLiteSource struct {
	db    *sql.DB
	query string
}

// NewSQLiteSource opens the database at path
func NewSQLiteSource(path, table string) (*SQLiteSource, error) {
	query, err := vertexQuery(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &SQLiteSource{db: db, query: query}, nil
}

// Segments reads every vertex row and groups them into segments
func (s *SQLiteSource) Segments(ctx context.Context) ([]network.Segment, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream vertices: %w", err)
	}
	defer rows.Close()
	return collectVertices(rows)
}

// Close closes the database connection
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
