package source

import (
	"context"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads segment vertices from a PostgreSQL table, typically one populated from
// PostGIS with ST_DumpPoints over the delineated stream lines
type PostgresSource struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresSource connects to the database
func NewPostgresSource(ctx context.Context, connString, table string) (*PostgresSource, error) {
	query, err := vertexQuery(table)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	return &PostgresSource{pool: pool, query: query}, nil
}

// Segments reads every vertex row and groups them into segments
func (p *PostgresSource) Segments(ctx context.Context) ([]network.Segment, error) {
	rows, err := p.pool.Query(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query stream vertices: %w", err)
	}
	defer rows.Close()
	return collectVertices(rows)
}

// Close releases the connection pool
func (p *PostgresSource) Close() error {
	p.pool.Close()
	return nil
}
