// Package sqlitestore persists profiles and run diagnostics in a SQLite database and reads
// them back for the profile server.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run or river is not in the store
var ErrNotFound = errors.New("not found")

// fixed width so that timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	seed INTEGER NOT NULL,
	selected INTEGER NOT NULL,
	extracted INTEGER NOT NULL,
	diagnostics TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	run_id TEXT NOT NULL,
	head INTEGER NOT NULL,
	outlet INTEGER NOT NULL,
	segments TEXT NOT NULL,
	vertices INTEGER NOT NULL,
	length REAL NOT NULL,
	relief REAL NOT NULL,
	mean_gradient REAL NOT NULL,
	gradient_valid INTEGER NOT NULL,
	missing_elevation INTEGER NOT NULL,
	missing_area INTEGER NOT NULL,
	PRIMARY KEY (run_id, head)
);

CREATE TABLE IF NOT EXISTS profile_points (
	run_id TEXT NOT NULL,
	head INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	distance REAL NOT NULL,
	elevation REAL,
	accumulation REAL,
	drainage_area REAL,
	PRIMARY KEY (run_id, head, seq)
);
`

// Store is both a profile sink for one run and a reader over every run in the database
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the database at path. runID tags profiles written through the store
// and may be empty for read-only use.
func Open(path, runID string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create profile schema: %w", err)
	}
	return &Store{db: db, runID: runID}, nil
}

func (s *Store) Name() string { return "sqlite" }

// WriteProfile stores the profile and its points in one transaction, replacing any earlier
// copy of the same river in the same run
func (s *Store) WriteProfile(ctx context.Context, p *profile.Profile) error {
	if s.runID == "" {
		return errors.New("sqlite store opened without a run id")
	}
	segments, err := json.Marshal(p.Segments)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_points WHERE run_id = ? AND head = ?`, s.runID, int64(p.Head)); err != nil {
		return err
	}
	sm := p.Summary
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO profiles
		(run_id, head, outlet, segments, vertices, length, relief, mean_gradient, gradient_valid, missing_elevation, missing_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, int64(p.Head), int64(p.Outlet), string(segments), sm.Vertices, sm.Length, sm.Relief,
		sm.MeanGradient, sm.GradientValid, sm.MissingElevation, sm.MissingArea); err != nil {
		return fmt.Errorf("inserting profile %d: %w", p.Head, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO profile_points
		(run_id, head, seq, x, y, distance, elevation, accumulation, drainage_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, pt := range p.Points {
		if _, err := stmt.ExecContext(ctx, s.runID, int64(p.Head), i, pt.X, pt.Y, pt.Distance,
			nullable(pt.Elevation), nullable(pt.Accumulation), nullable(pt.DrainageArea)); err != nil {
			return fmt.Errorf("inserting point %d of profile %d: %w", i, p.Head, err)
		}
	}
	return tx.Commit()
}

// RecordRun stores the run diagnostics
func (s *Store) RecordRun(ctx context.Context, d *types.Diagnostics) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, started_at, finished_at, seed, selected, extracted, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.StartedAt.UTC().Format(timeLayout), d.FinishedAt.UTC().Format(timeLayout),
		d.Seed, d.Selected, d.Extracted, string(data))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LatestRun returns the diagnostics of the most recently finished run
func (s *Store) LatestRun(ctx context.Context) (*types.Diagnostics, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT diagnostics FROM runs ORDER BY finished_at DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d types.Diagnostics
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("decoding run diagnostics: %w", err)
	}
	return &d, nil
}

// River is the stored summary of one profile
type River struct {
	RunID   string            `json:"run_id"`
	Head    network.SegmentID `json:"head"`
	Outlet  network.SegmentID `json:"outlet"`
	Summary profile.Summary   `json:"summary"`
}

// Rivers lists the profiles of a run ordered by head
func (s *Store) Rivers(ctx context.Context, runID string) ([]River, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT head, outlet, vertices, length, relief, mean_gradient,
		gradient_valid, missing_elevation, missing_area FROM profiles WHERE run_id = ? ORDER BY head`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rivers := []River{}
	for rows.Next() {
		r := River{RunID: runID}
		var head, outlet int64
		sm := &r.Summary
		if err := rows.Scan(&head, &outlet, &sm.Vertices, &sm.Length, &sm.Relief, &sm.MeanGradient,
			&sm.GradientValid, &sm.MissingElevation, &sm.MissingArea); err != nil {
			return nil, err
		}
		r.Head, r.Outlet = network.SegmentID(head), network.SegmentID(outlet)
		rivers = append(rivers, r)
	}
	return rivers, rows.Err()
}

// Profile loads one river's full profile
func (s *Store) Profile(ctx context.Context, runID string, head network.SegmentID) (*profile.Profile, error) {
	p := &profile.Profile{Head: head}
	var outlet int64
	var segments string
	sm := &p.Summary
	err := s.db.QueryRowContext(ctx, `SELECT outlet, segments, vertices, length, relief, mean_gradient,
		gradient_valid, missing_elevation, missing_area FROM profiles WHERE run_id = ? AND head = ?`, runID, int64(head)).
		Scan(&outlet, &segments, &sm.Vertices, &sm.Length, &sm.Relief, &sm.MeanGradient,
			&sm.GradientValid, &sm.MissingElevation, &sm.MissingArea)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Outlet = network.SegmentID(outlet)
	if err := json.Unmarshal([]byte(segments), &p.Segments); err != nil {
		return nil, fmt.Errorf("decoding segments of profile %d: %w", head, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT x, y, distance, elevation, accumulation, drainage_area
		FROM profile_points WHERE run_id = ? AND head = ? ORDER BY seq`, runID, int64(head))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.Points = []profile.Point{}
	for rows.Next() {
		var pt profile.Point
		var elev, acc, area sql.NullFloat64
		if err := rows.Scan(&pt.X, &pt.Y, &pt.Distance, &elev, &acc, &area); err != nil {
			return nil, err
		}
		pt.Elevation, pt.Accumulation, pt.DrainageArea = fromNull(elev), fromNull(acc), fromNull(area)
		p.Points = append(p.Points, pt)
	}
	return p, rows.Err()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
