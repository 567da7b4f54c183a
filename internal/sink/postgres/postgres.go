// Package postgres stores profiles in PostgreSQL through gorm.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
	"go.uber.org/zap"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunRecord is one extraction run
type RunRecord struct {
	RunID       string `gorm:"primaryKey"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Seed        int64
	Selected    int
	Extracted   int
	Diagnostics string `gorm:"type:jsonb"`
}

func (RunRecord) TableName() string { return "river_runs" }

// ProfileRecord is one river of a run
type ProfileRecord struct {
	ID               uint   `gorm:"primaryKey"`
	RunID            string `gorm:"index:idx_profile_run_head,unique"`
	Head             int64  `gorm:"index:idx_profile_run_head,unique"`
	Outlet           int64
	Segments         string `gorm:"type:jsonb"`
	Vertices         int
	Length           float64
	Relief           float64
	MeanGradient     float64
	GradientValid    bool
	MissingElevation int
	MissingArea      int
	Points           []PointRecord `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

func (ProfileRecord) TableName() string { return "river_profiles" }

// PointRecord is one vertex of a profile
type PointRecord struct {
	ID           uint `gorm:"primaryKey"`
	ProfileID    uint `gorm:"index"`
	Seq          int
	X            float64
	Y            float64
	Distance     float64
	Elevation    *float64
	Accumulation *float64
	DrainageArea *float64
}

func (PointRecord) TableName() string { return "river_profile_points" }

// Sink writes profiles of one run to PostgreSQL
type Sink struct {
	db    *gorm.DB
	runID string
}

// New connects and migrates the profile tables
func New(ctx context.Context, connString, runID string, zl *zap.Logger) (*Sink, error) {
	dbLogger := logger.New(
		zap.NewStdLog(zl),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(gormpg.Open(connString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Sink{db: db, runID: runID}, nil
}

// migrate creates the profile tables, closing the connection pool if that fails
func migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(&RunRecord{}, &ProfileRecord{}, &PointRecord{})
	if err == nil {
		return nil
	}
	if sqlDB, derr := db.DB(); derr == nil {
		sqlDB.Close()
	}
	return fmt.Errorf("migrating profile tables: %w", err)
}

func (s *Sink) Name() string { return "postgres" }

// WriteProfile inserts the profile with its points
func (s *Sink) WriteProfile(ctx context.Context, p *profile.Profile) error {
	rec, err := toRecord(s.runID, p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// RecordRun upserts the run row
func (s *Sink) RecordRun(ctx context.Context, d *types.Diagnostics) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&RunRecord{
		RunID:       d.RunID,
		StartedAt:   d.StartedAt,
		FinishedAt:  d.FinishedAt,
		Seed:        d.Seed,
		Selected:    d.Selected,
		Extracted:   d.Extracted,
		Diagnostics: string(data),
	}).Error
}

func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(runID string, p *profile.Profile) (*ProfileRecord, error) {
	segments, err := json.Marshal(p.Segments)
	if err != nil {
		return nil, err
	}
	sm := p.Summary
	rec := &ProfileRecord{
		RunID:            runID,
		Head:             int64(p.Head),
		Outlet:           int64(p.Outlet),
		Segments:         string(segments),
		Vertices:         sm.Vertices,
		Length:           sm.Length,
		Relief:           sm.Relief,
		MeanGradient:     sm.MeanGradient,
		GradientValid:    sm.GradientValid,
		MissingElevation: sm.MissingElevation,
		MissingArea:      sm.MissingArea,
		Points:           make([]PointRecord, len(p.Points)),
	}
	for i, pt := range p.Points {
		rec.Points[i] = PointRecord{
			Seq:          i,
			X:            pt.X,
			Y:            pt.Y,
			Distance:     pt.Distance,
			Elevation:    pt.Elevation,
			Accumulation: pt.Accumulation,
			DrainageArea: pt.DrainageArea,
		}
	}
	return rec, nil
}
