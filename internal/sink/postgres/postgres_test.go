package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

func TestToRecord(t *testing.T) {
	elev := 12.0
	p := &profile.Profile{
		Head:     4,
		Outlet:   8,
		Segments: []network.SegmentID{4, 6, 8},
		Points: []profile.Point{
			{X: 1, Y: 1, Elevation: &elev},
			{X: 2, Y: 2, Distance: 1.5},
		},
		Summary: profile.Summary{Vertices: 2, Length: 1.5, MissingElevation: 1, MissingArea: 2},
	}

	rec, err := toRecord("run-3", p)
	require.NoError(t, err)
	assert.Equal(t, "run-3", rec.RunID)
	assert.Equal(t, int64(4), rec.Head)
	assert.Equal(t, int64(8), rec.Outlet)
	assert.JSONEq(t, `[4, 6, 8]`, rec.Segments)
	assert.Equal(t, 1, rec.MissingElevation)
	require.Len(t, rec.Points, 2)
	assert.Equal(t, 1, rec.Points[1].Seq)
	assert.Equal(t, 1.5, rec.Points[1].Distance)
	assert.Equal(t, &elev, rec.Points[0].Elevation)
	assert.Nil(t, rec.Points[1].Elevation)
}

func TestMigrateFailureClosesPool(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pool.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, migrate(ctx, db))
	assert.Error(t, sqlDB.Ping(), "pool should be closed")
}
