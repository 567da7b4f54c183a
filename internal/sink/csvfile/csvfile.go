// Package csvfile writes one delimited text file per river, named by its head segment.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink"
)

// Header is the column layout of every river file
var Header = []string{"x", "y", "elevation", "distance", "drainage_area"}

// Sink writes river_<head>.csv files into a directory
type Sink struct {
	dir string
}

// New creates the output directory if needed
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	return &Sink{dir: dir}, nil
}

func (s *Sink) Name() string { return "csv" }

// WriteProfile writes the river's points. Missing attributes are left empty.
func (s *Sink) WriteProfile(_ context.Context, p *profile.Profile) error {
	path := filepath.Join(s.dir, sink.RiverFileName(p.Head, ".csv"))
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return err
	}
	for _, pt := range p.Points {
		record := []string{
			formatFloat(pt.X),
			formatFloat(pt.Y),
			formatOptional(pt.Elevation),
			formatFloat(pt.Distance),
			formatOptional(pt.DrainageArea),
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func (s *Sink) Close() error { return nil }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
