package msgpackfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/chrissnell/riverprofile/pkg/config"
)

// Sink writes one MessagePack file per river plus a diagnostics file per run
type Sink struct {
	dir         string
	compression string
}

// New creates the output directory if needed
func New(dir, compression string) (*Sink, error) {
	switch compression {
	case "", config.CompressionNone, config.CompressionZstd, config.CompressionLZ4:
	default:
		return nil, fmt.Errorf("msgpack sink: unsupported compression %q", compression)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("msgpack sink: %w", err)
	}
	return &Sink{dir: dir, compression: compression}, nil
}

func (s *Sink) Name() string { return "msgpack" }

// Path returns the file a river's profile is written to
func (s *Sink) Path(p *profile.Profile) string {
	return filepath.Join(s.dir, sink.RiverFileName(p.Head, Extension(s.compression)))
}

func (s *Sink) WriteProfile(_ context.Context, p *profile.Profile) error {
	return s.writeFile(s.Path(p), p)
}

// RecordRun writes diagnostics_<run id> next to the profiles
func (s *Sink) RecordRun(_ context.Context, d *types.Diagnostics) error {
	return s.writeFile(filepath.Join(s.dir, "diagnostics_"+d.RunID+Extension(s.compression)), d)
}

func (s *Sink) Close() error { return nil }

func (s *Sink) writeFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, s.compression, v); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadProfile loads a profile written by the sink
func ReadProfile(path, compression string) (*profile.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var p profile.Profile
	if err := Decode(bufio.NewReader(f), compression, &p); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &p, nil
}
