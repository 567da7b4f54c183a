package managers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chrissnell/riverprofile/internal/metrics"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink"
	"github.com/chrissnell/riverprofile/internal/sink/csvfile"
	"github.com/chrissnell/riverprofile/internal/sink/msgpackfile"
	"github.com/chrissnell/riverprofile/internal/sink/objectstore"
	"github.com/chrissnell/riverprofile/internal/sink/postgres"
	"github.com/chrissnell/riverprofile/internal/sink/sqlitestore"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/chrissnell/riverprofile/pkg/config"
	"go.uber.org/zap"
)

// ErrManagerClosed is returned by Submit after Close
var ErrManagerClosed = errors.New("sink manager closed")

// SinkManager holds our active profile sinks
type SinkManager struct {
	Engines            []SinkEngine
	ProfileDistributor chan *profile.Profile
	logger             *zap.SugaredLogger
	wg                 sync.WaitGroup
	mu                 sync.RWMutex
	closed             bool
	errors             atomic.Int64
}

// SinkEngine holds a sink as well as the channel feeding it profiles
type SinkEngine struct {
	Sink sink.Sink
	C    chan *profile.Profile
}

// NewSinkManager creates a SinkManager populated with every sink enabled in the configuration.
// Sinks are started before the manager is returned.
func NewSinkManager(ctx context.Context, c config.SinkData, runID string, logger *zap.SugaredLogger) (*SinkManager, error) {
	var sinks []sink.Sink

	if c.CSV != nil {
		s, err := csvfile.New(c.CSV.Dir)
		if err != nil {
			return nil, closeAll(sinks, fmt.Errorf("could not add CSV sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if c.MsgPack != nil {
		s, err := msgpackfile.New(c.MsgPack.Dir, c.MsgPack.Compression)
		if err != nil {
			return nil, closeAll(sinks, fmt.Errorf("could not add MessagePack sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if c.SQLite != nil {
		s, err := sqlitestore.Open(c.SQLite.Path, runID)
		if err != nil {
			return nil, closeAll(sinks, fmt.Errorf("could not add SQLite sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if c.Postgres != nil {
		logger.Info("connecting to PostgreSQL profile sink...")
		s, err := postgres.New(ctx, c.Postgres.ConnectionString, runID, logger.Desugar())
		if err != nil {
			return nil, closeAll(sinks, fmt.Errorf("could not add PostgreSQL sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if c.ObjectStore != nil {
		s, err := objectstore.New(ctx, c.ObjectStore, runID)
		if err != nil {
			return nil, closeAll(sinks, fmt.Errorf("could not add object storage sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	return NewSinkManagerWith(ctx, logger, sinks...), nil
}

// NewSinkManagerWith starts a manager over already constructed sinks
func NewSinkManagerWith(ctx context.Context, logger *zap.SugaredLogger, sinks ...sink.Sink) *SinkManager {
	m := &SinkManager{
		ProfileDistributor: make(chan *profile.Profile, 20),
		logger:             logger,
	}
	for _, s := range sinks {
		m.AddSink(ctx, s)
	}

	m.wg.Add(1)
	go m.startProfileDistributor()
	return m
}

// AddSink starts a goroutine feeding s. Sinks must be added before profiles are submitted.
// Writes ignore cancellation of ctx so that profiles queued before a shutdown still land.
func (m *SinkManager) AddSink(ctx context.Context, s sink.Sink) {
	se := SinkEngine{Sink: s, C: make(chan *profile.Profile, 10)}
	m.Engines = append(m.Engines, se)

	m.logger.Infof("starting %s sink...", s.Name())
	m.wg.Add(1)
	go m.processProfiles(context.WithoutCancel(ctx), se)
}

// Submit hands a profile to every sink. It blocks while the distributor is full.
func (m *SinkManager) Submit(ctx context.Context, p *profile.Profile) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}

	select {
	case m.ProfileDistributor <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startProfileDistributor fans submitted profiles out to every sink. It runs until the
// distributor is closed, then closes each sink's channel.
func (m *SinkManager) startProfileDistributor() {
	defer m.wg.Done()

	for p := range m.ProfileDistributor {
		for _, e := range m.Engines {
			e.C <- p
		}
	}
	for _, e := range m.Engines {
		close(e.C)
	}
}

func (m *SinkManager) processProfiles(ctx context.Context, se SinkEngine) {
	defer m.wg.Done()

	name := se.Sink.Name()
	for p := range se.C {
		if err := se.Sink.WriteProfile(ctx, p); err != nil {
			m.errors.Add(1)
			metrics.SinkErrors.WithLabelValues(name).Inc()
			m.logger.Errorw("could not write profile", "sink", name, "head", p.Head, "error", err)
		}
	}
}

// Errors is the number of failed sink writes so far
func (m *SinkManager) Errors() int {
	return int(m.errors.Load())
}

// Close drains every queued profile, records the run with sinks that keep diagnostics and
// closes the sinks. d may be nil.
func (m *SinkManager) Close(ctx context.Context, d *types.Diagnostics) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	close(m.ProfileDistributor)
	m.mu.Unlock()

	m.wg.Wait()

	if d != nil {
		d.SinkErrors = m.Errors()
	}
	var errs []error
	for _, e := range m.Engines {
		if r, ok := e.Sink.(sink.RunRecorder); ok && d != nil {
			if err := r.RecordRun(ctx, d); err != nil {
				metrics.SinkErrors.WithLabelValues(e.Sink.Name()).Inc()
				errs = append(errs, fmt.Errorf("%s: recording run: %w", e.Sink.Name(), err))
			}
		}
		if err := e.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func closeAll(sinks []sink.Sink, err error) error {
	for _, s := range sinks {
		s.Close()
	}
	return err
}
