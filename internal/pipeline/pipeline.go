// Package pipeline runs a profile extraction: the sequential ingest, classify and resolve
// phase, followed by per-river path reconstruction and profile building on a bounded pool of
// workers.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/chrissnell/riverprofile/internal/metrics"
	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/chrissnell/riverprofile/internal/pipeline"

// Publisher receives every successfully built profile
type Publisher interface {
	Submit(ctx context.Context, p *profile.Profile) error
}

// PublisherFunc adapts a function to the Publisher interface
type PublisherFunc func(ctx context.Context, p *profile.Profile) error

// Submit calls f(ctx, p)
func (f PublisherFunc) Submit(ctx context.Context, p *profile.Profile) error {
	return f(ctx, p)
}

// Options control head selection and scheduling
type Options struct {
	// Rivers caps the number of heads processed; zero selects every head
	Rivers int
	Seed   int64
	// Workers bounds the number of rivers in flight, and so the concurrent sampler calls
	Workers int
	// FailFast stops launching new rivers after the first failure
	FailFast bool
	RunID    string
}

// Pipeline extracts profiles from a resolved network
type Pipeline struct {
	builder   *profile.Builder
	publisher Publisher
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
	opts      Options
}

// New creates a pipeline. A missing run id is generated.
func New(builder *profile.Builder, publisher Publisher, logger *zap.SugaredLogger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	return &Pipeline{
		builder:   builder,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		opts:      opts,
	}
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// RunID is the identifier tagged onto everything this pipeline produces
func (p *Pipeline) RunID() string {
	return p.opts.RunID
}

// Prepare ingests the segments and resolves their topology. Any error here is fatal for the
// whole run.
func Prepare(segments []network.Segment, opts ...network.Option) (*network.FlowLink, error) {
	store, err := network.Ingest(segments, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingesting stream network: %w", err)
	}
	link, err := network.Resolve(store)
	if err != nil {
		return nil, fmt.Errorf("resolving stream topology: %w", err)
	}
	return link, nil
}

// Run processes the selected heads of link. Failures scoped to one river are recorded in the
// returned diagnostics and do not fail the run unless FailFast is set. The diagnostics are
// returned even when an error is.
func (p *Pipeline) Run(ctx context.Context, link *network.FlowLink) (*types.Diagnostics, error) {
	store := link.Store()
	d := &types.Diagnostics{
		RunID:     p.opts.RunID,
		StartedAt: time.Now().UTC(),
		Seed:      p.opts.Seed,
		Segments:  store.Len(),
		Requested: p.opts.Rivers,
	}
	for _, c := range store.Classify() {
		if c.IsHead() {
			d.Heads++
		}
		if c.IsOutlet() {
			d.Outlets++
		}
	}
	metrics.Segments.Set(float64(d.Segments))

	d.Ambiguities = link.Ambiguities()
	for _, a := range d.Ambiguities {
		p.logger.Warnw("ambiguous topology", "segment", a.Segment, "candidates", a.Candidates, "chosen", a.Chosen)
	}
	metrics.AmbiguousLinks.Add(float64(len(d.Ambiguities)))

	heads := network.SelectHeads(store, p.opts.Rivers, p.opts.Seed)
	d.Selected = len(heads)
	if d.Capped() {
		p.logger.Infof("requested %d rivers but the network has only %d heads; processing all of them",
			d.Requested, d.Selected)
	}
	p.logger.Infow("extracting river profiles", "run", d.RunID, "segments", d.Segments,
		"heads", d.Heads, "outlets", d.Outlets, "selected", d.Selected, "workers", p.opts.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, head := range heads {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			prof, reason, err := p.extract(gctx, link, head)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.Failures = append(d.Failures, types.Failure{Head: head, Reason: reason, Error: err.Error()})
				if reason == types.ReasonCycle {
					d.Cycles++
				}
				metrics.RiversFailed.WithLabelValues(reason).Inc()
				p.logger.Errorw("river abandoned", "head", head, "reason", reason, "error", err)
				if p.opts.FailFast {
					return fmt.Errorf("river %d: %w", head, err)
				}
				return nil
			}

			d.Extracted++
			d.MissingElevation += prof.Summary.MissingElevation
			d.MissingArea += prof.Summary.MissingArea
			metrics.RiversExtracted.Inc()
			metrics.VerticesMissing.WithLabelValues("elevation").Add(float64(prof.Summary.MissingElevation))
			metrics.VerticesMissing.WithLabelValues("drainage_area").Add(float64(prof.Summary.MissingArea))
			return nil
		})
	}
	err := g.Wait()

	slices.SortFunc(d.Failures, func(a, b types.Failure) int {
		return cmp.Compare(a.Head, b.Head)
	})
	d.FinishedAt = time.Now().UTC()

	p.logger.Infow("run finished", "run", d.RunID, "extracted", d.Extracted, "failed", d.Failed(),
		"cycles", d.Cycles, "ambiguous", len(d.Ambiguities), "missing_elevation", d.MissingElevation,
		"missing_area", d.MissingArea, "elapsed", d.FinishedAt.Sub(d.StartedAt))

	if err != nil {
		return d, fmt.Errorf("run aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return d, err
	}
	return d, nil
}

// extract reconstructs, builds and publishes one river
func (p *Pipeline) extract(ctx context.Context, link *network.FlowLink, head network.SegmentID) (*profile.Profile, string, error) {
	ctx, span := p.tracer.Start(ctx, "river", trace.WithAttributes(attribute.Int64("river.head", int64(head))))
	defer span.End()

	prof, reason, err := p.buildRiver(ctx, link, head)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, reason, err
	}
	span.SetAttributes(
		attribute.Int("river.vertices", prof.Summary.Vertices),
		attribute.Float64("river.length", prof.Summary.Length),
	)
	return prof, "", nil
}

func (p *Pipeline) buildRiver(ctx context.Context, link *network.FlowLink, head network.SegmentID) (*profile.Profile, string, error) {
	path, err := network.Reconstruct(head, link)
	if err != nil {
		if errors.Is(err, network.ErrCycleDetected) {
			return nil, types.ReasonCycle, err
		}
		return nil, types.ReasonOther, err
	}

	prof, err := p.builder.Build(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.ReasonCanceled, err
		}
		return nil, types.ReasonSampling, err
	}

	if err := p.publisher.Submit(ctx, &prof); err != nil {
		if ctx.Err() != nil {
			return nil, types.ReasonCanceled, err
		}
		return nil, types.ReasonOther, fmt.Errorf("publishing profile: %w", err)
	}
	return &prof, "", nil
}
