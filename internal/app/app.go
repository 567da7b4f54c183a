package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrissnell/riverprofile/internal/graphexport"
	"github.com/chrissnell/riverprofile/internal/managers"
	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/pipeline"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/raster"
	"github.com/chrissnell/riverprofile/internal/source"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App runs one profile extraction
type App struct {
	config *config.ConfigData
	logger *zap.SugaredLogger

	// MetricsAddr, when set, serves Prometheus metrics for the duration of the run
	MetricsAddr string
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Run extracts the configured rivers and blocks until every profile has reached the sinks or
// a shutdown signal arrives. The diagnostics are returned whenever the per-river phase started.
func (a *App) Run(ctx context.Context) (*types.Diagnostics, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := a.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if a.MetricsAddr != "" {
		shutdown := a.serveMetrics()
		defer shutdown()
	}

	elevation, accumulation, cellArea, err := a.loadRasters()
	if err != nil {
		return nil, err
	}

	src, err := source.New(ctx, cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("opening stream network: %w", err)
	}
	segments, err := src.Segments(ctx)
	src.Close()
	if err != nil {
		return nil, fmt.Errorf("reading stream network: %w", err)
	}
	a.logger.Infof("read %d stream segments from %s source", len(segments), cfg.Network.Source)

	link, err := pipeline.Prepare(segments, network.WithSnapTolerance(cfg.Network.SnapTolerance))
	if err != nil {
		return nil, err
	}

	runID := pipeline.NewRunID()
	logger := a.logger.With("run", runID)

	if n := cfg.NetworkExport.Neo4j; n != nil {
		a.exportNetwork(ctx, n, link, runID, logger)
	}

	sinks, err := managers.NewSinkManager(ctx, cfg.Sinks, runID, logger)
	if err != nil {
		return nil, err
	}
	if len(sinks.Engines) == 0 {
		logger.Warn("no sinks configured; profiles will be built and discarded")
	}

	builder, err := profile.NewBuilder(elevation, accumulation, cellArea,
		profile.WithDropOrigin(cfg.Profile.DropOrigin),
		profile.WithCoincidence(link.Store().Coincident),
	)
	if err != nil {
		sinks.Close(ctx, nil)
		return nil, err
	}

	p := pipeline.New(builder, sinks, logger, pipeline.Options{
		Rivers:   cfg.Selection.Rivers,
		Seed:     cfg.Selection.Seed,
		Workers:  cfg.Run.Workers,
		FailFast: cfg.Run.FailFast,
		RunID:    runID,
	})
	d, runErr := p.Run(ctx, link)

	// profiles already queued are still written after a shutdown signal
	closeErr := sinks.Close(context.WithoutCancel(ctx), d)
	if closeErr != nil {
		logger.Errorf("error closing sinks: %v", closeErr)
	}
	return d, errors.Join(runErr, closeErr)
}

// loadRasters reads the elevation and accumulation grids and wraps them as throttled,
// instrumented samplers
func (a *App) loadRasters() (profile.Sampler, profile.Sampler, float64, error) {
	rc := a.config.Rasters

	elev, err := raster.LoadASCIIGrid(rc.Elevation)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("loading elevation raster: %w", err)
	}
	acc, err := raster.LoadASCIIGrid(rc.Accumulation)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("loading accumulation raster: %w", err)
	}

	cellArea := rc.CellAreaM2
	if cellArea == 0 {
		cellArea = acc.CellArea()
	}
	a.logger.Infof("raster cell area %.2f m²", cellArea)

	if cells := a.config.Network.MinCatchmentCells; cells > 0 {
		a.logger.Infof("stream network delineated at %d cells (%.3f km²)", cells, float64(cells)*cellArea/1e6)
	}

	elevation := raster.Instrument(raster.Throttle(elev, rc.MaxSamplesPerSecond, rc.SampleBurst), "elevation")
	accumulation := raster.Instrument(raster.Throttle(acc, rc.MaxSamplesPerSecond, rc.SampleBurst), "accumulation")
	return elevation, accumulation, cellArea, nil
}

// exportNetwork writes the topology to Neo4j. Failures are logged and do not stop the run.
func (a *App) exportNetwork(ctx context.Context, c *config.Neo4jData, link *network.FlowLink, runID string, logger *zap.SugaredLogger) {
	exp, err := graphexport.New(ctx, c)
	if err != nil {
		logger.Warnf("skipping network export: %v", err)
		return
	}
	defer exp.Close(context.WithoutCancel(ctx))

	start := time.Now()
	if err := exp.Export(ctx, link, runID); err != nil {
		logger.Warnf("network export failed: %v", err)
		return
	}
	logger.Infof("exported %d segments to neo4j in %v", link.Store().Len(), time.Since(start))
}

func (a *App) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: a.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		a.logger.Infof("serving metrics on %s/metrics", a.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
