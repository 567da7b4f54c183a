package raster

import (
	"context"
	"math"
	"time"

	"github.com/chrissnell/riverprofile/internal/metrics"
	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"golang.org/x/time/rate"
)

// Throttle limits s to perSecond calls, shared across every goroutine using the returned
// sampler. perSecond <= 0 returns s unchanged.
func Throttle(s profile.Sampler, perSecond float64, burst int) profile.Sampler {
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		return s
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{next: s, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type throttled struct {
	next    profile.Sampler
	limiter *rate.Limiter
}

func (t *throttled) Sample(ctx context.Context, p network.Point) (float64, bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}
	return t.next.Sample(ctx, p)
}

// Instrument records the latency of every call to s under the given raster label
func Instrument(s profile.Sampler, name string) profile.Sampler {
	return &instrumented{next: s, observer: metrics.SampleDuration.WithLabelValues(name)}
}

type instrumented struct {
	next     profile.Sampler
	observer interface{ Observe(float64) }
}

func (i *instrumented) Sample(ctx context.Context, p network.Point) (float64, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Sample(ctx, p)
	i.observer.Observe(time.Since(start).Seconds())
	return v, ok, err
}
