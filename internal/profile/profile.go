// Package profile turns a reconstructed river path into an ordered, attributed longitudinal
// profile: flattened vertices, cumulative channel distance, elevation and drainage area.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/riverprofile/internal/network"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sampler looks up a raster value at a point. ok is false when the point carries no data
// (off-raster or a nodata cell); err is reserved for failures of the sampler itself.
type Sampler interface {
	Sample(ctx context.Context, p network.Point) (value float64, ok bool, err error)
}

// SamplerFunc adapts a function to the Sampler interface
type SamplerFunc func(ctx context.Context, p network.Point) (float64, bool, error)

// Sample calls f(ctx, p)
func (f SamplerFunc) Sample(ctx context.Context, p network.Point) (float64, bool, error) {
	return f(ctx, p)
}

// Point is one retained vertex of a profile. Nil attributes had no data at the vertex.
type Point struct {
	X            float64  `json:"x" msgpack:"x"`
	Y            float64  `json:"y" msgpack:"y"`
	Distance     float64  `json:"distance" msgpack:"distance"`
	Elevation    *float64 `json:"elevation" msgpack:"elevation"`
	Accumulation *float64 `json:"accumulation" msgpack:"accumulation"`
	DrainageArea *float64 `json:"drainage_area" msgpack:"drainage_area"`
}

// Summary holds per-river statistics derived from the points
type Summary struct {
	Vertices         int     `json:"vertices" msgpack:"vertices"`
	Length           float64 `json:"length" msgpack:"length"`
	Relief           float64 `json:"relief" msgpack:"relief"`
	MeanGradient     float64 `json:"mean_gradient" msgpack:"mean_gradient"`
	GradientValid    bool    `json:"gradient_valid" msgpack:"gradient_valid"`
	MissingElevation int     `json:"missing_elevation" msgpack:"missing_elevation"`
	MissingArea      int     `json:"missing_area" msgpack:"missing_area"`
}

// Profile is the extracted longitudinal profile of one river, named by its head segment
type Profile struct {
	Head     network.SegmentID   `json:"head" msgpack:"head"`
	Outlet   network.SegmentID   `json:"outlet" msgpack:"outlet"`
	Segments []network.SegmentID `json:"segments" msgpack:"segments"`
	Points   []Point             `json:"points" msgpack:"points"`
	Summary  Summary             `json:"summary" msgpack:"summary"`
}

// Builder builds profiles. It holds no per-river state and may be shared between goroutines
// as long as its samplers are safe for concurrent use.
type Builder struct {
	elevation    Sampler
	accumulation Sampler
	cellArea     float64
	dropOrigin   bool
	coincident   func(a, b network.Point) bool
}

// Option configures a Builder
type Option func(*Builder)

// WithDropOrigin discards the distance-0 channel head vertex, keeping only vertices with a
// strictly positive along-channel distance
func WithDropOrigin(drop bool) Option {
	return func(b *Builder) {
		b.dropOrigin = drop
	}
}

// WithCoincidence sets the test used to collapse duplicate vertices while flattening. It
// should match the rule the topology was resolved with; the default is exact equality.
func WithCoincidence(fn func(a, b network.Point) bool) Option {
	return func(b *Builder) {
		if fn != nil {
			b.coincident = fn
		}
	}
}

// NewBuilder returns a Builder sampling elevation and flow accumulation from the given samplers.
// cellAreaM2 converts accumulated cell counts to drainage area in square metres.
func NewBuilder(elevation, accumulation Sampler, cellAreaM2 float64, opts ...Option) (*Builder, error) {
	if elevation == nil || accumulation == nil {
		return nil, errors.New("profile: elevation and accumulation samplers are required")
	}
	if !(cellAreaM2 > 0) {
		return nil, fmt.Errorf("profile: cell area must be positive, got %v", cellAreaM2)
	}

	b := &Builder{
		elevation:    elevation,
		accumulation: accumulation,
		cellArea:     cellAreaM2,
		coincident:   func(a, b network.Point) bool { return a == b },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// CellArea returns the cell area used to convert accumulation to drainage area
func (b *Builder) CellArea() float64 {
	return b.cellArea
}

// Build flattens the path geometry, measures along-channel distance and samples attributes
// for every retained vertex. No-data samples leave the attribute nil; sampler errors and
// context cancellation fail the river.
func (b *Builder) Build(ctx context.Context, path network.RiverPath) (Profile, error) {
	if len(path.Segments) == 0 {
		return Profile{}, fmt.Errorf("profile: empty path for head %d", path.Head)
	}

	vertices := Flatten(path, b.coincident)
	steps := stepLengths(vertices)
	dist := floats.CumSum(make([]float64, len(steps)), steps)

	p := Profile{
		Head:     path.Head,
		Outlet:   path.Outlet(),
		Segments: path.IDs(),
		Points:   make([]Point, 0, len(vertices)),
	}

	for i, v := range vertices {
		if !b.retain(i, steps[i]) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Profile{}, err
		}

		pt := Point{X: v.X, Y: v.Y, Distance: dist[i]}

		z, ok, err := b.elevation.Sample(ctx, v)
		if err != nil {
			return Profile{}, fmt.Errorf("sampling elevation at %v: %w", v, err)
		}
		if ok {
			pt.Elevation = &z
		}

		acc, ok, err := b.accumulation.Sample(ctx, v)
		if err != nil {
			return Profile{}, fmt.Errorf("sampling accumulation at %v: %w", v, err)
		}
		if ok {
			area := acc * b.cellArea
			pt.Accumulation = &acc
			pt.DrainageArea = &area
		}

		p.Points = append(p.Points, pt)
	}

	p.Summary = Summarize(p.Points)
	return p, nil
}

// retain applies the trim rule: the channel head anchors the profile at distance 0 unless
// dropOrigin is set, and every later vertex must have moved a strictly positive distance.
func (b *Builder) retain(i int, step float64) bool {
	if i == 0 {
		return !b.dropOrigin
	}
	return step > 0
}

// Flatten concatenates segment vertices in path order, skipping any vertex that coincides
// with the one before it. Junction vertices shared by consecutive segments appear once.
func Flatten(path network.RiverPath, coincident func(a, b network.Point) bool) []network.Point {
	if coincident == nil {
		coincident = func(a, b network.Point) bool { return a == b }
	}

	n := 0
	for _, s := range path.Segments {
		n += len(s.Vertices)
	}
	out := make([]network.Point, 0, n)
	for _, s := range path.Segments {
		for _, v := range s.Vertices {
			if len(out) > 0 && coincident(out[len(out)-1], v) {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

// CumulativeDistance returns the along-line distance of every vertex from the first
func CumulativeDistance(vertices []network.Point) []float64 {
	steps := stepLengths(vertices)
	return floats.CumSum(make([]float64, len(steps)), steps)
}

func stepLengths(vertices []network.Point) []float64 {
	steps := make([]float64, len(vertices))
	for i := 1; i < len(vertices); i++ {
		steps[i] = vertices[i-1].Distance(vertices[i])
	}
	return steps
}

// Summarize computes length, relief and the least-squares channel gradient of a profile.
// Gradient is the elevation drop per unit distance, positive for a river running downhill.
func Summarize(points []Point) Summary {
	s := Summary{Vertices: len(points)}
	if len(points) == 0 {
		return s
	}
	s.Length = points[len(points)-1].Distance - points[0].Distance

	var xs, zs []float64
	for _, p := range points {
		if p.Elevation == nil {
			s.MissingElevation++
		} else {
			xs = append(xs, p.Distance)
			zs = append(zs, *p.Elevation)
		}
		if p.DrainageArea == nil {
			s.MissingArea++
		}
	}

	if len(zs) > 0 {
		s.Relief = floats.Max(zs) - floats.Min(zs)
	}
	if len(xs) >= 2 && stat.Variance(xs, nil) > 0 {
		_, beta := stat.LinearRegression(xs, zs, nil, false)
		s.MeanGradient = -beta
		s.GradientValid = true
	}
	return s
}
