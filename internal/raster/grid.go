// Package raster provides point samplers over gridded surfaces such as a filled DEM or a flow
// accumulation grid.
package raster

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/riverprofile/internal/network"
)

// ErrMalformedGrid is returned when a grid file cannot be parsed
var ErrMalformedGrid = errors.New("malformed grid")

// Grid is a north-up raster held in memory. Rows run north to south.
type Grid struct {
	NCols, NRows int
	// XLL, YLL are the coordinates of the lower-left corner of the lower-left cell
	XLL, YLL float64
	DX, DY   float64
	NoData   float64
	// HasNoData is false when the header carried no NODATA_value
	HasNoData bool
	values    []float64
}

// NewGrid builds a grid from row-major values, first row northernmost
func NewGrid(ncols, nrows int, xll, yll, dx, dy float64, values []float64) (*Grid, error) {
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrMalformedGrid, ncols, nrows)
	}
	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("%w: cell size %vx%v", ErrMalformedGrid, dx, dy)
	}
	if len(values) != ncols*nrows {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrMalformedGrid, ncols*nrows, len(values))
	}
	return &Grid{NCols: ncols, NRows: nrows, XLL: xll, YLL: yll, DX: dx, DY: dy, values: values}, nil
}

// WithNoData marks v as the grid's nodata value
func (g *Grid) WithNoData(v float64) *Grid {
	g.NoData = v
	g.HasNoData = true
	return g
}

// CellArea returns the product of the two axis resolutions
func (g *Grid) CellArea() float64 {
	return g.DX * g.DY
}

// Cell returns the column and row holding p. ok is false off the grid.
func (g *Grid) Cell(p network.Point) (col, row int, ok bool) {
	c := math.Floor((p.X - g.XLL) / g.DX)
	r := math.Floor((g.YLL + float64(g.NRows)*g.DY - p.Y) / g.DY)
	if c < 0 || r < 0 || c >= float64(g.NCols) || r >= float64(g.NRows) {
		return 0, 0, false
	}
	return int(c), int(r), true
}

// Sample returns the value of the cell containing p. Points off the grid and nodata cells
// report ok=false.
func (g *Grid) Sample(_ context.Context, p network.Point) (float64, bool, error) {
	col, row, ok := g.Cell(p)
	if !ok {
		return 0, false, nil
	}
	v := g.values[row*g.NCols+col]
	if math.IsNaN(v) || (g.HasNoData && v == g.NoData) {
		return 0, false, nil
	}
	return v, true, nil
}

// LoadASCIIGrid reads an ESRI ASCII grid from path
func LoadASCIIGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// maxCells bounds the grids ReadASCIIGrid will allocate for
const maxCells = 1 << 31

func validDimension(v float64) bool {
	return v >= 1 && v <= maxCells && v == math.Trunc(v)
}

// ReadASCIIGrid parses an ESRI ASCII grid. Both corner and centre registration are accepted,
// as is the dx/dy form of the header written for non-square cells.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		word := sc.Text()
		key := strings.ToLower(word)
		if _, err := strconv.ParseFloat(word, 64); err == nil {
			first = word
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header key %q has no value", ErrMalformedGrid, word)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: header %s: %v", ErrMalformedGrid, word, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	ncols, okc := header["ncols"]
	nrows, okr := header["nrows"]
	if !okc || !okr {
		return nil, fmt.Errorf("%w: missing ncols/nrows", ErrMalformedGrid)
	}

	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}

	xll, yll := header["xllcorner"], header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		xll = v - dx/2
	}
	if v, ok := header["yllcenter"]; ok {
		yll = v - dy/2
	}

	if !validDimension(ncols) || !validDimension(nrows) || ncols*nrows > maxCells {
		return nil, fmt.Errorf("%w: invalid dimensions %vx%v", ErrMalformedGrid, ncols, nrows)
	}
	n := int(ncols) * int(nrows)
	values := make([]float64, 0, n)
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		values = append(values, v)
	}
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrMalformedGrid, len(values), err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	g, err := NewGrid(int(ncols), int(nrows), xll, yll, dx, dy, values)
	if err != nil {
		return nil, err
	}
	if v, ok := header["nodata_value"]; ok {
		g.WithNoData(v)
	}
	return g, nil
}
