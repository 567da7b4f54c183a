package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/chrissnell/riverprofile/internal/network"
)

// GeoJSONSource reads LineString features from a GeoJSON FeatureCollection. Each feature's
// identifier is taken from the configured property.
type GeoJSONSource struct {
	path       string
	idProperty string
}

// NewGeoJSONSource creates a source reading path
func NewGeoJSONSource(path, idProperty string) *GeoJSONSource {
	return &GeoJSONSource{path: path, idProperty: idProperty}
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage            `json:"id"`
	Geometry   *geometry                  `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Segments reads and decodes the file
func (g *GeoJSONSource) Segments(_ context.Context) ([]network.Segment, error) {
	f, err := os.Open(g.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fc featureCollection
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", g.path, err)
	}
	segments, err := decodeFeatures(fc, g.idProperty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.path, err)
	}
	return segments, nil
}

// Close is a no-op for file sources
func (g *GeoJSONSource) Close() error {
	return nil
}

func decodeFeatures(fc featureCollection, idProperty string) ([]network.Segment, error) {
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}

	segments := make([]network.Segment, 0, len(fc.Features))
	for i, ft := range fc.Features {
		raw, ok := ft.Properties[idProperty]
		if !ok {
			raw = ft.ID
		}
		id, err := parseID(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %d: property %q: %w", i, idProperty, err)
		}
		if ft.Geometry == nil {
			return nil, fmt.Errorf("feature %d (id %d) has no geometry", i, id)
		}

		var line [][]float64
		switch ft.Geometry.Type {
		case "LineString":
			err = json.Unmarshal(ft.Geometry.Coordinates, &line)
		case "MultiLineString":
			var parts [][][]float64
			err = json.Unmarshal(ft.Geometry.Coordinates, &parts)
			if err == nil && len(parts) != 1 {
				err = fmt.Errorf("multi-part geometry with %d parts", len(parts))
			}
			if err == nil {
				line = parts[0]
			}
		default:
			err = fmt.Errorf("unsupported geometry type %q", ft.Geometry.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("feature %d (id %d): %w", i, id, err)
		}

		seg := network.Segment{ID: network.SegmentID(id), Vertices: make([]network.Point, 0, len(line))}
		for _, c := range line {
			if len(c) < 2 {
				return nil, fmt.Errorf("feature %d (id %d): position with %d ordinates", i, id, len(c))
			}
			seg.Vertices = append(seg.Vertices, network.Point{X: c[0], Y: c[1]})
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// parseID accepts integral JSON numbers and strings holding integers
func parseID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing identifier")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
		return 0, fmt.Errorf("identifier %v is not an integer", n)
	}
	return int64(n), nil
}
