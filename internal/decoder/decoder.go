// Package decoder turns raw vector-tile buffers into styled feature
// payloads by driving the style evaluator across every surviving feature of
// a tile. Decoding runs off the serving path in worker goroutines; see
// worker.go for the request/response boundary.
package decoder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-style/internal/expr"
	"github.com/joeblew999/plat-style/internal/style"
)

// Request asks for one tile decode.
type Request struct {
	// Buffer is the raw tile, MVT protobuf, gzipped MVT, or GeoJSON.
	Buffer []byte `json:"-"`
	// StyleSet names the compiled style set to evaluate against.
	StyleSet string `json:"styleSet"`
	// Zoom is the tile's zoom level, used for zoom-dependent styling.
	Zoom float64 `json:"zoom"`
}

// Feature is one decoded, styled feature.
type Feature struct {
	Layer      string                `json:"layer"`
	Geometry   *geojson.Geometry     `json:"geometry"`
	Tags       map[string]expr.Value `json:"tags,omitempty"`
	Techniques []style.Technique     `json:"techniques"`
}

// Response is a completed decode.
type Response struct {
	Features []Feature `json:"features"`
	// Stats for the caller's latency accounting.
	LayersSkipped   int `json:"layersSkipped"`
	FeaturesSkipped int `json:"featuresSkipped"`
}

// Decoder decodes tiles against one compiled evaluator. It holds no mutable
// state and is safe for concurrent use.
type Decoder struct {
	ev     *style.Evaluator
	filter style.FeatureFilter
	log    *logrus.Entry
}

// New builds a Decoder over a compiled style set.
func New(ev *style.Evaluator) *Decoder {
	return &Decoder{
		ev:     ev,
		filter: style.NewFeatureFilter(ev),
		log:    logrus.WithField("styleSet", ev.Name()),
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses the tile buffer and evaluates the style set for every
// feature the filter lets through. A malformed buffer is the only error;
// per-feature styling problems degrade to skipped rules inside the
// evaluator.
func (d *Decoder) Decode(ctx context.Context, buf []byte, zoom float64) (*Response, error) {
	layers, err := unmarshalTile(buf)
	if err != nil {
		return nil, fmt.Errorf("decoder: parsing tile: %w", err)
	}

	resp := &Response{}
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !d.filter.WantsLayer(layer.Name) {
			resp.LayersSkipped++
			continue
		}

		for _, f := range layer.Features {
			kind, ok := geometryKind(f.Geometry)
			if !ok {
				resp.FeaturesSkipped++
				continue
			}
			if !d.wantsKind(layer.Name, kind) {
				resp.FeaturesSkipped++
				continue
			}

			tags := featureTags(f.Properties, layer.Name, kind)
			techniques := d.ev.MatchingTechniquesForKind(layer.Name, kind, tags, zoom)
			if len(techniques) == 0 {
				resp.FeaturesSkipped++
				continue
			}

			resp.Features = append(resp.Features, Feature{
				Layer:      layer.Name,
				Geometry:   geojson.NewGeometry(f.Geometry),
				Tags:       tags,
				Techniques: techniques,
			})
		}
	}

	return resp, nil
}

func (d *Decoder) wantsKind(layer string, kind style.GeometryKind) bool {
	switch kind {
	case style.KindPoint:
		return d.filter.WantsPointFeature(layer)
	case style.KindLine:
		return d.filter.WantsLineFeature(layer)
	default:
		return d.filter.WantsPolygonFeature(layer)
	}
}

// unmarshalTile handles the accepted buffer encodings: gzipped MVT, plain
// MVT protobuf, and a GeoJSON feature collection (treated as a single
// "default" layer).
func unmarshalTile(buf []byte) (mvt.Layers, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty tile buffer")
	}
	if bytes.HasPrefix(buf, gzipMagic) {
		return mvt.UnmarshalGzipped(buf)
	}
	if buf[0] == '{' {
		fc, err := geojson.UnmarshalFeatureCollection(buf)
		if err != nil {
			return nil, err
		}
		return mvt.Layers{mvt.NewLayer("default", fc)}, nil
	}
	return mvt.Unmarshal(buf)
}

// geometryKind classifies orb geometry into the filter's three kinds.
func geometryKind(g orb.Geometry) (style.GeometryKind, bool) {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return style.KindPoint, true
	case orb.LineString, orb.MultiLineString:
		return style.KindLine, true
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return style.KindPolygon, true
	default:
		return 0, false
	}
}

// featureTags converts feature properties for the expression evaluator and
// injects the $layer and $geometryType pseudo-tags that when conditions may
// reference.
func featureTags(props geojson.Properties, layer string, kind style.GeometryKind) map[string]expr.Value {
	tags := make(map[string]expr.Value, len(props)+2)
	for k, v := range props {
		if n, ok := expr.ToNumber(v); ok {
			tags[k] = n
		} else {
			tags[k] = v
		}
	}
	tags["$layer"] = layer
	tags["$geometryType"] = kind.String()
	return tags
}
