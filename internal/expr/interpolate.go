package expr

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// InterpolationMode selects how values between stops are sampled.
type InterpolationMode string

const (
	// InterpolationDiscrete holds the value of the nearest stop at or
	// below the zoom.
	InterpolationDiscrete InterpolationMode = "Discrete"
	// InterpolationLinear blends piecewise-linearly between stops.
	InterpolationLinear InterpolationMode = "Linear"
	// InterpolationExponential eases between stops with a base-2 curve,
	// matching how tile scale doubles per zoom level.
	InterpolationExponential InterpolationMode = "Exponential"
)

// Interpolation is a zoom-dependent property: a list of (zoomLevel, value)
// stops plus a sampling mode. Sampling clamps at both ends of the range.
type Interpolation struct {
	Mode       InterpolationMode
	ZoomLevels []float64
	Values     []Value
}

// Eval samples the interpolation at the env's zoom level, so an
// Interpolation can stand anywhere an expression can.
func (in *Interpolation) Eval(env *Env) (Value, error) {
	return in.Sample(env.Zoom), nil
}

// Sample returns the interpolated value at zoom.
func (in *Interpolation) Sample(zoom float64) Value {
	stops := in.ZoomLevels
	if len(stops) == 0 {
		return nil
	}
	if zoom <= stops[0] {
		return in.Values[0]
	}
	if zoom >= stops[len(stops)-1] {
		return in.Values[len(stops)-1]
	}

	// First stop strictly above zoom; the segment is [i-1, i].
	i := sort.SearchFloat64s(stops, zoom)
	if stops[i] == zoom {
		return in.Values[i]
	}

	if in.Mode == InterpolationDiscrete {
		return in.Values[i-1]
	}

	a, aok := ToNumber(in.Values[i-1])
	b, bok := ToNumber(in.Values[i])
	if !aok || !bok {
		// Non-numeric stops (colors, strings) degrade to discrete steps.
		return in.Values[i-1]
	}

	t := (zoom - stops[i-1]) / (stops[i] - stops[i-1])
	if in.Mode == InterpolationExponential {
		t = (math.Exp2(t) - 1) / (math.Exp2(1) - 1)
	}
	return a + (b-a)*t
}

// isInterpolationMap reports whether a decoded JSON object is an
// interpolated-property descriptor.
func isInterpolationMap(m map[string]interface{}) bool {
	_, hasZooms := m["zoomLevels"]
	_, hasValues := m["values"]
	return hasZooms && hasValues
}

// CompileInterpolation builds an Interpolation from its decoded JSON form:
//
//	{"interpolation": "Linear", "zoomLevels": [5, 10], "values": [1, 4]}
//
// Stops must be strictly increasing and match the value count.
func CompileInterpolation(m map[string]interface{}) (*Interpolation, error) {
	mode := InterpolationDiscrete
	if raw, ok := m["interpolation"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, errors.Errorf("interpolation: mode must be a string, got %v", raw)
		}
		switch InterpolationMode(s) {
		case InterpolationDiscrete, InterpolationLinear, InterpolationExponential:
			mode = InterpolationMode(s)
		default:
			return nil, errors.Errorf("interpolation: unknown mode %q", s)
		}
	}

	rawZooms, ok := m["zoomLevels"].([]interface{})
	if !ok {
		return nil, errors.New("interpolation: zoomLevels must be an array")
	}
	rawValues, ok := m["values"].([]interface{})
	if !ok {
		return nil, errors.New("interpolation: values must be an array")
	}
	if len(rawZooms) == 0 || len(rawZooms) != len(rawValues) {
		return nil, errors.Errorf("interpolation: %d zoomLevels for %d values",
			len(rawZooms), len(rawValues))
	}

	in := &Interpolation{
		Mode:       mode,
		ZoomLevels: make([]float64, len(rawZooms)),
		Values:     make([]Value, len(rawValues)),
	}
	for i, z := range rawZooms {
		n, ok := ToNumber(z)
		if !ok {
			return nil, errors.Errorf("interpolation: zoomLevels[%d] is not a number: %v", i, z)
		}
		in.ZoomLevels[i] = n
		if i > 0 && n <= in.ZoomLevels[i-1] {
			return nil, errors.Errorf("interpolation: zoomLevels must be strictly increasing at index %d", i)
		}
	}
	for i, v := range rawValues {
		if n, ok := ToNumber(v); ok {
			in.Values[i] = n
		} else {
			in.Values[i] = v
		}
	}
	return in, nil
}
