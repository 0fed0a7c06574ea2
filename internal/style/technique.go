// Package style compiles a theme's style sets into per-feature technique
// selection. A compiled Evaluator is immutable and may be shared across
// concurrent tile decodes.
package style

import (
	"github.com/joeblew999/plat-style/internal/expr"
)

// GeometryKind classifies decoded feature geometry.
type GeometryKind uint8

const (
	// KindPoint covers points and multipoints.
	KindPoint GeometryKind = 1 << iota
	// KindLine covers linestrings and multilinestrings.
	KindLine
	// KindPolygon covers polygons and multipolygons.
	KindPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// kindMask is a set of geometry kinds.
type kindMask uint8

const anyKind = kindMask(KindPoint | KindLine | KindPolygon)

func (m kindMask) has(k GeometryKind) bool { return m&kindMask(k) != 0 }

// techniqueKinds maps each known technique to the geometry kinds it can
// render. Unknown names fail compilation. Label techniques accept every
// kind: labels anchor to points, line midpoints and polygon centroids.
var techniqueKinds = map[string]kindMask{
	"fill":             kindMask(KindPolygon),
	"standard":         kindMask(KindPolygon),
	"extruded-polygon": kindMask(KindPolygon),
	"terrain":          kindMask(KindPolygon),

	"solid-line":    kindMask(KindLine | KindPolygon),
	"dashed-line":   kindMask(KindLine | KindPolygon),
	"line":          kindMask(KindLine | KindPolygon),
	"extruded-line": kindMask(KindLine),

	"circles": kindMask(KindPoint),
	"squares": kindMask(KindPoint),

	"text":         anyKind,
	"labeled-icon": anyKind,
	"shader":       anyKind,
	"none":         anyKind,
}

// labelTechniques resolve their priority through the theme's labelPriorities
// table rather than priorities.
var labelTechniques = map[string]bool{
	"text":         true,
	"labeled-icon": true,
}

// Technique is a fully evaluated rendering recipe for one matched feature.
// All attribute values are concrete; no expression survives into a
// Technique.
type Technique struct {
	// Name is the technique discriminant from the style rule.
	Name string `json:"name"`

	// Attrs holds the resolved technique attributes for this feature at
	// this zoom.
	Attrs map[string]expr.Value `json:"attrs,omitempty"`

	// RenderOrder keys draw ordering; defaults to the rule's declaration
	// index when the rule does not set one.
	RenderOrder float64 `json:"renderOrder"`

	// PriorityIndex is the rule's position in the theme's priority table,
	// or -1 when the (styleSet, category) pair is not listed. Lower index
	// means earlier placement, used to break render-order ties.
	PriorityIndex int `json:"priorityIndex,omitempty"`

	// Category and StyleSet echo the matched rule's priority grouping.
	StyleSet string `json:"styleSet,omitempty"`
	Category string `json:"category,omitempty"`

	Transient bool `json:"transient,omitempty"`
	Debug     bool `json:"debug,omitempty"`
}
