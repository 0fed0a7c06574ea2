package style

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-style/internal/expr"
	"github.com/joeblew999/plat-style/internal/theme"
)

// CompileError reports a malformed style set: the theme must be fixed before
// any tile can be decoded against it.
type CompileError struct {
	StyleSet string
	Rule     int
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("style: compiling %q rule %d: %v", e.StyleSet, e.Rule, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// rule is one compiled style declaration.
type rule struct {
	index     int
	layer     string
	when      expr.Expr
	minZoom   expr.Expr
	maxZoom   expr.Expr
	technique string
	kinds     kindMask
	final     bool
	transient bool
	debug     bool

	// renderOrder is nil when the rule relies on the declaration-index
	// default.
	renderOrder expr.Expr

	// attrs carries the merged technique attributes, attr overrides
	// applied over the top-level ones.
	attrs map[string]expr.Expr

	styleSet      string
	category      string
	priorityIndex int
}

// Evaluator is a style set compiled into an indexed matching structure.
// It is immutable after Compile and safe for concurrent use.
type Evaluator struct {
	name  string
	rules []*rule
	defs  theme.Definitions

	// anyLayer is set when some rule matches every layer; layerKinds
	// indexes the kinds reachable per restricted layer.
	anyLayer     bool
	anyKinds     kindMask
	layerKinds   map[string]kindMask
	layerPresent map[string]bool

	log *logrus.Entry
}

// Compile builds an Evaluator for one of the theme's style sets. It
// validates technique names, the mandatory when condition, and the
// definitions table (dangling and cyclic refs fail here, not per tile).
func Compile(styleSet string, t *theme.Theme) (*Evaluator, error) {
	decls, err := t.StyleSet(styleSet)
	if err != nil {
		return nil, &CompileError{StyleSet: styleSet, Rule: -1, Err: err}
	}

	if err := t.Definitions.Validate(); err != nil {
		return nil, &CompileError{StyleSet: styleSet, Rule: -1, Err: err}
	}

	ev := &Evaluator{
		name:         styleSet,
		rules:        make([]*rule, 0, len(decls)),
		defs:         t.Definitions,
		layerKinds:   make(map[string]kindMask),
		layerPresent: make(map[string]bool),
		log:          logrus.WithField("styleSet", styleSet),
	}

	for i, decl := range decls {
		r, err := compileRule(i, decl, t)
		if err != nil {
			return nil, &CompileError{StyleSet: styleSet, Rule: i, Err: err}
		}
		ev.rules = append(ev.rules, r)

		if r.layer == "" {
			ev.anyLayer = true
			ev.anyKinds |= r.kinds
		} else {
			ev.layerPresent[r.layer] = true
			ev.layerKinds[r.layer] |= r.kinds
		}
	}

	return ev, nil
}

func compileRule(index int, decl *theme.Style, t *theme.Theme) (*rule, error) {
	if decl.When == nil {
		return nil, errors.New("missing when condition")
	}
	if decl.Technique == "" {
		return nil, errors.New("missing technique")
	}
	kinds, ok := techniqueKinds[decl.Technique]
	if !ok {
		return nil, errors.Errorf("unknown technique %q", decl.Technique)
	}

	r := &rule{
		index:     index,
		layer:     decl.Layer,
		technique: decl.Technique,
		kinds:     kinds,
		final:     decl.Final,
		transient: decl.Transient,
		debug:     decl.Debug,
		styleSet:  decl.StyleSet,
		category:  decl.Category,
	}

	var err error
	if s, isString := decl.When.(string); isString {
		r.when, err = expr.Parse(s)
	} else {
		r.when, err = expr.Compile(decl.When)
	}
	if err != nil {
		return nil, errors.Wrap(err, "when")
	}

	if decl.MinZoomLevel != nil {
		if r.minZoom, err = expr.Compile(decl.MinZoomLevel); err != nil {
			return nil, errors.Wrap(err, "minZoomLevel")
		}
	}
	if decl.MaxZoomLevel != nil {
		if r.maxZoom, err = expr.Compile(decl.MaxZoomLevel); err != nil {
			return nil, errors.Wrap(err, "maxZoomLevel")
		}
	}
	if decl.RenderOrder != nil {
		if r.renderOrder, err = expr.Compile(decl.RenderOrder); err != nil {
			return nil, errors.Wrap(err, "renderOrder")
		}
	}

	// attr entries strictly override top-level attributes of the same name.
	r.attrs = make(map[string]expr.Expr, len(decl.Attrs)+len(decl.Attr))
	for name, raw := range decl.Attrs {
		if r.attrs[name], err = expr.Compile(raw); err != nil {
			return nil, errors.Wrapf(err, "attribute %q", name)
		}
	}
	for name, raw := range decl.Attr {
		if r.attrs[name], err = expr.Compile(raw); err != nil {
			return nil, errors.Wrapf(err, "attr.%q", name)
		}
	}

	r.priorityIndex = priorityIndex(decl, t)
	return r, nil
}

// priorityIndex finds the rule's position in the theme's priority table.
// Label techniques consult labelPriorities, everything else priorities. An
// exact (group, category) entry beats a category-less group entry.
func priorityIndex(decl *theme.Style, t *theme.Theme) int {
	if decl.StyleSet == "" {
		return -1
	}
	table := t.Priorities
	if labelTechniques[decl.Technique] {
		table = t.LabelPriorities
	}

	groupOnly := -1
	for i, p := range table {
		if p.Group != decl.StyleSet {
			continue
		}
		if p.Category == decl.Category {
			return i
		}
		if p.Category == "" && groupOnly < 0 {
			groupOnly = i
		}
	}
	return groupOnly
}

// Name returns the compiled style set's name.
func (ev *Evaluator) Name() string { return ev.name }

// WantsLayer reports whether any rule could match features of the layer.
func (ev *Evaluator) WantsLayer(layer string) bool {
	return ev.anyLayer || ev.layerPresent[layer]
}

// WantsFeature reports whether some rule for the layer is compatible with
// the geometry kind. The check is technique-shape only; when conditions are
// not evaluated, keeping the filter conservative.
func (ev *Evaluator) WantsFeature(layer string, kind GeometryKind) bool {
	if ev.anyKinds.has(kind) {
		return true
	}
	return ev.layerKinds[layer].has(kind)
}

// MatchingTechniques evaluates the style set for one feature and returns
// the matching techniques in render order. Per-rule evaluation failures are
// logged and treated as non-matches; this method never fails.
func (ev *Evaluator) MatchingTechniques(layer string, tags map[string]expr.Value, zoom float64) []Technique {
	return ev.match(layer, anyKind, tags, zoom)
}

// MatchingTechniquesForKind additionally skips rules whose technique cannot
// render the feature's geometry kind, so a filtered-out (layer, kind) pair
// never yields a technique. The decoder uses this form.
func (ev *Evaluator) MatchingTechniquesForKind(layer string, kind GeometryKind, tags map[string]expr.Value, zoom float64) []Technique {
	return ev.match(layer, kindMask(kind), tags, zoom)
}

func (ev *Evaluator) match(layer string, kinds kindMask, tags map[string]expr.Value, zoom float64) []Technique {
	env := &expr.Env{Tags: tags, Zoom: zoom, Refs: ev.defs}

	var out []Technique
	for _, r := range ev.rules {
		if r.layer != "" && r.layer != layer {
			continue
		}
		if r.kinds&kinds == 0 {
			continue
		}

		if !ev.zoomInRange(r, env, zoom) {
			continue
		}

		matched, err := r.when.Eval(env)
		if err != nil {
			ev.log.WithError(err).WithField("rule", r.index).
				Warn("when condition failed, skipping rule")
			continue
		}
		if !expr.Truthy(matched) {
			continue
		}

		tech, err := ev.resolve(r, env)
		if err != nil {
			ev.log.WithError(err).WithField("rule", r.index).
				Warn("technique resolution failed, skipping rule")
			continue
		}
		out = append(out, tech)

		if r.final {
			break
		}
	}

	// Stable sort keeps declaration order; the priority table only breaks
	// exact render-order ties.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RenderOrder != b.RenderOrder {
			return a.RenderOrder < b.RenderOrder
		}
		if a.PriorityIndex >= 0 && b.PriorityIndex >= 0 {
			return a.PriorityIndex < b.PriorityIndex
		}
		return false
	})

	return out
}

// zoomInRange checks the rule's optional zoom bounds, both inclusive.
// Bounds may themselves be expressions; a failing bound skips the rule.
func (ev *Evaluator) zoomInRange(r *rule, env *expr.Env, zoom float64) bool {
	if r.minZoom != nil {
		min, ok := ev.evalNumber(r, r.minZoom, env, "minZoomLevel")
		if !ok || zoom < min {
			return false
		}
	}
	if r.maxZoom != nil {
		max, ok := ev.evalNumber(r, r.maxZoom, env, "maxZoomLevel")
		if !ok || zoom > max {
			return false
		}
	}
	return true
}

func (ev *Evaluator) evalNumber(r *rule, e expr.Expr, env *expr.Env, what string) (float64, bool) {
	v, err := e.Eval(env)
	if err != nil {
		ev.log.WithError(err).WithField("rule", r.index).Warnf("%s failed, skipping rule", what)
		return 0, false
	}
	n, ok := expr.ToNumber(v)
	if !ok {
		ev.log.WithField("rule", r.index).Warnf("%s is not a number: %v", what, v)
		return 0, false
	}
	return n, true
}

// resolve evaluates every attribute of a matched rule into a concrete
// Technique.
func (ev *Evaluator) resolve(r *rule, env *expr.Env) (Technique, error) {
	tech := Technique{
		Name:          r.technique,
		RenderOrder:   float64(r.index),
		PriorityIndex: r.priorityIndex,
		StyleSet:      r.styleSet,
		Category:      r.category,
		Transient:     r.transient,
		Debug:         r.debug,
	}

	if r.renderOrder != nil {
		v, err := r.renderOrder.Eval(env)
		if err != nil {
			return Technique{}, errors.Wrap(err, "renderOrder")
		}
		n, ok := expr.ToNumber(v)
		if !ok {
			return Technique{}, errors.Errorf("renderOrder is not a number: %v", v)
		}
		tech.RenderOrder = n
	}

	if len(r.attrs) > 0 {
		tech.Attrs = make(map[string]expr.Value, len(r.attrs))
		for name, e := range r.attrs {
			v, err := e.Eval(env)
			if err != nil {
				return Technique{}, errors.Wrapf(err, "attribute %q", name)
			}
			tech.Attrs[name] = v
		}
	}

	return tech, nil
}
