// Package theme holds the map styling configuration: style sets, reusable
// definitions, priority tables and opaque scene settings. A Theme loads from
// JSON or YAML, flattens its extends chain base-first, and is immutable once
// handed to the style compiler.
package theme

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Theme is the root styling configuration document.
type Theme struct {
	Schema  string   `json:"$schema,omitempty"`
	Extends []string `json:"-"`

	// Styles maps style-set names to ordered rule lists.
	Styles map[string][]*Style `json:"styles,omitempty"`

	// Definitions holds reusable named values, expressions and style
	// fragments referenced via ["ref", name].
	Definitions Definitions `json:"definitions,omitempty"`

	// Priorities and LabelPriorities are symbolic ordering tables. The
	// position of a (group, category) pair decides sort order among
	// techniques with equal render order; first entry wins.
	Priorities      []StylePriority `json:"priorities,omitempty"`
	LabelPriorities []StylePriority `json:"labelPriorities,omitempty"`

	// Scene configuration this engine does not interpret but must carry
	// through extends merging for the renderer.
	Lights       json.RawMessage `json:"lights,omitempty"`
	Sky          json.RawMessage `json:"sky,omitempty"`
	Fog          json.RawMessage `json:"fog,omitempty"`
	Clear        json.RawMessage `json:"clearColor,omitempty"`
	TextStyles   json.RawMessage `json:"textStyles,omitempty"`
	Images       json.RawMessage `json:"images,omitempty"`
	FontCatalogs json.RawMessage `json:"fontCatalogs,omitempty"`
	POITables    json.RawMessage `json:"poiTables,omitempty"`
}

// StylePriority identifies a style group for priority ordering.
type StylePriority struct {
	Group    string `json:"group"`
	Category string `json:"category,omitempty"`
}

// Style is one declaration in a style set: a match condition plus a
// rendering technique and its attributes. Attributes may be literals,
// expressions or interpolations; they stay in raw decoded form until the
// style compiler takes over.
type Style struct {
	// When is the match condition, string syntax or array expression.
	// Mandatory for every rule.
	When interface{} `json:"when"`

	// Layer restricts the rule to one source layer; empty matches any.
	Layer string `json:"layer,omitempty"`

	// Final stops rule evaluation for a feature after this rule matches.
	Final bool `json:"final,omitempty"`

	// Technique names the rendering recipe ("fill", "solid-line", ...).
	Technique string `json:"technique"`

	// StyleSet and Category feed the priorities lookup.
	StyleSet string `json:"styleSet,omitempty"`
	Category string `json:"category,omitempty"`

	RenderOrder  interface{} `json:"renderOrder,omitempty"`
	MinZoomLevel interface{} `json:"minZoomLevel,omitempty"`
	MaxZoomLevel interface{} `json:"maxZoomLevel,omitempty"`

	Transient bool `json:"transient,omitempty"`
	Debug     bool `json:"debug,omitempty"`

	// Attr holds technique attribute overrides; entries win over
	// same-named top-level attributes.
	Attr map[string]interface{} `json:"attr,omitempty"`

	// Attrs collects the technique-specific top-level attributes
	// (lineColor, lineWidth, ...) that are not part of the fixed schema.
	Attrs map[string]interface{} `json:"-"`

	// Ref is set instead of the fields above when the declaration is a
	// ["ref", name] placeholder for a definition-held style fragment.
	Ref string `json:"-"`
}

// fixed style keys handled by the Style struct itself; anything else is a
// technique attribute.
var styleKeys = map[string]bool{
	"when": true, "layer": true, "final": true, "technique": true,
	"styleSet": true, "category": true, "renderOrder": true,
	"minZoomLevel": true, "maxZoomLevel": true, "transient": true,
	"debug": true, "attr": true, "description": true, "id": true,
}

// UnmarshalJSON decodes either a concrete style object or a ["ref", name]
// placeholder, splitting unknown keys off into Attrs.
func (s *Style) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.fromRaw(raw)
}

func (s *Style) fromRaw(raw interface{}) error {
	switch v := raw.(type) {
	case []interface{}:
		name, ok := refName(v)
		if !ok {
			return errors.Errorf("theme: style declaration array must be a ref, got %v", v)
		}
		s.Ref = name
		return nil
	case map[string]interface{}:
		return s.fromMap(v)
	default:
		return errors.Errorf("theme: style declaration must be an object or ref, got %T", raw)
	}
}

func (s *Style) fromMap(m map[string]interface{}) error {
	s.When = m["when"]
	s.Layer, _ = m["layer"].(string)
	s.Final, _ = m["final"].(bool)
	s.Technique, _ = m["technique"].(string)
	s.StyleSet, _ = m["styleSet"].(string)
	s.Category, _ = m["category"].(string)
	s.RenderOrder = m["renderOrder"]
	s.MinZoomLevel = m["minZoomLevel"]
	s.MaxZoomLevel = m["maxZoomLevel"]
	s.Transient, _ = m["transient"].(bool)
	s.Debug, _ = m["debug"].(bool)
	if attr, ok := m["attr"].(map[string]interface{}); ok {
		s.Attr = attr
	}
	for k, v := range m {
		if styleKeys[k] {
			continue
		}
		if s.Attrs == nil {
			s.Attrs = make(map[string]interface{})
		}
		s.Attrs[k] = v
	}
	return nil
}

// refName returns the target of a ["ref", name] array.
func refName(arr []interface{}) (string, bool) {
	if len(arr) != 2 {
		return "", false
	}
	if op, ok := arr[0].(string); !ok || op != "ref" {
		return "", false
	}
	name, ok := arr[1].(string)
	return name, ok
}

// dollarRefName returns the target of a {"$ref": name} object.
func dollarRefName(m map[string]interface{}) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m["$ref"].(string)
	return name, ok
}

type rawTheme struct {
	Theme
	ExtendsRaw interface{} `json:"extends,omitempty"`
}

// Load reads a theme document from disk, following and merging its extends
// chain base-first. Relative extends paths resolve against the referencing
// file. JSON and YAML are both accepted, chosen by file extension.
func Load(path string) (*Theme, error) {
	return load(path, map[string]bool{})
}

func load(path string, visiting map[string]bool) (*Theme, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "theme: resolving %q", path)
	}
	if visiting[abs] {
		return nil, errors.Errorf("theme: extends cycle through %q", path)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "theme: reading %q", path)
	}

	t, err := Parse(data, strings.ToLower(filepath.Ext(abs)))
	if err != nil {
		return nil, errors.Wrapf(err, "theme: parsing %q", path)
	}
	return t.resolveExtends(filepath.Dir(abs), visiting)
}

// ResolveExtends flattens the theme's extends chain, resolving relative base
// paths against dir. Themes without extends come back unchanged. The save
// path uses this so a validated theme matches what Load produces later.
func (t *Theme) ResolveExtends(dir string) (*Theme, error) {
	return t.resolveExtends(dir, map[string]bool{})
}

func (t *Theme) resolveExtends(dir string, visiting map[string]bool) (*Theme, error) {
	if len(t.Extends) == 0 {
		return t, nil
	}

	merged := &Theme{}
	for _, base := range t.Extends {
		if !filepath.IsAbs(base) {
			base = filepath.Join(dir, base)
		}
		bt, err := load(base, visiting)
		if err != nil {
			return nil, err
		}
		merged = Merge(merged, bt)
	}
	t.Extends = nil
	return Merge(merged, t), nil
}

// Parse decodes a theme document. ext selects the format: ".yml"/".yaml"
// parse as YAML, anything else as JSON.
func Parse(data []byte, ext string) (*Theme, error) {
	if ext == ".yml" || ext == ".yaml" {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		// Re-encode so the JSON path below is the single decoder.
		var err error
		data, err = json.Marshal(normalizeYAML(doc))
		if err != nil {
			return nil, err
		}
	}

	var raw rawTheme
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	t := raw.Theme

	switch ex := raw.ExtendsRaw.(type) {
	case nil:
	case string:
		t.Extends = []string{ex}
	case []interface{}:
		for _, e := range ex {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Errorf("theme: extends entries must be strings, got %v", e)
			}
			t.Extends = append(t.Extends, s)
		}
	default:
		return nil, errors.Errorf("theme: extends must be a string or array, got %T", raw.ExtendsRaw)
	}
	return &t, nil
}

// Merge combines a base theme with a child; child values win. Style sets and
// definitions merge per-key, scalar scene fields replace wholesale.
func Merge(base, child *Theme) *Theme {
	out := *base

	if child.Schema != "" {
		out.Schema = child.Schema
	}

	if len(child.Styles) > 0 {
		styles := make(map[string][]*Style, len(base.Styles)+len(child.Styles))
		for k, v := range base.Styles {
			styles[k] = v
		}
		for k, v := range child.Styles {
			styles[k] = v
		}
		out.Styles = styles
	}

	if len(child.Definitions) > 0 {
		defs := make(Definitions, len(base.Definitions)+len(child.Definitions))
		for k, v := range base.Definitions {
			defs[k] = v
		}
		for k, v := range child.Definitions {
			defs[k] = v
		}
		out.Definitions = defs
	}

	if len(child.Priorities) > 0 {
		out.Priorities = child.Priorities
	}
	if len(child.LabelPriorities) > 0 {
		out.LabelPriorities = child.LabelPriorities
	}

	for _, f := range []struct {
		dst *json.RawMessage
		src json.RawMessage
	}{
		{&out.Lights, child.Lights},
		{&out.Sky, child.Sky},
		{&out.Fog, child.Fog},
		{&out.Clear, child.Clear},
		{&out.TextStyles, child.TextStyles},
		{&out.Images, child.Images},
		{&out.FontCatalogs, child.FontCatalogs},
		{&out.POITables, child.POITables},
	} {
		if len(f.src) > 0 {
			*f.dst = f.src
		}
	}

	return &out
}

// StyleSet returns the named rule list, with definition-held style fragments
// substituted in. Unresolved fragment refs are an error.
func (t *Theme) StyleSet(name string) ([]*Style, error) {
	rules, ok := t.Styles[name]
	if !ok {
		return nil, errors.Errorf("theme: unknown style set %q", name)
	}

	out := make([]*Style, 0, len(rules))
	for i, rule := range rules {
		if rule.Ref == "" {
			out = append(out, rule)
			continue
		}
		resolved, err := t.Definitions.Resolve(rule.Ref)
		if err != nil {
			return nil, errors.Wrapf(err, "theme: style set %q rule %d", name, i)
		}
		m, ok := resolved.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("theme: style set %q rule %d: ref %q is not a style fragment",
				name, i, rule.Ref)
		}
		frag := &Style{}
		if err := frag.fromMap(m); err != nil {
			return nil, errors.Wrapf(err, "theme: style set %q rule %d", name, i)
		}
		out = append(out, frag)
	}
	return out, nil
}

// StyleSetNames lists the style sets defined by the theme.
func (t *Theme) StyleSetNames() []string {
	names := make([]string, 0, len(t.Styles))
	for name := range t.Styles {
		names = append(names, name)
	}
	return names
}

// normalizeYAML converts YAML's map[string]interface{} trees into
// JSON-marshalable form. yaml.v3 already keys maps by string but can emit
// map[interface{}]interface{} for merged keys in older documents.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeYAML(val)
			}
		}
		return out
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	default:
		return v
	}
}
