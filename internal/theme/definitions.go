package theme

import (
	"fmt"

	"github.com/joeblew999/plat-style/internal/expr"
)

// Definitions is the theme's named-value table. A definition is a literal,
// an expression, a boxed value ({type, value, description}) or a style
// fragment, and may point at another definition via ["ref", name].
type Definitions map[string]interface{}

// UnresolvedReferenceError reports a ref to a name the table does not hold.
type UnresolvedReferenceError struct {
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("theme: unresolved reference %q", e.Name)
}

// CyclicReferenceError reports a definition chain that loops back on itself.
type CyclicReferenceError struct {
	Name string
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("theme: cyclic reference through %q", e.Name)
}

// Resolve follows name through chained refs until a literal, boxed or style
// value is reached. Boxed wrappers are returned as-is; their dynamic value
// part is evaluated lazily at feature-match time, not here, so one
// definition can yield different concrete values at different zooms.
func (d Definitions) Resolve(name string) (interface{}, error) {
	seen := map[string]bool{}
	for {
		if seen[name] {
			return nil, &CyclicReferenceError{Name: name}
		}
		seen[name] = true

		v, ok := d[name]
		if !ok {
			return nil, &UnresolvedReferenceError{Name: name}
		}

		if arr, isArr := v.([]interface{}); isArr {
			if next, isRef := refName(arr); isRef {
				name = next
				continue
			}
		}
		if m, isMap := v.(map[string]interface{}); isMap {
			if next, isRef := dollarRefName(m); isRef {
				name = next
				continue
			}
		}
		return v, nil
	}
}

// Validate resolves every definition once so cyclic and dangling refs
// surface at compile time instead of during tile decoding, and checks that
// boxed definitions carry a value matching their declared type.
func (d Definitions) Validate() error {
	for name := range d {
		v, err := d.Resolve(name)
		if err != nil {
			return err
		}
		boxed, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		declared, _ := boxed["type"].(string)
		inner, hasValue := boxed["value"]
		if declared == "" || !hasValue {
			continue
		}
		if !boxedValueMatches(declared, inner) {
			return fmt.Errorf("theme: definition %q: value %v does not match declared type %q",
				name, inner, declared)
		}
	}
	return nil
}

// boxedValueMatches checks a boxed definition's value against its declared
// type. Expressions and interpolations are dynamic and pass for any type;
// their result shape is only known per feature.
func boxedValueMatches(declared string, v interface{}) bool {
	switch v.(type) {
	case []interface{}, map[string]interface{}:
		return true
	}
	switch declared {
	case "color", "string", "selector":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := expr.ToNumber(v)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

// ResolveRef implements expr.RefResolver: it resolves a definition down to
// an evaluatable value. Boxed definitions contribute their value part, which
// may itself be an expression or interpolation and is compiled here.
func (d Definitions) ResolveRef(name string) (expr.Value, error) {
	v, err := d.Resolve(name)
	if err != nil {
		return nil, err
	}

	if boxed, ok := v.(map[string]interface{}); ok {
		if inner, ok := boxed["value"]; ok {
			v = inner
		}
	}

	switch v.(type) {
	case []interface{}, map[string]interface{}:
		e, err := expr.Compile(v)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return v, nil
	}
}

var _ expr.RefResolver = Definitions(nil)
