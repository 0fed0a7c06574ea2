package expr

import (
	"errors"
	"testing"
)

func mustCompile(t *testing.T, raw interface{}) Expr {
	t.Helper()
	e, err := Compile(raw)
	if err != nil {
		t.Fatalf("compile %v: %v", raw, err)
	}
	return e
}

func eval(t *testing.T, raw interface{}, env *Env) Value {
	t.Helper()
	v, err := mustCompile(t, raw).Eval(env)
	if err != nil {
		t.Fatalf("eval %v: %v", raw, err)
	}
	return v
}

func TestCompileLiterals(t *testing.T) {
	env := &Env{}
	if v := eval(t, "road", env); v != "road" {
		t.Fatalf("string literal = %v, want road", v)
	}
	if v := eval(t, 3.5, env); v != 3.5 {
		t.Fatalf("number literal = %v, want 3.5", v)
	}
	if v := eval(t, true, env); v != true {
		t.Fatalf("bool literal = %v, want true", v)
	}
}

func TestGetAndHas(t *testing.T) {
	env := &Env{Tags: map[string]Value{"kind": "road"}}

	if v := eval(t, []interface{}{"get", "kind"}, env); v != "road" {
		t.Fatalf("get kind = %v, want road", v)
	}
	if v := eval(t, []interface{}{"get", "missing"}, env); v != nil {
		t.Fatalf("get missing = %v, want nil", v)
	}
	if v := eval(t, []interface{}{"has", "kind"}, env); v != true {
		t.Fatalf("has kind = %v, want true", v)
	}
	if v := eval(t, []interface{}{"has", "missing"}, env); v != false {
		t.Fatalf("has missing = %v, want false", v)
	}
}

func TestComparisons(t *testing.T) {
	env := &Env{Tags: map[string]Value{"population": 5000.0, "name": "b"}}

	cases := []struct {
		expr interface{}
		want bool
	}{
		{[]interface{}{"==", []interface{}{"get", "population"}, 5000.0}, true},
		{[]interface{}{"!=", []interface{}{"get", "population"}, 5000.0}, false},
		{[]interface{}{"<", []interface{}{"get", "population"}, 10000.0}, true},
		{[]interface{}{"<=", []interface{}{"get", "population"}, 5000.0}, true},
		{[]interface{}{">", []interface{}{"get", "population"}, 5000.0}, false},
		{[]interface{}{">=", []interface{}{"get", "population"}, 5000.0}, true},
		{[]interface{}{"<", []interface{}{"get", "name"}, "c"}, true},
		{[]interface{}{">", []interface{}{"get", "name"}, "c"}, false},
	}
	for _, c := range cases {
		if v := eval(t, c.expr, env); v != c.want {
			t.Fatalf("%v = %v, want %v", c.expr, v, c.want)
		}
	}
}

func TestBooleanConnectives(t *testing.T) {
	env := &Env{}
	if v := eval(t, []interface{}{"all", true, true, false}, env); v != false {
		t.Fatalf("all = %v, want false", v)
	}
	if v := eval(t, []interface{}{"any", false, true}, env); v != true {
		t.Fatalf("any = %v, want true", v)
	}
	if v := eval(t, []interface{}{"none", false, false}, env); v != true {
		t.Fatalf("none = %v, want true", v)
	}
	if v := eval(t, []interface{}{"!", true}, env); v != false {
		t.Fatalf("! = %v, want false", v)
	}
}

func TestArithmetic(t *testing.T) {
	env := &Env{Zoom: 10}
	if v := eval(t, []interface{}{"+", 1.0, 2.0, 3.0}, env); v != 6.0 {
		t.Fatalf("+ = %v, want 6", v)
	}
	if v := eval(t, []interface{}{"*", []interface{}{"zoom"}, 2.0}, env); v != 20.0 {
		t.Fatalf("zoom*2 = %v, want 20", v)
	}
	if v := eval(t, []interface{}{"min", 4.0, 2.0, 9.0}, env); v != 2.0 {
		t.Fatalf("min = %v, want 2", v)
	}

	_, err := mustCompile(t, []interface{}{"/", 1.0, 0.0}).Eval(env)
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("division by zero error = %v, want EvalError", err)
	}
}

func TestStringOps(t *testing.T) {
	env := &Env{Tags: map[string]Value{"ref": "A7"}}
	if v := eval(t, []interface{}{"concat", "hwy-", []interface{}{"get", "ref"}}, env); v != "hwy-A7" {
		t.Fatalf("concat = %v", v)
	}
	if v := eval(t, []interface{}{"downcase", "ROAD"}, env); v != "road" {
		t.Fatalf("downcase = %v", v)
	}
	if v := eval(t, []interface{}{"length", "abc"}, env); v != 3.0 {
		t.Fatalf("length = %v", v)
	}
}

func TestInOperator(t *testing.T) {
	env := &Env{Tags: map[string]Value{"class": "residential"}}
	in := []interface{}{"in", []interface{}{"get", "class"}, "residential", "suburb"}
	if v := eval(t, in, env); v != true {
		t.Fatalf("in = %v, want true", v)
	}
	env.Tags["class"] = "park"
	if v := eval(t, in, env); v != false {
		t.Fatalf("in = %v, want false", v)
	}
}

func TestTypeErrors(t *testing.T) {
	env := &Env{}
	for _, raw := range []interface{}{
		[]interface{}{"+", "a", 1.0},
		[]interface{}{"downcase", 5.0},
		[]interface{}{"<", true, 1.0},
	} {
		_, err := mustCompile(t, raw).Eval(env)
		var evalErr *EvalError
		if !errors.As(err, &evalErr) {
			t.Fatalf("%v: err = %v, want EvalError", raw, err)
		}
	}
}

func TestCompileRejectsUnknownOperator(t *testing.T) {
	if _, err := Compile([]interface{}{"frobnicate", 1.0}); err == nil {
		t.Fatal("unknown operator compiled")
	}
	if _, err := Compile([]interface{}{"get", 1.0}); err == nil {
		t.Fatal("get with non-string key compiled")
	}
	if _, err := Compile([]interface{}{}); err == nil {
		t.Fatal("empty operator array compiled")
	}
}

type fakeRefs map[string]Value

func (f fakeRefs) ResolveRef(name string) (Value, error) {
	v, ok := f[name]
	if !ok {
		return nil, &EvalError{Op: "ref", Reason: "unresolved " + name}
	}
	return v, nil
}

func TestRefResolution(t *testing.T) {
	env := &Env{Refs: fakeRefs{"roadColor": "#f00"}}
	if v := eval(t, []interface{}{"ref", "roadColor"}, env); v != "#f00" {
		t.Fatalf("ref = %v, want #f00", v)
	}

	_, err := mustCompile(t, []interface{}{"ref", "missing"}).Eval(env)
	if err == nil {
		t.Fatal("unresolved ref evaluated")
	}
}

func TestRefObjectForm(t *testing.T) {
	env := &Env{Refs: fakeRefs{"roadColor": "#f00"}}
	if v := eval(t, map[string]interface{}{"$ref": "roadColor"}, env); v != "#f00" {
		t.Fatalf("$ref = %v, want #f00", v)
	}

	// Extra keys mean it is not a reference object.
	if _, err := Compile(map[string]interface{}{"$ref": "x", "other": 1.0}); err == nil {
		t.Fatal("object with extra keys compiled as a reference")
	}
}

func TestRefYieldsDynamicValue(t *testing.T) {
	// A definition may hold an interpolation; ref evaluation samples it
	// at the env's zoom.
	interp := &Interpolation{
		Mode:       InterpolationLinear,
		ZoomLevels: []float64{0, 10},
		Values:     []Value{0.0, 100.0},
	}
	env := &Env{Zoom: 5, Refs: fakeRefs{"width": interp}}
	if v := eval(t, []interface{}{"ref", "width"}, env); v != 50.0 {
		t.Fatalf("ref interpolation = %v, want 50", v)
	}
}

func TestDeterminism(t *testing.T) {
	env := &Env{Tags: map[string]Value{"kind": "road"}, Zoom: 8}
	e := mustCompile(t, []interface{}{"all",
		[]interface{}{"==", []interface{}{"get", "kind"}, "road"},
		[]interface{}{">=", []interface{}{"zoom"}, 5.0},
	})
	for i := 0; i < 10; i++ {
		v, err := e.Eval(env)
		if err != nil || v != true {
			t.Fatalf("iteration %d: v=%v err=%v", i, v, err)
		}
	}
}
