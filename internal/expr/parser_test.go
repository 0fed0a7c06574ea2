package expr

import "testing"

func parseEval(t *testing.T, src string, env *Env) Value {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	v, err := e.Eval(env)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestParseConditions(t *testing.T) {
	env := &Env{
		Tags: map[string]Value{
			"kind":       "road",
			"class":      "residential",
			"population": 5000.0,
			"name":       "Main St",
		},
		Zoom: 10,
	}

	cases := []struct {
		src  string
		want bool
	}{
		{`kind == 'road'`, true},
		{`kind == 'water'`, false},
		{`kind != 'water'`, true},
		{`population > 1000`, true},
		{`population >= 5000`, true},
		{`population < 5000`, false},
		{`$zoom >= 10`, true},
		{`$zoom > 10`, false},
		{`kind == 'road' && $zoom >= 5`, true},
		{`kind == 'water' || population > 1000`, true},
		{`kind == 'water' || population > 10000`, false},
		{`!(kind == 'water')`, true},
		{`has name`, true},
		{`has ref`, false},
		{`class in ('residential', 'suburb')`, true},
		{`class in ('motorway', 'trunk')`, false},
		{`population / 1000 == 5`, true},
		{`population - 4000 > 500`, true},
		{`true`, true},
		{`false`, false},
	}
	for _, c := range cases {
		if v := parseEval(t, c.src, env); v != c.want {
			t.Fatalf("%q = %v, want %v", c.src, v, c.want)
		}
	}
}

func TestParsePrecedence(t *testing.T) {
	env := &Env{}
	// && binds tighter than ||.
	if v := parseEval(t, `true || false && false`, env); v != true {
		t.Fatalf("precedence: got %v, want true", v)
	}
	// * binds tighter than +.
	if v := parseEval(t, `2 + 3 * 4 == 14`, env); v != true {
		t.Fatalf("arithmetic precedence failed")
	}
}

func TestParseDoubleQuotes(t *testing.T) {
	env := &Env{Tags: map[string]Value{"kind": "road"}}
	if v := parseEval(t, `kind == "road"`, env); v != true {
		t.Fatalf("double-quoted string comparison failed")
	}
}

func TestParseNamespacedTagKeys(t *testing.T) {
	env := &Env{Tags: map[string]Value{"addr:street": "High St"}}
	if v := parseEval(t, `addr:street == 'High St'`, env); v != true {
		t.Fatalf("namespaced tag lookup failed")
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`kind ==`,
		`(kind == 'road'`,
		`kind in ()`,
		`kind == 'unterminated`,
		`@bad`,
		// A valid prefix must not mask trailing garbage.
		`kind == 'road' @ gibberish`,
		`kind == 'road' 'extra'`,
		`population > 'unterminated`,
	} {
		if _, err := Parse(src); err == nil {
			t.Fatalf("%q parsed without error", src)
		}
	}
}
