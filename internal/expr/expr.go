// Package expr evaluates the conditional-expression language used by style
// rules: boolean connectives, comparisons, arithmetic, string operators,
// feature-tag lookups, zoom queries and zoom interpolation.
//
// Expressions are compiled once from their JSON form ([operator, args...]
// arrays or scalar literals) into an immutable tree, then evaluated per
// feature against an Env. Evaluation is side-effect free and safe to repeat.
package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Value is the result of evaluating an expression: string, float64, bool
// or nil.
type Value interface{}

// RefResolver resolves a "ref" operator against a definitions table.
// The theme package provides the concrete implementation.
type RefResolver interface {
	ResolveRef(name string) (Value, error)
}

// Env supplies per-feature evaluation inputs.
type Env struct {
	// Tags is the feature's attribute map.
	Tags map[string]Value
	// Zoom is the tile zoom as a floating value.
	Zoom float64
	// Refs resolves "ref" expressions. May be nil if the expression
	// contains no refs.
	Refs RefResolver
}

// Lookup returns the tag value for key.
func (e *Env) Lookup(key string) (Value, bool) {
	v, ok := e.Tags[key]
	return v, ok
}

// EvalError reports a recoverable per-feature evaluation failure: wrong
// operator arity, a type mismatch, or an unresolvable ref.
type EvalError struct {
	Op     string
	Reason string
}

func (e *EvalError) Error() string {
	if e.Op == "" {
		return "expr: " + e.Reason
	}
	return fmt.Sprintf("expr: %q: %s", e.Op, e.Reason)
}

func evalErrorf(op, format string, args ...interface{}) error {
	return &EvalError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Expr is a compiled expression node.
type Expr interface {
	// Eval evaluates the node against env.
	Eval(env *Env) (Value, error)
}

// Literal is a constant value.
type Literal struct {
	Value Value
}

func (l Literal) Eval(*Env) (Value, error) { return l.Value, nil }

// Get reads a feature tag; missing tags evaluate to nil.
type Get struct {
	Key string
}

func (g Get) Eval(env *Env) (Value, error) {
	v, _ := env.Lookup(g.Key)
	return v, nil
}

// Has reports whether a feature tag is present.
type Has struct {
	Key string
}

func (h Has) Eval(env *Env) (Value, error) {
	_, ok := env.Lookup(h.Key)
	return ok, nil
}

// Zoom returns the evaluation zoom level.
type Zoom struct{}

func (Zoom) Eval(env *Env) (Value, error) { return env.Zoom, nil }

// Ref resolves a named definition at evaluation time.
type Ref struct {
	Name string
}

func (r Ref) Eval(env *Env) (Value, error) {
	if env.Refs == nil {
		return nil, evalErrorf("ref", "no definitions available for %q", r.Name)
	}
	v, err := env.Refs.ResolveRef(r.Name)
	if err != nil {
		return nil, err
	}
	// A definition may itself hold an interpolation or expression.
	if e, ok := v.(Expr); ok {
		return e.Eval(env)
	}
	return v, nil
}

// Call applies a built-in operator to its arguments.
type Call struct {
	Op   string
	Args []Expr
}

func (c Call) Eval(env *Env) (Value, error) {
	switch c.Op {
	case "all":
		for _, a := range c.Args {
			v, err := a.Eval(env)
			if err != nil {
				return nil, err
			}
			if !Truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case "any":
		for _, a := range c.Args {
			v, err := a.Eval(env)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case "none":
		for _, a := range c.Args {
			v, err := a.Eval(env)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case "!":
		v, err := c.evalOne(env)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil

	case "==", "!=":
		a, b, err := c.evalPair(env)
		if err != nil {
			return nil, err
		}
		eq := valueEqual(a, b)
		if c.Op == "!=" {
			return !eq, nil
		}
		return eq, nil

	case "<", "<=", ">", ">=":
		a, b, err := c.evalPair(env)
		if err != nil {
			return nil, err
		}
		return compare(c.Op, a, b)

	case "+", "-", "*", "/", "%", "min", "max":
		return c.evalArith(env)

	case "abs", "floor", "ceil", "round":
		v, err := c.evalOne(env)
		if err != nil {
			return nil, err
		}
		n, ok := ToNumber(v)
		if !ok {
			return nil, evalErrorf(c.Op, "argument is not a number: %v", v)
		}
		switch c.Op {
		case "abs":
			return math.Abs(n), nil
		case "floor":
			return math.Floor(n), nil
		case "ceil":
			return math.Ceil(n), nil
		default:
			return math.Round(n), nil
		}

	case "concat":
		var sb strings.Builder
		for _, a := range c.Args {
			v, err := a.Eval(env)
			if err != nil {
				return nil, err
			}
			sb.WriteString(ToString(v))
		}
		return sb.String(), nil

	case "downcase", "upcase", "length":
		v, err := c.evalOne(env)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, evalErrorf(c.Op, "argument is not a string: %v", v)
		}
		switch c.Op {
		case "downcase":
			return strings.ToLower(s), nil
		case "upcase":
			return strings.ToUpper(s), nil
		default:
			return float64(len(s)), nil
		}

	case "in":
		if len(c.Args) < 2 {
			return nil, evalErrorf(c.Op, "needs a needle and at least one candidate")
		}
		needle, err := c.Args[0].Eval(env)
		if err != nil {
			return nil, err
		}
		for _, a := range c.Args[1:] {
			v, err := a.Eval(env)
			if err != nil {
				return nil, err
			}
			if valueEqual(needle, v) {
				return true, nil
			}
		}
		return false, nil

	default:
		return nil, evalErrorf(c.Op, "unknown operator")
	}
}

func (c Call) evalOne(env *Env) (Value, error) {
	if len(c.Args) != 1 {
		return nil, evalErrorf(c.Op, "expected 1 argument, got %d", len(c.Args))
	}
	return c.Args[0].Eval(env)
}

func (c Call) evalPair(env *Env) (Value, Value, error) {
	if len(c.Args) != 2 {
		return nil, nil, evalErrorf(c.Op, "expected 2 arguments, got %d", len(c.Args))
	}
	a, err := c.Args[0].Eval(env)
	if err != nil {
		return nil, nil, err
	}
	b, err := c.Args[1].Eval(env)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (c Call) evalArith(env *Env) (Value, error) {
	if len(c.Args) < 2 {
		return nil, evalErrorf(c.Op, "expected at least 2 arguments, got %d", len(c.Args))
	}
	v, err := c.Args[0].Eval(env)
	if err != nil {
		return nil, err
	}
	acc, ok := ToNumber(v)
	if !ok {
		return nil, evalErrorf(c.Op, "argument is not a number: %v", v)
	}
	for _, a := range c.Args[1:] {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		n, ok := ToNumber(v)
		if !ok {
			return nil, evalErrorf(c.Op, "argument is not a number: %v", v)
		}
		switch c.Op {
		case "+":
			acc += n
		case "-":
			acc -= n
		case "*":
			acc *= n
		case "/":
			if n == 0 {
				return nil, evalErrorf(c.Op, "division by zero")
			}
			acc /= n
		case "%":
			if n == 0 {
				return nil, evalErrorf(c.Op, "division by zero")
			}
			acc = math.Mod(acc, n)
		case "min":
			acc = math.Min(acc, n)
		case "max":
			acc = math.Max(acc, n)
		}
	}
	return acc, nil
}

func compare(op string, a, b Value) (Value, error) {
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if aok && bok {
		switch op {
		case "<":
			return an < bn, nil
		case "<=":
			return an <= bn, nil
		case ">":
			return an > bn, nil
		default:
			return an >= bn, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "<":
			return as < bs, nil
		case "<=":
			return as <= bs, nil
		case ">":
			return as > bs, nil
		default:
			return as >= bs, nil
		}
	}
	return nil, evalErrorf(op, "incomparable operands: %v, %v", a, b)
}

func valueEqual(a, b Value) bool {
	if an, ok := ToNumber(a); ok {
		if bn, ok := ToNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

// Truthy follows the usual rules: false, nil, 0 and "" are falsy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if n, ok := ToNumber(v); ok {
			return n != 0
		}
		return true
	}
}

// ToNumber converts numeric values of any width to float64.
func ToNumber(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToString renders a value for concat.
func ToString(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		// Avoid "10.000000" for integral values.
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Compile converts the decoded JSON form of an expression into an Expr tree.
// Scalars compile to literals, arrays to operator calls. Compile validates
// operator names and fixed arities so per-feature evaluation only sees
// value-level failures.
func Compile(raw interface{}) (Expr, error) {
	switch v := raw.(type) {
	case nil:
		return Literal{Value: nil}, nil
	case bool, string, float64:
		return Literal{Value: v}, nil
	case int:
		return Literal{Value: float64(v)}, nil
	case int64:
		return Literal{Value: float64(v)}, nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "expr: bad number %q", v.String())
		}
		return Literal{Value: n}, nil
	case []interface{}:
		return compileCall(v)
	case map[string]interface{}:
		// {"$ref": name} is the object spelling of ["ref", name].
		if name, ok := dollarRefName(v); ok {
			return Ref{Name: name}, nil
		}
		// Interpolation descriptors may appear anywhere an expression can.
		if isInterpolationMap(v) {
			return CompileInterpolation(v)
		}
		return nil, errors.Errorf("expr: unexpected object expression: %v", v)
	default:
		return nil, errors.Errorf("expr: unsupported expression type %T", raw)
	}
}

func compileCall(arr []interface{}) (Expr, error) {
	if len(arr) == 0 {
		return nil, errors.New("expr: empty operator array")
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, errors.Errorf("expr: operator name must be a string, got %v", arr[0])
	}

	switch op {
	case "get", "has", "ref":
		if len(arr) != 2 {
			return nil, errors.Errorf("expr: %q expects 1 argument, got %d", op, len(arr)-1)
		}
		name, ok := arr[1].(string)
		if !ok {
			return nil, errors.Errorf("expr: %q argument must be a string, got %v", op, arr[1])
		}
		switch op {
		case "get":
			return Get{Key: name}, nil
		case "has":
			return Has{Key: name}, nil
		default:
			return Ref{Name: name}, nil
		}

	case "zoom":
		if len(arr) != 1 {
			return nil, errors.Errorf("expr: %q takes no arguments", op)
		}
		return Zoom{}, nil

	case "literal":
		if len(arr) != 2 {
			return nil, errors.Errorf("expr: %q expects 1 argument", op)
		}
		return Literal{Value: arr[1]}, nil
	}

	if !knownOps[op] {
		return nil, errors.Errorf("expr: unknown operator %q", op)
	}

	args := make([]Expr, 0, len(arr)-1)
	for _, a := range arr[1:] {
		e, err := Compile(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return Call{Op: op, Args: args}, nil
}

// dollarRefName matches the {"$ref": name} object form of a definition
// reference.
func dollarRefName(m map[string]interface{}) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m["$ref"].(string)
	return name, ok
}

var knownOps = map[string]bool{
	"all": true, "any": true, "none": true, "!": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"min": true, "max": true, "abs": true, "floor": true, "ceil": true, "round": true,
	"concat": true, "downcase": true, "upcase": true, "length": true,
	"in": true,
}
