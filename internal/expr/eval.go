// Package expr evaluates the inline expressions found in $((...))
// substitutions.
//
// The language is small and side-effect free. It has number, string and
// boolean literals, identifiers resolved against a Scope, member access,
// arithmetic, comparison, logical operators and the conditional operator.
// There are no calls, assignments or constructors.
package expr

import (
	"fmt"
	"math"
)

// Scope resolves bare identifiers.
type Scope interface {
	Lookup(name string) (any, bool)
}

// MapScope is a Scope over a plain map.
type MapScope map[string]any

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Object is implemented by observable facades and anything else that
// exposes keyed reads.
type Object interface {
	Get(key string) any
	Has(key string) bool
}

type undefinedType struct{}

func (undefinedType) String() string { return "undefined" }

// Undefined is the value of a missing property.
var Undefined any = undefinedType{}

// Error kinds. Substituted error text starts with one of these.
const (
	SyntaxError    = "SyntaxError"
	ReferenceError = "ReferenceError"
	TypeError      = "TypeError"
)

// Error is an evaluation or parse failure.
type Error struct {
	Kind string
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Msg
}

// Eval parses and evaluates src in one step.
func Eval(src string, scope Scope) (any, error) {
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(scope)
}

// Eval evaluates the program against scope.
func (p *Program) Eval(scope Scope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &Error{Kind: TypeError, Msg: fmt.Sprint(r)}
		}
	}()
	if scope == nil {
		scope = MapScope{}
	}
	return p.root.eval(scope)
}

func (n *literal) eval(Scope) (any, error) {
	return n.value, nil
}

func (n *ident) eval(s Scope) (any, error) {
	v, ok := s.Lookup(n.name)
	if !ok {
		return nil, &Error{Kind: ReferenceError, Msg: n.name + " is not defined"}
	}
	return v, nil
}

func (n *member) eval(s Scope) (any, error) {
	obj, err := n.object.eval(s)
	if err != nil {
		return nil, err
	}
	prop, err := n.property.eval(s)
	if err != nil {
		return nil, err
	}
	return property(obj, ToString(prop))
}

func (n *unary) eval(s Scope) (any, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !Truthy(x), nil
	case "-":
		return -ToNumber(x), nil
	default:
		return ToNumber(x), nil
	}
}

func (n *logical) eval(s Scope) (any, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&":
		if !Truthy(x) {
			return x, nil
		}
	case "||":
		if Truthy(x) {
			return x, nil
		}
	case "??":
		if x != nil && x != Undefined {
			return x, nil
		}
	}
	return n.y.eval(s)
}

func (n *conditional) eval(s Scope) (any, error) {
	c, err := n.cond.eval(s)
	if err != nil {
		return nil, err
	}
	if Truthy(c) {
		return n.then.eval(s)
	}
	return n.otherwise.eval(s)
}

func (n *binary) eval(s Scope) (any, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	y, err := n.y.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "+":
		if isStringLike(x) || isStringLike(y) {
			return ToString(x) + ToString(y), nil
		}
		return ToNumber(x) + ToNumber(y), nil
	case "-":
		return ToNumber(x) - ToNumber(y), nil
	case "*":
		return ToNumber(x) * ToNumber(y), nil
	case "/":
		return ToNumber(x) / ToNumber(y), nil
	case "%":
		return math.Mod(ToNumber(x), ToNumber(y)), nil
	case "**":
		return math.Pow(ToNumber(x), ToNumber(y)), nil
	case "===":
		return StrictEqual(x, y), nil
	case "!==":
		return !StrictEqual(x, y), nil
	case "==":
		return LooseEqual(x, y), nil
	case "!=":
		return !LooseEqual(x, y), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, x, y), nil
	}
	return nil, &Error{Kind: SyntaxError, Msg: "unknown operator " + n.op}
}

func compare(op string, x, y any) bool {
	xs, xok := x.(string)
	ys, yok := y.(string)
	if xok && yok {
		switch op {
		case "<":
			return xs < ys
		case "<=":
			return xs <= ys
		case ">":
			return xs > ys
		default:
			return xs >= ys
		}
	}
	a, b := ToNumber(x), ToNumber(y)
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func property(obj any, key string) (any, error) {
	switch t := obj.(type) {
	case nil:
		return nil, &Error{Kind: TypeError, Msg: fmt.Sprintf("Cannot read properties of null (reading '%s')", key)}
	case undefinedType:
		return nil, &Error{Kind: TypeError, Msg: fmt.Sprintf("Cannot read properties of undefined (reading '%s')", key)}
	case Object:
		if t.Has(key) {
			return t.Get(key), nil
		}
		return Undefined, nil
	case map[string]any:
		if v, ok := t[key]; ok {
			return v, nil
		}
		return Undefined, nil
	case []any:
		if key == "length" {
			return float64(len(t)), nil
		}
		if i, ok := arrayIndex(key, len(t)); ok {
			return t[i], nil
		}
		return Undefined, nil
	case string:
		runes := []rune(t)
		if key == "length" {
			return float64(len(runes)), nil
		}
		if i, ok := arrayIndex(key, len(runes)); ok {
			return string(runes[i]), nil
		}
		return Undefined, nil
	}
	return Undefined, nil
}

func arrayIndex(key string, n int) (int, bool) {
	f := ToNumber(key)
	if math.IsNaN(f) || f != math.Trunc(f) || f < 0 || f >= float64(n) {
		return 0, false
	}
	return int(f), true
}
