package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// rawer is implemented by observable facades.
type rawer interface {
	Raw() any
}

// ToString converts v to the text substituted into a document:
// whole numbers print without a fraction, nil prints as null, arrays join
// their elements with commas and objects print as [object Object].
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case undefinedType:
		return "undefined"
	case error:
		return t.Error()
	case json.Number:
		return FormatNumber(ToNumber(t))
	case rawer:
		return ToString(t.Raw())
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			if e == nil || e == Undefined {
				continue
			}
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if f, ok := number(v); ok {
		return FormatNumber(f)
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// FormatNumber prints f in its shortest round-trip form, switching to an
// exponent below 1e-6 and from 1e21 up.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Exponents carry no leading zero: 1e-7, not 1e-07.
	if i := strings.Index(s, "e-0"); i >= 0 {
		s = s[:i+2] + s[i+3:]
	}
	return s
}

// ToNumber converts v to a float64, yielding NaN for values with no
// numeric reading.
func ToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case rawer:
		return ToNumber(ToString(t.Raw()))
	case []any:
		return ToNumber(ToString(t))
	}
	if f, ok := number(v); ok {
		return f
	}
	return math.NaN()
}

// Truthy reports the boolean value of v.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil, undefinedType:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := number(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// StrictEqual is ===. All numeric types compare as one number type.
func StrictEqual(x, y any) bool {
	if fx, ok := number(x); ok {
		fy, ok := number(y)
		return ok && fx == fy
	}
	x, y = unwrap(x), unwrap(y)
	if isReference(x) || isReference(y) {
		return sameReference(x, y)
	}
	return x == y
}

// LooseEqual is ==.
func LooseEqual(x, y any) bool {
	nullish := func(v any) bool { return v == nil || v == Undefined }
	if nullish(x) || nullish(y) {
		return nullish(x) && nullish(y)
	}
	_, xnum := number(x)
	_, ynum := number(y)
	_, xstr := x.(string)
	_, ystr := y.(string)
	_, xbool := x.(bool)
	_, ybool := y.(bool)
	switch {
	case xstr && ystr:
		return x == y
	case xnum || ynum || xbool || ybool:
		if isReference(unwrap(x)) || isReference(unwrap(y)) {
			return ToString(x) == ToString(y)
		}
		return ToNumber(x) == ToNumber(y)
	case xstr || ystr:
		return ToString(x) == ToString(y)
	}
	return StrictEqual(x, y)
}

func isStringLike(v any) bool {
	switch v.(type) {
	case string:
		return true
	case rawer, []any, map[string]any:
		return true
	}
	return false
}

func unwrap(v any) any {
	if r, ok := v.(rawer); ok {
		return r.Raw()
	}
	return v
}

func isReference(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func sameReference(x, y any) bool {
	if !isReference(x) || !isReference(y) {
		return false
	}
	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	if vx.Kind() != vy.Kind() {
		return false
	}
	if vx.Kind() == reflect.Slice && vx.Len() != vy.Len() {
		return false
	}
	return vx.Pointer() == vy.Pointer()
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}
