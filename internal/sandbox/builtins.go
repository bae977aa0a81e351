package sandbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type builtinFunc func(ip *Interp, call *CallExpr, args []any) (any, error)

// builtins are the pure, host-independent functions available in every
// script (§4.6): type conversions, collection operations, logic helpers,
// print/fail, and JSON encode/decode.
var builtins = map[string]builtinFunc{
	"len":        biLen,
	"str":        biStr,
	"int":        biInt,
	"float":      biFloat,
	"bool":       biBool,
	"list":       biList,
	"dict_keys":  biDictKeys,
	"dict_values": biDictValues,
	"range":      biRange,
	"append":     biAppend,
	"sorted":     biSorted,
	"min":        biMin,
	"max":        biMax,
	"sum":        biSum,
	"abs":        biAbs,
	"print":      biPrint,
	"fail":       biFail,
	"json_encode": biJSONEncode,
	"json_decode": biJSONDecode,
}

func biLen(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "len() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		return int64(len([]rune(v))), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	default:
		return nil, execErr(call, "len() unsupported for this type")
	}
}

func biStr(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "str() takes exactly one argument")
	}
	return stringify(args[0]), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func biInt(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "int() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, execErr(call, "cannot convert %q to int", v)
		}
		return n, nil
	default:
		return nil, execErr(call, "cannot convert value to int")
	}
}

func biFloat(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "float() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, execErr(call, "cannot convert %q to float", v)
		}
		return f, nil
	default:
		return nil, execErr(call, "cannot convert value to float")
	}
}

func biBool(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "bool() takes exactly one argument")
	}
	return truthy(args[0]), nil
}

func biList(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	switch v := args[0].(type) {
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out, nil
	case map[string]any:
		out := make([]any, 0, len(v))
		for k := range v {
			out = append(out, k)
		}
		return out, nil
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return nil, execErr(call, "value is not iterable")
	}
}

func biDictKeys(ip *Interp, call *CallExpr, args []any) (any, error) {
	m, err := requireDict(call, args, "dict_keys")
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

func biDictValues(ip *Interp, call *CallExpr, args []any) (any, error) {
	m, err := requireDict(call, args, "dict_values")
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out, nil
}

func requireDict(call *CallExpr, args []any, name string) (map[string]any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "%s() takes exactly one argument", name)
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, execErr(call, "%s() requires a dict argument", name)
	}
	return m, nil
}

func biRange(ip *Interp, call *CallExpr, args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		n, ok := toInt(args[0])
		if !ok {
			return nil, execErr(call, "range() requires integer arguments")
		}
		stop = n
	case 2, 3:
		a, ok1 := toInt(args[0])
		b, ok2 := toInt(args[1])
		if !ok1 || !ok2 {
			return nil, execErr(call, "range() requires integer arguments")
		}
		start, stop = a, b
		if len(args) == 3 {
			s, ok := toInt(args[2])
			if !ok || s == 0 {
				return nil, execErr(call, "range() step must be a non-zero integer")
			}
			step = s
		}
	default:
		return nil, execErr(call, "range() takes 1 to 3 arguments")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func biAppend(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 2 {
		return nil, execErr(call, "append() takes exactly two arguments")
	}
	lst, ok := args[0].([]any)
	if !ok {
		return nil, execErr(call, "append() requires a list as the first argument")
	}
	return append(lst, args[1]), nil
}

func biSorted(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "sorted() takes exactly one argument")
	}
	lst, ok := args[0].([]any)
	if !ok {
		return nil, execErr(call, "sorted() requires a list argument")
	}
	out := make([]any, len(lst))
	copy(out, lst)
	var sortErr error
	insertionSortBy(out, func(a, b any) bool {
		less, err := lessThan(a, b)
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return nil, execErr(call, "%s", sortErr.Error())
	}
	return out, nil
}

func lessThan(a, b any) (bool, error) {
	if af, _, aok := asNumber(a); aok {
		if bf, _, bok := asNumber(b); bok {
			return af < bf, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as < bs, nil
		}
	}
	return false, fmt.Errorf("sorted() requires comparable elements of the same type")
}

func insertionSortBy(s []any, less func(a, b any) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func biMin(ip *Interp, call *CallExpr, args []any) (any, error) {
	return reduceNumeric(call, args, "min", func(acc, v float64) bool { return v < acc })
}

func biMax(ip *Interp, call *CallExpr, args []any) (any, error) {
	return reduceNumeric(call, args, "max", func(acc, v float64) bool { return v > acc })
}

func reduceNumeric(call *CallExpr, args []any, name string, better func(acc, v float64) bool) (any, error) {
	var items []any
	if len(args) == 1 {
		lst, ok := args[0].([]any)
		if !ok {
			return nil, execErr(call, "%s() requires a list argument", name)
		}
		items = lst
	} else {
		items = args
	}
	if len(items) == 0 {
		return nil, execErr(call, "%s() called on an empty sequence", name)
	}
	best := items[0]
	bestF, _, ok := asNumber(best)
	if !ok {
		return nil, execErr(call, "%s() requires numeric elements", name)
	}
	for _, v := range items[1:] {
		f, _, ok := asNumber(v)
		if !ok {
			return nil, execErr(call, "%s() requires numeric elements", name)
		}
		if better(bestF, f) {
			best, bestF = v, f
		}
	}
	return best, nil
}

func biSum(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "sum() takes exactly one argument")
	}
	lst, ok := args[0].([]any)
	if !ok {
		return nil, execErr(call, "sum() requires a list argument")
	}
	var total float64
	allInt := true
	for _, v := range lst {
		f, isFloat, ok := asNumber(v)
		if !ok {
			return nil, execErr(call, "sum() requires numeric elements")
		}
		if isFloat {
			allInt = false
		}
		total += f
	}
	if allInt {
		return int64(total), nil
	}
	return total, nil
}

func biAbs(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "abs() takes exactly one argument")
	}
	f, isFloat, ok := asNumber(args[0])
	if !ok {
		return nil, execErr(call, "abs() requires a numeric argument")
	}
	if f < 0 {
		f = -f
	}
	if isFloat {
		return f, nil
	}
	return int64(f), nil
}

func biPrint(ip *Interp, call *CallExpr, args []any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = stringify(a)
	}
	slog.Info("sandbox script print", "output", strings.Join(parts, " "))
	return nil, nil
}

func biFail(ip *Interp, call *CallExpr, args []any) (any, error) {
	msg := "script called fail()"
	if len(args) > 0 {
		msg = stringify(args[0])
	}
	return nil, execErr(call, "%s", msg)
}

func biJSONEncode(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "json_encode() takes exactly one argument")
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, execErr(call, "json_encode() failed: %v", err)
	}
	return string(b), nil
}

func biJSONDecode(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErr(call, "json_decode() takes exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, execErr(call, "json_decode() requires a string argument")
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, execErr(call, "json_decode() failed: %v", err)
	}
	return normalizeJSON(out), nil
}

// normalizeJSON converts encoding/json's float64-for-all-numbers output into
// int64 where the value is integral, so json_decode() results behave like
// native integer literals under arithmetic (// and %).
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON(e)
		}
		return t
	default:
		return v
	}
}
