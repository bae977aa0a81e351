package automation

import (
	"reflect"
	"strings"
)

// Match reports whether conditions (a nested mapping from dotted field
// paths to expected values, §4.3/§6.3) is satisfied by event. Multiple keys
// are AND-joined; an empty map matches any event. Values are compared by
// deep equality, except when both the expected and observed values are
// lists: then the expected list must be a subset of the observed list
// (Open Question 1, decided in DESIGN.md).
func Match(conditions map[string]any, event map[string]any) bool {
	for path, expected := range conditions {
		observed, ok := lookupPath(event, path)
		if !ok {
			return false
		}
		if !valueMatches(expected, observed) {
			return false
		}
	}
	return true
}

func lookupPath(event map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = event
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func valueMatches(expected, observed any) bool {
	expList, expIsList := asList(expected)
	obsList, obsIsList := asList(observed)
	if expIsList && obsIsList {
		return isSubset(expList, obsList)
	}
	return reflect.DeepEqual(expected, observed)
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func isSubset(subset, superset []any) bool {
	for _, want := range subset {
		found := false
		for _, have := range superset {
			if reflect.DeepEqual(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
