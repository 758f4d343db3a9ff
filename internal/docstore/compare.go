package docstore

import (
	"sort"
	"strings"
	"time"
)

// Type classes in Firestore ordering
const (
	classNull = iota
	classBool
	classNumber
	classTime
	classString
	classArray
	classMap
	classUnknown
)

func typeClass(v any) int {
	switch v.(type) {
	case nil:
		return classNull
	case bool:
		return classBool
	case int64, float64:
		return classNumber
	case time.Time:
		return classTime
	case string:
		return classString
	case []any:
		return classArray
	case map[string]any:
		return classMap
	}
	return classUnknown
}

// compareValues orders two normalized values. Values of different type
// classes order by class.
func compareValues(a, b any) int {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		return compareInts(int64(ca), int64(cb))
	}

	switch ca {
	case classNull:
		return 0
	case classBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case classNumber:
		ai, aInt := a.(int64)
		bi, bInt := b.(int64)
		if aInt && bInt {
			return compareInts(ai, bi)
		}
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case classTime:
		at, bt := a.(time.Time), b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		}
		return 0
	case classString:
		return strings.Compare(a.(string), b.(string))
	case classArray:
		aa, ba := a.([]any), b.([]any)
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := compareValues(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return compareInts(int64(len(aa)), int64(len(ba)))
	case classMap:
		am, bm := a.(map[string]any), b.(map[string]any)
		ak, bk := sortedKeys(am), sortedKeys(bm)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := compareValues(am[ak[i]], bm[bk[i]]); c != 0 {
				return c
			}
		}
		return compareInts(int64(len(ak)), int64(len(bk)))
	}
	return 0
}

func equalValues(a, b any) bool {
	return compareValues(a, b) == 0
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsValue(list []any, v any) bool {
	for _, e := range list {
		if equalValues(e, v) {
			return true
		}
	}
	return false
}

// getPath walks a dotted field path through nested maps
func getPath(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
