package docstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Field operators. They may appear as Update values and inside Set/Create data.

type fieldOp interface {
	isFieldOp()
}

type incrementOp struct{ n any }
type arrayUnionOp struct{ values []any }
type arrayRemoveOp struct{ values []any }
type serverTimestampOp struct{}
type deleteFieldOp struct{}

func (incrementOp) isFieldOp()       {}
func (arrayUnionOp) isFieldOp()      {}
func (arrayRemoveOp) isFieldOp()     {}
func (serverTimestampOp) isFieldOp() {}
func (deleteFieldOp) isFieldOp()     {}

// ServerTimestamp is replaced with the commit time
var ServerTimestamp any = serverTimestampOp{}

// DeleteField removes the field
var DeleteField any = deleteFieldOp{}

// Increment atomically adds n to a numeric field (missing fields start at 0)
func Increment(n int64) any {
	return incrementOp{n: n}
}

// IncrementFloat atomically adds a float delta
func IncrementFloat(f float64) any {
	return incrementOp{n: f}
}

// ArrayUnion appends each value not already present
func ArrayUnion(values ...any) any {
	return arrayUnionOp{values: values}
}

// ArrayRemove removes every occurrence of each value
func ArrayRemove(values ...any) any {
	return arrayRemoveOp{values: values}
}

var timeType = reflect.TypeOf(time.Time{})

// Encode converts a struct (json tags) or map into normalized document data
func Encode(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	normalized, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document data must be a struct or map, got %T", ErrInvalidArgument, v)
	}
	return m, nil
}

// Normalize converts an arbitrary value into the closed set of document value
// types: nil, bool, int64, float64, string, time.Time, []any, map[string]any.
func Normalize(v any) (any, error) {
	return normalizeValue(v)
}

// Decode fills v (a pointer) from normalized document data using v's json tags
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case incrementOp:
		n, err := normalizeValue(x.n)
		if err != nil {
			return nil, err
		}
		return incrementOp{n: n}, nil
	case arrayUnionOp:
		vals, err := normalizeSlice(x.values)
		return arrayUnionOp{values: vals}, err
	case arrayRemoveOp:
		vals, err := normalizeSlice(x.values)
		return arrayRemoveOp{values: vals}, err
	case serverTimestampOp, deleteFieldOp:
		return x, nil
	case bool, string, int64, float64:
		return x, nil
	case time.Time:
		return normalizeTime(x), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return normalizeTime(*x), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			nv, err := normalizeValue(val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		return normalizeSlice(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			nv, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keys must be strings, got %s", ErrInvalidArgument, rv.Type())
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			nv, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = nv
		}
		return out, nil
	case reflect.Struct:
		out := make(map[string]any)
		if err := encodeStruct(rv, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidArgument, v)
}

func normalizeSlice(values []any) ([]any, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]any, len(values))
	for i, val := range values {
		nv, err := normalizeValue(val)
		if err != nil {
			return nil, err
		}
		out[i] = nv
	}
	return out, nil
}

// Timestamps are stored at microsecond precision in UTC, like Firestore.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func encodeStruct(rv reflect.Value, out map[string]any) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)

		name, omitEmpty, skip := parseJSONTag(field)
		if skip {
			continue
		}

		if field.Anonymous && field.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct && inner.Type() != timeType {
				if err := encodeStruct(inner, out); err != nil {
					return err
				}
				continue
			}
		}

		if omitEmpty && isEmptyValue(fv) {
			continue
		}

		nv, err := normalizeValue(fv.Interface())
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
		out[name] = nv
	}
	return nil
}

func parseJSONTag(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return v.IsZero()
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}
