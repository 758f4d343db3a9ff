package docstore

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// FirestoreEvent is the payload Firestore document triggers deliver
// (google.cloud.firestore.document.v1.written in JSON form).
type FirestoreEvent struct {
	OldValue   FirestoreDocument `json:"oldValue"`
	Value      FirestoreDocument `json:"value"`
	UpdateMask struct {
		FieldPaths []string `json:"fieldPaths"`
	} `json:"updateMask"`
}

// FirestoreDocument is one side of a trigger payload
type FirestoreDocument struct {
	Name       string                `json:"name"`
	Fields     map[string]TypedValue `json:"fields"`
	CreateTime time.Time             `json:"createTime"`
	UpdateTime time.Time             `json:"updateTime"`
}

// TypedValue is a Firestore REST value: exactly one member is set
type TypedValue struct {
	NullValue      *string     `json:"nullValue,omitempty"`
	BooleanValue   *bool       `json:"booleanValue,omitempty"`
	IntegerValue   *string     `json:"integerValue,omitempty"`
	DoubleValue    *float64    `json:"doubleValue,omitempty"`
	TimestampValue *time.Time  `json:"timestampValue,omitempty"`
	StringValue    *string     `json:"stringValue,omitempty"`
	BytesValue     *string     `json:"bytesValue,omitempty"`
	ReferenceValue *string     `json:"referenceValue,omitempty"`
	GeoPointValue  *geoPoint   `json:"geoPointValue,omitempty"`
	ArrayValue     *arrayValue `json:"arrayValue,omitempty"`
	MapValue       *mapValue   `json:"mapValue,omitempty"`
}

type geoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type arrayValue struct {
	Values []TypedValue `json:"values"`
}

type mapValue struct {
	Fields map[string]TypedValue `json:"fields"`
}

// DecodeFirestoreEvent converts a trigger payload into a ChangeEvent
func DecodeFirestoreEvent(body []byte) (ChangeEvent, error) {
	var ev FirestoreEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: firestore event: %v", ErrInvalidArgument, err)
	}

	name := ev.Value.Name
	if name == "" {
		name = ev.OldValue.Name
	}
	ref, err := refFromResourceName(name)
	if err != nil {
		return ChangeEvent{}, err
	}

	out := ChangeEvent{Ref: ref}
	if ev.OldValue.Name != "" {
		if out.Before, err = decodeFields(ev.OldValue.Fields); err != nil {
			return ChangeEvent{}, err
		}
	}
	if ev.Value.Name != "" {
		if out.After, err = decodeFields(ev.Value.Fields); err != nil {
			return ChangeEvent{}, err
		}
		out.Time = ev.Value.UpdateTime
	} else {
		out.Time = time.Now().UTC()
	}
	out.Kind = changeKind(ev.OldValue.Name != "", ev.Value.Name == "")
	return out, nil
}

func refFromResourceName(name string) (DocRef, error) {
	const marker = "/documents/"
	i := strings.Index(name, marker)
	if i < 0 {
		return DocRef{}, fmt.Errorf("%w: resource name %q", ErrInvalidArgument, name)
	}
	return ParseRef(name[i+len(marker):])
}

func decodeFields(fields map[string]TypedValue) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		dv, err := v.decode()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

func (v TypedValue) decode() (any, error) {
	switch {
	case v.BooleanValue != nil:
		return *v.BooleanValue, nil
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integerValue %q", ErrInvalidArgument, *v.IntegerValue)
		}
		return n, nil
	case v.DoubleValue != nil:
		return *v.DoubleValue, nil
	case v.TimestampValue != nil:
		return normalizeTime(*v.TimestampValue), nil
	case v.StringValue != nil:
		return *v.StringValue, nil
	case v.BytesValue != nil:
		if _, err := base64.StdEncoding.DecodeString(*v.BytesValue); err != nil {
			return nil, fmt.Errorf("%w: bytesValue", ErrInvalidArgument)
		}
		return *v.BytesValue, nil
	case v.ReferenceValue != nil:
		ref, err := refFromResourceName(*v.ReferenceValue)
		if err != nil {
			return *v.ReferenceValue, nil
		}
		return ref.Path(), nil
	case v.GeoPointValue != nil:
		return map[string]any{"latitude": v.GeoPointValue.Latitude, "longitude": v.GeoPointValue.Longitude}, nil
	case v.ArrayValue != nil:
		out := make([]any, 0, len(v.ArrayValue.Values))
		for _, e := range v.ArrayValue.Values {
			dv, err := e.decode()
			if err != nil {
				return nil, err
			}
			out = append(out, dv)
		}
		return out, nil
	case v.MapValue != nil:
		return decodeFields(v.MapValue.Fields)
	}
	return nil, nil
}
