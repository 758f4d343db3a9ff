package docstore

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Op is a filter operator
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
)

// MaxInValues is the largest value list an "in" filter accepts
const MaxInValues = 30

// Direction orders query results
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter restricts query results on one field
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection. Queries are values; builder
// methods return modified copies.
type Query struct {
	Collection string
	Filters    []Filter
	OrderField string
	Dir        Direction
	LimitN     int
	After      *Cursor
}

// From starts a query over a collection path
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where adds a filter
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sets the sort field and direction. Documents lacking the field are
// excluded from results.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.OrderField = field
	q.Dir = dir
	return q
}

// Limit caps the page size
func (q Query) Limit(n int) Query {
	q.LimitN = n
	return q
}

// StartAfter resumes after the given cursor; nil starts from the beginning
func (q Query) StartAfter(c *Cursor) Query {
	q.After = c
	return q
}

// Key identifies the shape of a query (collection, filters, order, limit),
// ignoring the cursor.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|%s%s%v", f.Field, f.Op, f.Value)
	}
	if q.OrderField != "" {
		fmt.Fprintf(&b, "|order:%s:%d", q.OrderField, q.Dir)
	}
	if q.LimitN > 0 {
		fmt.Fprintf(&b, "|limit:%d", q.LimitN)
	}
	return b.String()
}

func (q Query) normalized() (Query, error) {
	if q.Collection == "" || strings.Count(q.Collection, "/")%2 != 0 {
		return q, fmt.Errorf("%w: bad collection path %q", ErrInvalidArgument, q.Collection)
	}
	if q.LimitN < 0 {
		return q, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return q, err
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains:
		case OpIn:
			list, ok := v.([]any)
			if !ok || len(list) == 0 || len(list) > MaxInValues {
				return q, fmt.Errorf("%w: %q filter needs 1..%d values", ErrInvalidArgument, OpIn, MaxInValues)
			}
		default:
			return q, fmt.Errorf("%w: unknown operator %q", ErrInvalidArgument, f.Op)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}
	q.Filters = filters
	if q.After != nil {
		v, err := normalizeValue(q.After.Value)
		if err != nil {
			return q, err
		}
		q.After = &Cursor{Value: v, ID: q.After.ID}
	}
	return q, nil
}

func (f Filter) matches(data map[string]any) bool {
	v, ok := getPath(data, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return equalValues(v, f.Value)
	case OpNotEqual:
		return v != nil && !equalValues(v, f.Value)
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		if typeClass(v) != typeClass(f.Value) {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Op {
		case OpLess:
			return c < 0
		case OpLessEqual:
			return c <= 0
		case OpGreater:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		return containsValue(f.Value.([]any), v)
	case OpArrayContains:
		list, ok := v.([]any)
		return ok && containsValue(list, f.Value)
	}
	return false
}

// evaluate runs a normalized query over every document of its collection.
// Shared by the in-process backends.
func evaluate(docs []*Snapshot, q Query) *Page {
	matched := make([]*Snapshot, 0, len(docs))
	for _, d := range docs {
		if d.Ref.Collection != q.Collection {
			continue
		}
		ok := true
		for _, f := range q.Filters {
			if !f.matches(d.Data) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if q.OrderField != "" {
			if _, has := getPath(d.Data, q.OrderField); !has {
				continue
			}
		}
		matched = append(matched, d)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return q.less(matched[i], matched[j])
	})

	if q.After != nil {
		start := sort.Search(len(matched), func(i int) bool {
			return q.afterCursor(matched[i])
		})
		matched = matched[start:]
	}

	page := &Page{}
	if q.LimitN > 0 && len(matched) >= q.LimitN {
		matched = matched[:q.LimitN]
		page.Full = true
	}
	page.Docs = matched
	if len(matched) > 0 {
		page.Next = q.cursorFor(matched[len(matched)-1])
	}
	return page
}

func (q Query) orderKey(d *Snapshot) any {
	if q.OrderField == "" {
		return nil
	}
	v, _ := getPath(d.Data, q.OrderField)
	return v
}

func (q Query) less(a, b *Snapshot) bool {
	c := compareValues(q.orderKey(a), q.orderKey(b))
	if c == 0 {
		c = strings.Compare(a.Ref.ID, b.Ref.ID)
	}
	if q.Dir == Desc {
		return c > 0
	}
	return c < 0
}

func (q Query) afterCursor(d *Snapshot) bool {
	c := compareValues(q.orderKey(d), q.After.Value)
	if c == 0 {
		c = strings.Compare(d.Ref.ID, q.After.ID)
	}
	if q.Dir == Desc {
		return c < 0
	}
	return c > 0
}

func (q Query) cursorFor(d *Snapshot) *Cursor {
	return &Cursor{Value: q.orderKey(d), ID: d.Ref.ID}
}

// Cursor marks the position after the last document of a page
type Cursor struct {
	Value any
	ID    string
}

type cursorWire struct {
	Kind  string `json:"k"`
	Value any    `json:"v,omitempty"`
	ID    string `json:"id"`
}

// Encode serializes the cursor into an opaque URL-safe token
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	w := cursorWire{ID: c.ID}
	switch v := c.Value.(type) {
	case nil:
		w.Kind = "null"
	case time.Time:
		w.Kind = "time"
		w.Value = v.UTC().Format(time.RFC3339Nano)
	case int64:
		w.Kind = "int"
		w.Value = v
	case float64:
		w.Kind = "float"
		w.Value = v
	case bool:
		w.Kind = "bool"
		w.Value = v
	default:
		w.Kind = "string"
		w.Value = fmt.Sprint(v)
	}
	raw, _ := json.Marshal(w)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by Cursor.Encode. An empty token
// yields a nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor encoding", ErrInvalidArgument)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var w cursorWire
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: cursor payload", ErrInvalidArgument)
	}

	c := &Cursor{ID: w.ID}
	switch w.Kind {
	case "null":
	case "time":
		s, _ := w.Value.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: cursor time", ErrInvalidArgument)
		}
		c.Value = normalizeTime(t)
	case "int":
		n, ok := w.Value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: cursor int", ErrInvalidArgument)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: cursor int", ErrInvalidArgument)
		}
		c.Value = i
	case "float":
		n, ok := w.Value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: cursor float", ErrInvalidArgument)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: cursor float", ErrInvalidArgument)
		}
		c.Value = f
	case "bool":
		b, _ := w.Value.(bool)
		c.Value = b
	case "string":
		s, _ := w.Value.(string)
		c.Value = s
	default:
		return nil, fmt.Errorf("%w: cursor kind %q", ErrInvalidArgument, w.Kind)
	}
	return c, nil
}

// MarshalJSON encodes the cursor as its opaque token
func (c *Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Encode())
}

// UnmarshalJSON decodes an opaque token
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	decoded, err := DecodeCursor(token)
	if err != nil {
		return err
	}
	if decoded == nil {
		*c = Cursor{}
		return nil
	}
	*c = *decoded
	return nil
}
