package docstore

import (
	"fmt"
	"strings"
	"time"
)

// applyWrite computes the document state after w. exists reports whether the
// document existed before.
func applyWrite(old map[string]any, exists bool, w write, now time.Time) (map[string]any, bool, error) {
	switch w.kind {
	case writeCreate:
		if exists {
			return nil, false, fmt.Errorf("create %s: %w", w.ref.Path(), ErrAlreadyExists)
		}
		return resolveMap(nil, w.data, now), false, nil

	case writeSet:
		if w.merge && exists {
			out := copyMap(old)
			mergeInto(out, w.data, now)
			return out, false, nil
		}
		return resolveMap(nil, w.data, now), false, nil

	case writeUpdate:
		if !exists {
			return nil, false, fmt.Errorf("update %s: %w", w.ref.Path(), ErrNotFound)
		}
		out := copyMap(old)
		for _, u := range w.updates {
			setPath(out, u.Path, u.Value, now)
		}
		return out, false, nil

	case writeDelete:
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("%w: unknown write", ErrInvalidArgument)
}

// resolve applies v on top of the current value. keep is false when the field
// must be removed.
func resolve(v any, current any, now time.Time) (any, bool) {
	switch op := v.(type) {
	case incrementOp:
		return addNumbers(current, op.n), true
	case arrayUnionOp:
		list, _ := current.([]any)
		out := make([]any, 0, len(list)+len(op.values))
		for _, e := range list {
			out = append(out, deepCopy(e))
		}
		for _, e := range op.values {
			if !containsValue(out, e) {
				out = append(out, deepCopy(e))
			}
		}
		return out, true
	case arrayRemoveOp:
		list, _ := current.([]any)
		out := make([]any, 0, len(list))
		for _, e := range list {
			if !containsValue(op.values, e) {
				out = append(out, deepCopy(e))
			}
		}
		return out, true
	case serverTimestampOp:
		return normalizeTime(now), true
	case deleteFieldOp:
		return nil, false
	case map[string]any:
		return resolveMap(nil, op, now), true
	}
	return deepCopy(v), true
}

func resolveMap(current map[string]any, data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		var cur any
		if current != nil {
			cur = current[k]
		}
		if nv, keep := resolve(v, cur, now); keep {
			out[k] = nv
		}
	}
	return out
}

func mergeInto(dst map[string]any, src map[string]any, now time.Time) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, sub, now)
				continue
			}
		}
		if nv, keep := resolve(v, dst[k], now); keep {
			dst[k] = nv
		} else {
			delete(dst, k)
		}
	}
}

func setPath(dst map[string]any, path string, v any, now time.Time) {
	parts := strings.Split(path, ".")
	cur := dst
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	if nv, keep := resolve(v, cur[leaf], now); keep {
		cur[leaf] = nv
	} else {
		delete(cur, leaf)
	}
}

func addNumbers(current any, delta any) any {
	ci, cInt := current.(int64)
	di, dInt := delta.(int64)
	if typeClass(current) != classNumber {
		return delta
	}
	if cInt && dInt {
		return ci + di
	}
	return toFloat(current) + toFloat(delta)
}

type docState struct {
	data    map[string]any
	exists  bool
	created time.Time
	version int64
}

type stagedDoc struct {
	ref     DocRef
	before  docState
	after   map[string]any
	deleted bool
}

// stageWrites applies writes in order on top of the loaded state of every
// touched document and returns one staged result per document.
func stageWrites(writes []write, load func(DocRef) (docState, error), now time.Time) ([]*stagedDoc, error) {
	byPath := make(map[string]*stagedDoc)
	var order []*stagedDoc

	for _, w := range writes {
		path := w.ref.Path()
		st, ok := byPath[path]
		if !ok {
			before, err := load(w.ref)
			if err != nil {
				return nil, err
			}
			st = &stagedDoc{ref: w.ref, before: before, after: before.data, deleted: !before.exists}
			byPath[path] = st
			order = append(order, st)
		}

		after, deleted, err := applyWrite(st.after, !st.deleted, w, now)
		if err != nil {
			return nil, err
		}
		st.after = after
		st.deleted = deleted
	}
	return order, nil
}

func (st *stagedDoc) event(now time.Time) (ChangeEvent, bool) {
	if !st.before.exists && st.deleted {
		return ChangeEvent{}, false
	}
	e := ChangeEvent{
		Ref:  st.ref,
		Kind: changeKind(st.before.exists, st.deleted),
		Time: now,
	}
	if st.before.exists {
		e.Before = copyMap(st.before.data)
	}
	if !st.deleted {
		e.After = copyMap(st.after)
	}
	return e, true
}
