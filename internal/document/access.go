package document

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// Get returns the value at path. Missing keys, out-of-range indices and
// scalar intermediates all yield (nil, false).
func Get(doc map[string]any, path Path) (any, bool) {
	if len(path) == 0 {
		return doc, doc != nil
	}
	var cur any = doc
	for _, seg := range path {
		switch n := cur.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			cur = n[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// GetString is Get for string paths. Unparseable paths read as missing.
func GetString(doc map[string]any, path string) (any, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return Get(doc, p)
}

// Set writes value at path, mutating doc in place. Missing intermediates are
// created as objects and any scalar or null intermediate is replaced by a
// fresh object, discarding the old value. Arrays are addressed by index; an
// index equal to the length appends.
func Set(doc map[string]any, path Path, value any) error {
	if doc == nil {
		return eris.New("document: set on nil document")
	}
	if len(path) == 0 {
		return eris.Wrap(ErrInvalidPath, "document: set at root")
	}
	_, err := setIn(doc, path, value)
	return err
}

func setIn(node any, path Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	seg := path[0]
	switch n := node.(type) {
	case map[string]any:
		child := n[seg]
		if len(path) > 1 && !isContainer(child) {
			child = map[string]any{}
		}
		updated, err := setIn(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		n[seg] = updated
		return n, nil
	case []any:
		idx, err := arrayIndex(seg)
		if err != nil {
			return nil, err
		}
		if idx > len(n) {
			return nil, eris.Wrapf(ErrInvalidPath, "index %d beyond array length %d", idx, len(n))
		}
		if idx == len(n) {
			n = append(n, nil)
		}
		child := n[idx]
		if len(path) > 1 && !isContainer(child) {
			child = map[string]any{}
		}
		updated, err := setIn(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return setIn(map[string]any{}, path, value)
	}
}

// Delete removes the value at path. Array elements are spliced out. It
// reports whether anything was removed.
func Delete(doc map[string]any, path Path) bool {
	if doc == nil || len(path) == 0 {
		return false
	}
	_, removed := deleteIn(doc, path)
	return removed
}

func deleteIn(node any, path Path) (any, bool) {
	seg := path[0]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[seg]
		if !ok {
			return n, false
		}
		if len(path) == 1 {
			delete(n, seg)
			return n, true
		}
		updated, removed := deleteIn(child, path[1:])
		n[seg] = updated
		return n, removed
	case []any:
		idx, err := arrayIndex(seg)
		if err != nil || idx >= len(n) {
			return n, false
		}
		if len(path) == 1 {
			return append(n[:idx:idx], n[idx+1:]...), true
		}
		updated, removed := deleteIn(n[idx], path[1:])
		n[idx] = updated
		return n, removed
	default:
		return node, false
	}
}

// Walk calls fn for every leaf of doc in key order. Arrays, scalars and
// empty objects are leaves; non-empty objects are descended into. These are
// the same paths a diff against an unrelated document would report.
func Walk(doc map[string]any, fn func(path Path, value any)) {
	walkObject(nil, doc, fn)
}

func walkObject(prefix Path, obj map[string]any, fn func(Path, any)) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := prefix.Child(k)
		if child, ok := obj[k].(map[string]any); ok && len(child) > 0 {
			walkObject(p, child, fn)
			continue
		}
		fn(p, obj[k])
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func arrayIndex(seg string) (int, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, eris.Wrapf(ErrInvalidPath, "segment %q is not an array index", seg)
	}
	return idx, nil
}
