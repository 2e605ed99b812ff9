package document

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/rotisserie/eris"
)

// Kind classifies a document value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of v. Go numeric types all map to KindNumber so
// documents built in code compare equal to documents decoded from JSON.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return KindNumber
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map, reflect.Struct:
		return KindObject
	case reflect.Pointer:
		if reflect.ValueOf(v).IsNil() {
			return KindNull
		}
		return KindOf(reflect.ValueOf(v).Elem().Interface())
	}
	return KindString
}

// Equal compares two values by their JSON encoding. Arrays are order
// sensitive; object key order is irrelevant.
func Equal(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}

// Normalize converts v into plain JSON shape (map[string]any, []any,
// float64, string, bool, nil) by round-tripping through encoding/json.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "document: marshal value")
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "document: unmarshal value")
	}
	return out, nil
}

// Clone deep-copies a JSON-shaped value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// CloneDoc deep-copies a document. A nil document clones to an empty one.
func CloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	return Clone(doc).(map[string]any)
}
