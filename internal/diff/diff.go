// Package diff structurally compares brand documents and produces a flat
// map of changed field paths.
package diff

import (
	"fmt"
	"sort"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/model"
)

// Compute returns the changes needed to turn oldDoc into newDoc.
//
// Rules, applied at each path starting from the root:
//   - kinds differ: record the pair and stop descending
//   - both arrays: compare serialized forms; record one entry at the array
//     path and never descend into elements
//   - both objects: recurse over the union of keys; a key on one side only
//     is recorded with the other side absent
//   - scalars: record when unequal
//
// The resulting paths never overlap as ancestor and descendant.
func Compute(oldDoc, newDoc map[string]any) model.Changes {
	changes := model.Changes{}
	if oldDoc == nil {
		oldDoc = map[string]any{}
	}
	if newDoc == nil {
		newDoc = map[string]any{}
	}
	compareObjects(nil, oldDoc, newDoc, changes)
	return changes
}

func compare(path document.Path, oldV, newV any, changes model.Changes) {
	oldKind, newKind := document.KindOf(oldV), document.KindOf(newV)
	if oldKind != newKind {
		changes[path.String()] = model.Change{Old: oldV, New: newV}
		return
	}
	switch oldKind {
	case document.KindArray:
		if !document.Equal(oldV, newV) {
			changes[path.String()] = model.Change{Old: oldV, New: newV}
		}
	case document.KindObject:
		oldObj, okOld := oldV.(map[string]any)
		newObj, okNew := newV.(map[string]any)
		if !okOld || !okNew {
			if !document.Equal(oldV, newV) {
				changes[path.String()] = model.Change{Old: oldV, New: newV}
			}
			return
		}
		compareObjects(path, oldObj, newObj, changes)
	default:
		if !document.Equal(oldV, newV) {
			changes[path.String()] = model.Change{Old: oldV, New: newV}
		}
	}
}

func compareObjects(prefix document.Path, oldObj, newObj map[string]any, changes model.Changes) {
	for _, key := range unionKeys(oldObj, newObj) {
		p := prefix.Child(key)
		oldV, inOld := oldObj[key]
		newV, inNew := newObj[key]
		switch {
		case inOld && inNew:
			compare(p, oldV, newV, changes)
		case inOld:
			changes[p.String()] = model.Change{Old: oldV, NewAbsent: true}
		default:
			changes[p.String()] = model.Change{New: newV, OldAbsent: true}
		}
	}
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Apply replays changes onto doc: each path is set to its new value, or
// deleted when the new side is absent. Because Compute never emits
// overlapping paths the order of application does not matter.
func Apply(doc map[string]any, changes model.Changes) error {
	for _, raw := range changes.Paths() {
		p, err := document.ParsePath(raw)
		if err != nil {
			return err
		}
		c := changes[raw]
		if c.NewAbsent {
			document.Delete(doc, p)
			continue
		}
		if err := document.Set(doc, p, document.Clone(c.New)); err != nil {
			return err
		}
	}
	return nil
}

// Summary renders a one-line description of a change set, as stored on
// version entries.
func Summary(prefix string, changes model.Changes) string {
	n := len(changes)
	switch n {
	case 0:
		return prefix + ": no changes"
	case 1:
		return fmt.Sprintf("%s: 1 field changed (%s)", prefix, changes.Paths()[0])
	default:
		return fmt.Sprintf("%s: %d fields changed", prefix, n)
	}
}

// Sections groups changed paths by their top-level section.
func Sections(changes model.Changes) map[string][]string {
	out := make(map[string][]string)
	for _, raw := range changes.Paths() {
		section := raw
		if p, err := document.ParsePath(raw); err == nil {
			section = p.Section()
		}
		out[section] = append(out[section], raw)
	}
	return out
}
