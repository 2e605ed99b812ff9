// Package provenance maintains per-field source and trust records for a
// brand document.
package provenance

import (
	"sort"
	"time"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/model"
)

// Trust scores assigned to field values.
const (
	// TrustApproved is the score of any value a human has approved or typed.
	TrustApproved = 100

	// ConfidenceHighFidelity applies to values extracted from pages fetched
	// through a rendering reader (Jina, Firecrawl).
	ConfidenceHighFidelity = 85
	// ConfidenceLowFidelity applies to values extracted from raw HTTP fetches.
	ConfidenceLowFidelity = 70
	// ConfidenceNoContent applies when no page content was retrieved and the
	// model answered from the brand name alone.
	ConfidenceNoContent = 40
)

// Tracker holds at most one record per field path. It is not safe for
// concurrent use; callers serialize access per profile.
type Tracker struct {
	records map[string]*model.ProvenanceRecord
	order   []string
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker seeded with existing records. Later duplicates of a
// field path replace earlier ones.
func New(existing []model.ProvenanceRecord, opts ...Option) *Tracker {
	t := &Tracker{
		records: make(map[string]*model.ProvenanceRecord, len(existing)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(t)
	}
	for _, r := range existing {
		t.put(r)
	}
	return t
}

func (t *Tracker) put(r model.ProvenanceRecord) {
	if _, ok := t.records[r.FieldPath]; !ok {
		t.order = append(t.order, r.FieldPath)
	}
	rec := r
	t.records[r.FieldPath] = &rec
}

// RecordAuto upserts an automatically extracted value with the given
// source and confidence.
func (t *Tracker) RecordAuto(fieldPath, sourceURL string, confidence int) {
	t.put(model.ProvenanceRecord{
		FieldPath:        fieldPath,
		SourceURL:        sourceURL,
		LastUpdated:      t.now(),
		TrustScore:       clampTrust(confidence),
		ExtractionMethod: model.MethodAuto,
	})
}

// Approve marks a field as human approved. The source URL is kept from the
// path's own record. A path without a record takes the source URL of the
// first tracked record, or none if the tracker is empty.
// Approving twice yields the same record apart from LastUpdated.
func (t *Tracker) Approve(fieldPath, editorID string) model.ProvenanceRecord {
	source := ""
	if prev, ok := t.records[fieldPath]; ok {
		source = prev.SourceURL
	} else if len(t.order) > 0 {
		// TODO: drop the borrowed source once approvals of untracked paths
		// are recorded as user edits.
		source = t.records[t.order[0]].SourceURL
	}
	rec := model.ProvenanceRecord{
		FieldPath:        fieldPath,
		SourceURL:        source,
		LastUpdated:      t.now(),
		TrustScore:       TrustApproved,
		EditorID:         editorID,
		ExtractionMethod: model.MethodUser,
	}
	t.put(rec)
	return rec
}

// RecordUserEdit stores provenance for a value entered by a user.
// sourceURL is where the user took the value from and may be empty.
func (t *Tracker) RecordUserEdit(fieldPath, sourceURL, editorID string) model.ProvenanceRecord {
	rec := model.ProvenanceRecord{
		FieldPath:        fieldPath,
		SourceURL:        sourceURL,
		LastUpdated:      t.now(),
		TrustScore:       TrustApproved,
		EditorID:         editorID,
		ExtractionMethod: model.MethodUser,
	}
	t.put(rec)
	return rec
}

// Get returns a copy of the record for fieldPath.
func (t *Tracker) Get(fieldPath string) (model.ProvenanceRecord, bool) {
	r, ok := t.records[fieldPath]
	if !ok {
		return model.ProvenanceRecord{}, false
	}
	return *r, true
}

// Remove drops the record for fieldPath and every path beneath it. It
// reports whether anything was removed.
func (t *Tracker) Remove(fieldPath string) bool {
	target, err := document.ParsePath(fieldPath)
	if err != nil {
		_, ok := t.records[fieldPath]
		delete(t.records, fieldPath)
		t.compact()
		return ok
	}
	removed := false
	for path := range t.records {
		p, err := document.ParsePath(path)
		if err != nil || !p.HasPrefix(target) {
			continue
		}
		delete(t.records, path)
		removed = true
	}
	t.compact()
	return removed
}

// MarkAncestorsHybrid flags every record above fieldPath as hybrid, since
// the value it covers now holds a user edit. Trust is left unchanged.
func (t *Tracker) MarkAncestorsHybrid(fieldPath string) int {
	target, err := document.ParsePath(fieldPath)
	if err != nil {
		return 0
	}
	n := 0
	for i := len(target) - 1; i > 0; i-- {
		r, ok := t.records[target[:i].String()]
		if !ok || r.ExtractionMethod == model.MethodHybrid {
			continue
		}
		r.ExtractionMethod = model.MethodHybrid
		r.LastUpdated = t.now()
		n++
	}
	return n
}

func (t *Tracker) compact() {
	kept := t.order[:0]
	for _, p := range t.order {
		if _, ok := t.records[p]; ok {
			kept = append(kept, p)
		}
	}
	t.order = kept
}

// Len returns the number of tracked paths.
func (t *Tracker) Len() int { return len(t.records) }

// Records returns all records in first-insertion order.
func (t *Tracker) Records() []model.ProvenanceRecord {
	out := make([]model.ProvenanceRecord, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, *t.records[p])
	}
	return out
}

// LowTrust returns the records whose trust is below threshold, sorted by
// path. These are the fields a reviewer should look at first.
func (t *Tracker) LowTrust(threshold int) []model.ProvenanceRecord {
	var out []model.ProvenanceRecord
	for _, r := range t.records {
		if r.TrustScore < threshold {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldPath < out[j].FieldPath })
	return out
}

// FromDocument builds auto records for every leaf of doc. Arrays and empty
// objects are leaves. Records are ordered by path.
func FromDocument(doc map[string]any, sourceURL string, confidence int, now time.Time) []model.ProvenanceRecord {
	var out []model.ProvenanceRecord
	document.Walk(doc, func(p document.Path, _ any) {
		out = append(out, model.ProvenanceRecord{
			FieldPath:        p.String(),
			SourceURL:        sourceURL,
			LastUpdated:      now,
			TrustScore:       clampTrust(confidence),
			ExtractionMethod: model.MethodAuto,
		})
	})
	return out
}

// Expand rewrites records that point at a non-empty object of doc into one
// record per leaf beneath it, carrying the same source and trust. Leaf
// records and records for paths missing from doc are kept as they are.
// A leaf with its own record keeps it.
func Expand(doc map[string]any, records []model.ProvenanceRecord) []model.ProvenanceRecord {
	own := make(map[string]bool, len(records))
	for _, r := range records {
		own[r.FieldPath] = true
	}
	var out []model.ProvenanceRecord
	for _, r := range records {
		base, err := document.ParsePath(r.FieldPath)
		if err != nil {
			out = append(out, r)
			continue
		}
		v, _ := document.Get(doc, base)
		obj, ok := v.(map[string]any)
		if !ok || len(obj) == 0 {
			out = append(out, r)
			continue
		}
		document.Walk(obj, func(p document.Path, _ any) {
			full := append(append(document.Path{}, base...), p...).String()
			if own[full] {
				return
			}
			own[full] = true
			leaf := r
			leaf.FieldPath = full
			out = append(out, leaf)
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FieldPath < out[j].FieldPath })
	return out
}

func clampTrust(v int) int {
	switch {
	case v < 0:
		return 0
	case v > TrustApproved:
		return TrustApproved
	default:
		return v
	}
}
