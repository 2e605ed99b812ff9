// Package ledger manages the append-only version history of a profile.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/model"
)

// Ledger appends version entries. The zero value is usable and stamps
// entries with a random UUID and the current UTC time.
type Ledger struct {
	Now   func() time.Time
	NewID func() string
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

func (l Ledger) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}

// Append returns history with one new entry on the end. The entry holds a
// deep copy of changes so later edits to the caller's map cannot rewrite
// history. Existing entries are never modified.
func (l Ledger) Append(history []model.VersionEntry, authorID, summary string, changes model.Changes) ([]model.VersionEntry, model.VersionEntry) {
	entry := model.VersionEntry{
		VersionID: l.newID(),
		Timestamp: l.now(),
		AuthorID:  authorID,
		Summary:   summary,
		Changes:   copyChanges(changes),
	}
	out := make([]model.VersionEntry, len(history), len(history)+1)
	copy(out, history)
	return append(out, entry), entry
}

// Get returns the entry with versionID, or nil.
func Get(history []model.VersionEntry, versionID string) *model.VersionEntry {
	for i := range history {
		if history[i].VersionID == versionID {
			e := history[i]
			return &e
		}
	}
	return nil
}

// Latest returns the most recent entry, or nil for an empty history.
func Latest(history []model.VersionEntry) *model.VersionEntry {
	if len(history) == 0 {
		return nil
	}
	e := history[len(history)-1]
	return &e
}

func copyChanges(changes model.Changes) model.Changes {
	out := make(model.Changes, len(changes))
	for path, c := range changes {
		out[path] = model.Change{
			Old:       document.Clone(c.Old),
			New:       document.Clone(c.New),
			OldAbsent: c.OldAbsent,
			NewAbsent: c.NewAbsent,
		}
	}
	return out
}
