package model

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Change is the old/new pair recorded for one changed field path. A side
// that did not exist in its document is absent, which is distinct from a
// JSON null and is omitted when encoded.
type Change struct {
	Old       any  `json:"old"`
	New       any  `json:"new"`
	OldAbsent bool `json:"-"`
	NewAbsent bool `json:"-"`
}

// Changes maps dot-separated field paths to their change.
type Changes map[string]Change

// Paths returns the changed paths in sorted order.
func (c Changes) Paths() []string {
	paths := make([]string, 0, len(c))
	for p := range c {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// MarshalJSON omits absent sides and keeps explicit nulls.
func (c Change) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if !c.OldAbsent {
		out["old"] = c.Old
	}
	if !c.NewAbsent {
		out["new"] = c.New
	}
	return json.Marshal(out)
}

// UnmarshalJSON marks a side absent when its key is missing.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal change")
	}
	*c = Change{}
	if v, ok := raw["old"]; ok {
		if err := json.Unmarshal(v, &c.Old); err != nil {
			return eris.Wrap(err, "model: unmarshal change old")
		}
	} else {
		c.OldAbsent = true
	}
	if v, ok := raw["new"]; ok {
		if err := json.Unmarshal(v, &c.New); err != nil {
			return eris.Wrap(err, "model: unmarshal change new")
		}
	} else {
		c.NewAbsent = true
	}
	return nil
}
