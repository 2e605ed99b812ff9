package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChange_AbsentSideOmitted(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Change{New: "Acme", OldAbsent: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"new":"Acme"}`, string(data))
}

func TestChange_NullIsNotAbsent(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Change{Old: nil, New: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"old":null,"new":"x"}`, string(data))

	var decoded Change
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.OldAbsent)
	assert.Nil(t, decoded.Old)
	assert.Equal(t, "x", decoded.New)
}

func TestChange_UnmarshalMissingKey(t *testing.T) {
	t.Parallel()

	var c Change
	require.NoError(t, json.Unmarshal([]byte(`{"old":["bold"]}`), &c))
	assert.True(t, c.NewAbsent)
	assert.False(t, c.OldAbsent)
	assert.Equal(t, []any{"bold"}, c.Old)
}

func TestChanges_PathsSorted(t *testing.T) {
	t.Parallel()

	c := Changes{
		"voice.tone":             {},
		"identity.official_name": {},
		"audience":               {},
	}
	assert.Equal(t, []string{"audience", "identity.official_name", "voice.tone"}, c.Paths())
}

func TestVersionEntry_ChangesSurviveEncoding(t *testing.T) {
	t.Parallel()

	v := VersionEntry{
		VersionID: "v1",
		AuthorID:  "user-1",
		Summary:   "Updated voice.tone",
		Changes: Changes{
			"voice.tone": {Old: []any{"bold"}, New: []any{"bold", "warm"}},
			"seo.slug":   {Old: "acme", NewAbsent: true},
		},
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded VersionEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Changes, 2)
	assert.True(t, decoded.Changes["seo.slug"].NewAbsent)
	assert.Equal(t, []any{"bold", "warm"}, decoded.Changes["voice.tone"].New)
}
