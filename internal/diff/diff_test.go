package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/model"
)

func parseDoc(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestCompute_IdenticalIsEmpty(t *testing.T) {
	t.Parallel()

	docs := []string{
		`{}`,
		`{"identity":{"official_name":"Acme"}}`,
		`{"voice":{"tone":["bold","warm"],"rules":{"do":["x"],"dont":[]}},"seo":null}`,
	}
	for _, s := range docs {
		a := parseDoc(t, s)
		assert.Empty(t, Compute(a, a), s)
		assert.Empty(t, Compute(a, parseDoc(t, s)), s)
	}
}

func TestCompute_ArrayIsWholesale(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"voice":{"tone":["bold"]}}`)
	cur := parseDoc(t, `{"voice":{"tone":["bold","warm"]}}`)

	changes := Compute(old, cur)
	require.Len(t, changes, 1)
	c := changes["voice.tone"]
	assert.Equal(t, []any{"bold"}, c.Old)
	assert.Equal(t, []any{"bold", "warm"}, c.New)
	assert.False(t, c.OldAbsent)
	assert.False(t, c.NewAbsent)
}

func TestCompute_DeepArrayElementChangeReportsArrayPath(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"products":{"items":[{"name":"Anvil","price":10}]}}`)
	cur := parseDoc(t, `{"products":{"items":[{"name":"Anvil","price":12}]}}`)

	changes := Compute(old, cur)
	assert.Equal(t, []string{"products.items"}, changes.Paths())
}

func TestCompute_KindMismatchStopsDescent(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"seo":"legacy"}`)
	cur := parseDoc(t, `{"seo":{"keywords":["anvil"],"slug":"acme"}}`)

	changes := Compute(old, cur)
	require.Len(t, changes, 1)
	assert.Equal(t, "legacy", changes["seo"].Old)
	assert.Equal(t, map[string]any{"keywords": []any{"anvil"}, "slug": "acme"}, changes["seo"].New)
}

func TestCompute_NullVersusObject(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"proof":null}`)
	cur := parseDoc(t, `{"proof":{"awards":[]}}`)

	changes := Compute(old, cur)
	assert.Equal(t, []string{"proof"}, changes.Paths())
}

func TestCompute_OneSidedKeys(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"identity":{"official_name":"Acme","legacy_name":"ACME Co"}}`)
	cur := parseDoc(t, `{"identity":{"official_name":"Acme","tagline":"Beep"}}`)

	changes := Compute(old, cur)
	require.Len(t, changes, 2)

	removed := changes["identity.legacy_name"]
	assert.True(t, removed.NewAbsent)
	assert.Equal(t, "ACME Co", removed.Old)

	added := changes["identity.tagline"]
	assert.True(t, added.OldAbsent)
	assert.Equal(t, "Beep", added.New)
}

func TestCompute_ScalarChanges(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"identity":{"founded":1999,"public":false,"name":"Acme"}}`)
	cur := parseDoc(t, `{"identity":{"founded":2001,"public":false,"name":"Acme"}}`)

	changes := Compute(old, cur)
	assert.Equal(t, []string{"identity.founded"}, changes.Paths())
}

func TestCompute_NilDocuments(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Compute(nil, nil))
	changes := Compute(nil, parseDoc(t, `{"identity":{"official_name":"Acme"}}`))
	assert.Equal(t, []string{"identity"}, changes.Paths())
	assert.True(t, changes["identity"].OldAbsent)
}

func TestCompute_EscapedKeys(t *testing.T) {
	t.Parallel()

	old := parseDoc(t, `{"seo":{"acme.com":"a"}}`)
	cur := parseDoc(t, `{"seo":{"acme.com":"b"}}`)

	changes := Compute(old, cur)
	assert.Equal(t, []string{`seo.acme\.com`}, changes.Paths())
}

// The paths of a diff never contain an ancestor/descendant pair, and
// replaying the diff onto A reconstructs B.
func TestCompute_MinimalAndReconstructs(t *testing.T) {
	t.Parallel()

	cases := []struct{ a, b string }{
		{`{}`, `{"identity":{"official_name":"Acme"}}`},
		{`{"identity":{"official_name":"Acme","x":1}}`, `{}`},
		{
			`{"voice":{"tone":["bold"],"persona":{"age":30,"style":"dry"}},"seo":"old","proof":{"awards":["a"]}}`,
			`{"voice":{"tone":["bold","warm"],"persona":{"age":31}},"seo":{"slug":"acme"},"audience":{"segments":["smb"]}}`,
		},
		{`{"a":{"b":{"c":{"d":1}}}}`, `{"a":{"b":{"c":{"d":2,"e":null}}}}`},
	}

	for _, tc := range cases {
		a, b := parseDoc(t, tc.a), parseDoc(t, tc.b)
		changes := Compute(a, b)

		paths := changes.Paths()
		for i := range paths {
			for j := range paths {
				if i == j {
					continue
				}
				pi := document.MustParsePath(paths[i])
				pj := document.MustParsePath(paths[j])
				assert.False(t, pi.HasPrefix(pj), "%s overlaps %s", paths[i], paths[j])
			}
		}

		rebuilt := document.CloneDoc(a)
		require.NoError(t, Apply(rebuilt, changes))
		assert.Empty(t, Compute(rebuilt, b), "apply(%s) should equal %s", tc.a, tc.b)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Re-crawl: no changes", Summary("Re-crawl", model.Changes{}))
	assert.Equal(t, "Re-crawl: 1 field changed (voice.tone)", Summary("Re-crawl", model.Changes{"voice.tone": {}}))
	assert.Equal(t, "Re-crawl: 2 fields changed", Summary("Re-crawl", model.Changes{"a": {}, "b": {}}))
}

func TestSections(t *testing.T) {
	t.Parallel()

	got := Sections(model.Changes{"voice.tone": {}, "voice.persona.age": {}, "seo": {}})
	assert.Equal(t, map[string][]string{
		"seo":   {"seo"},
		"voice": {"voice.persona.age", "voice.tone"},
	}, got)
}
