package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_ProvenanceFor(t *testing.T) {
	t.Parallel()

	p := &Profile{Provenance: []ProvenanceRecord{
		{FieldPath: "identity.official_name", TrustScore: 85},
		{FieldPath: "voice.tone", TrustScore: 70},
	}}

	rec := p.ProvenanceFor("voice.tone")
	require.NotNil(t, rec)
	assert.Equal(t, 70, rec.TrustScore)

	rec.TrustScore = 100
	assert.Equal(t, 100, p.Provenance[1].TrustScore, "returned record aliases the slice element")

	assert.Nil(t, p.ProvenanceFor("seo.keywords"))
}

func TestSections(t *testing.T) {
	t.Parallel()

	assert.Len(t, ScoredSections(), 11)
	assert.Len(t, AllSections(), 12)
	assert.True(t, IsSection(SectionVisualIdentity))
	assert.True(t, IsSection(SectionInteractionHistory))
	assert.False(t, IsSection("pricing"))
}
