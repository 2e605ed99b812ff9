package model

// Section names of the brand document, in scoring order.
const (
	SectionIdentity           = "identity"
	SectionVoice              = "voice"
	SectionMessaging          = "messaging"
	SectionProducts           = "products"
	SectionAudience           = "audience"
	SectionProof              = "proof"
	SectionVisualIdentity     = "visual_identity"
	SectionCreativeGuidelines = "creative_guidelines"
	SectionSEO                = "seo"
	SectionCompetitive        = "competitive"
	SectionCompliance         = "compliance"
	SectionInteractionHistory = "interaction_history"
)

// ScoredSections returns the sections counted by the completion score.
// interaction_history is accumulated from usage, not extracted, so it is
// not part of completeness.
func ScoredSections() []string {
	return []string{
		SectionIdentity,
		SectionVoice,
		SectionMessaging,
		SectionProducts,
		SectionAudience,
		SectionProof,
		SectionVisualIdentity,
		SectionCreativeGuidelines,
		SectionSEO,
		SectionCompetitive,
		SectionCompliance,
	}
}

// AllSections returns every section a document may carry.
func AllSections() []string {
	return append(ScoredSections(), SectionInteractionHistory)
}

// IsSection reports whether name is a known top-level section.
func IsSection(name string) bool {
	for _, s := range AllSections() {
		if s == name {
			return true
		}
	}
	return false
}
