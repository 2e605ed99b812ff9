package model

import "time"

// ProfileStatus represents the review state of a brand profile.
type ProfileStatus string

const (
	StatusComplete    ProfileStatus = "complete"
	StatusNeedsReview ProfileStatus = "needs_review"
	StatusInProgress  ProfileStatus = "in_progress" // assigned by callers only, never by scoring
)

// ExtractionMethod describes how a field value was obtained.
type ExtractionMethod string

const (
	MethodAuto   ExtractionMethod = "auto"
	MethodUser   ExtractionMethod = "user"
	MethodHybrid ExtractionMethod = "hybrid"
)

// Document is the nested brand profile tree. Values are JSON-shaped:
// map[string]any, []any, string, float64, bool or nil.
type Document = map[string]any

// ProvenanceRecord tracks where a single field value came from and how much
// it is trusted.
type ProvenanceRecord struct {
	FieldPath        string           `json:"field_path"`
	SourceURL        string           `json:"source_url"`
	LastUpdated      time.Time        `json:"last_updated"`
	TrustScore       int              `json:"trust_score"`
	EditorID         string           `json:"editor_id,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
}

// VersionEntry is one immutable entry in a profile's history.
type VersionEntry struct {
	VersionID string    `json:"version_id"`
	Timestamp time.Time `json:"timestamp"`
	AuthorID  string    `json:"author_id"`
	Summary   string    `json:"summary"`
	Changes   Changes   `json:"changes"`
}

// Profile is the versioned brand document plus its provenance and history.
type Profile struct {
	ID              string             `json:"id"`
	BrandID         string             `json:"brand_id"`
	OwnerID         string             `json:"owner_id"`
	Name            string             `json:"name"`
	URL             string             `json:"url"`
	Status          ProfileStatus      `json:"status"`
	CompletionScore int                `json:"completion_score"`
	Document        Document           `json:"document"`
	Provenance      []ProvenanceRecord `json:"provenance"`
	Versions        []VersionEntry     `json:"versions"`
	LastCrawledAt   *time.Time         `json:"last_crawled_at,omitempty"`
	Revision        int64              `json:"revision"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ProvenanceFor returns the record for a field path, or nil if none exists.
func (p *Profile) ProvenanceFor(fieldPath string) *ProvenanceRecord {
	for i := range p.Provenance {
		if p.Provenance[i].FieldPath == fieldPath {
			return &p.Provenance[i]
		}
	}
	return nil
}
