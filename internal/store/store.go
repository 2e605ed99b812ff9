// Package store persists brand profiles and the crawl cache.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-cli/internal/model"
)

// ListFilter specifies criteria for listing profiles.
type ListFilter struct {
	OwnerID string              `json:"owner_id,omitempty"`
	Status  model.ProfileStatus `json:"status,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for brand profiles.
//
// Profiles are keyed by BrandID. UpdateProfile is a conditional write: it
// succeeds only when the stored revision equals p.Revision, and on success
// bumps p.Revision. A lost race returns model.ErrConflict.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, brandID string) (*model.Profile, error)
	ListProfiles(ctx context.Context, filter ListFilter) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, p *model.Profile) error
	DeleteProfile(ctx context.Context, brandID string) error

	// Crawl cache
	GetCachedCrawl(ctx context.Context, url string) (*model.CrawlCache, error)
	SetCachedCrawl(ctx context.Context, url string, pages []model.CrawledPage, ttl time.Duration) error
	DeleteExpiredCrawls(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// profileBlobs is the JSON encoding of the variable-shape profile columns.
type profileBlobs struct {
	document   []byte
	provenance []byte
	versions   []byte
}

func encodeProfile(p *model.Profile) (profileBlobs, error) {
	var b profileBlobs
	var err error

	doc := p.Document
	if doc == nil {
		doc = model.Document{}
	}
	if b.document, err = json.Marshal(doc); err != nil {
		return b, eris.Wrap(err, "store: marshal document")
	}
	prov := p.Provenance
	if prov == nil {
		prov = []model.ProvenanceRecord{}
	}
	if b.provenance, err = json.Marshal(prov); err != nil {
		return b, eris.Wrap(err, "store: marshal provenance")
	}
	versions := p.Versions
	if versions == nil {
		versions = []model.VersionEntry{}
	}
	if b.versions, err = json.Marshal(versions); err != nil {
		return b, eris.Wrap(err, "store: marshal versions")
	}
	return b, nil
}

func decodeProfile(p *model.Profile, b profileBlobs) error {
	if err := json.Unmarshal(b.document, &p.Document); err != nil {
		return eris.Wrap(err, "store: unmarshal document")
	}
	if p.Document == nil {
		p.Document = model.Document{}
	}
	if err := json.Unmarshal(b.provenance, &p.Provenance); err != nil {
		return eris.Wrap(err, "store: unmarshal provenance")
	}
	if err := json.Unmarshal(b.versions, &p.Versions); err != nil {
		return eris.Wrap(err, "store: unmarshal versions")
	}
	return nil
}

func notFound(brandID string) error {
	return eris.Wrapf(model.ErrNotFound, "brand %s", brandID)
}

func alreadyExists(brandID string) error {
	return eris.Wrapf(model.ErrAlreadyExists, "brand %s", brandID)
}

func conflict(brandID string, revision int64) error {
	return eris.Wrapf(model.ErrConflict, "brand %s at revision %d", brandID, revision)
}
