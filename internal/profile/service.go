// Package profile orchestrates extraction, scoring, diffing, provenance and
// version history for brand profiles.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brand-cli/internal/diff"
	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/extract"
	"github.com/sells-group/brand-cli/internal/ledger"
	"github.com/sells-group/brand-cli/internal/lock"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/provenance"
	"github.com/sells-group/brand-cli/internal/scorer"
	"github.com/sells-group/brand-cli/internal/store"
)

// SystemActor authors versions that no user triggered.
const SystemActor = "system"

// Repository is the slice of store.Store the service needs.
type Repository interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, brandID string) (*model.Profile, error)
	ListProfiles(ctx context.Context, filter store.ListFilter) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, p *model.Profile) error
	DeleteProfile(ctx context.Context, brandID string) error
}

// CreateRequest identifies the brand to extract.
type CreateRequest struct {
	BrandID string `json:"brand_id" validate:"required,max=128"`
	OwnerID string `json:"owner_id" validate:"required,max=128"`
	Name    string `json:"name" validate:"required,max=256"`
	URL     string `json:"url" validate:"required,url"`
}

// FieldUpdate is a user edit of one field.
type FieldUpdate struct {
	Path      string `json:"path" validate:"required"`
	Value     any    `json:"value"`
	SourceURL string `json:"source_url,omitempty" validate:"omitempty,url"`
}

// Service implements the profile lifecycle. It is safe for concurrent use;
// writers of the same brand are serialized by the locker and by the
// repository's conditional update.
type Service struct {
	repo           Repository
	extractor      extract.Extractor
	locker         lock.Locker
	ledger         ledger.Ledger
	now            func() time.Time
	newID          func() string
	extractTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the in-process keyed mutex, e.g. with a Redis locker
// shared across replicas.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how profile and version IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithExtractTimeout bounds each extractor call. Zero leaves only the
// caller's deadline.
func WithExtractTimeout(d time.Duration) Option {
	return func(s *Service) { s.extractTimeout = d }
}

// NewService creates a Service.
func NewService(repo Repository, extractor extract.Extractor, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		extractor: extractor,
		locker:    lock.NewLocal(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.ledger = ledger.Ledger{Now: s.now, NewID: s.newID}
	return s
}

// CreateFromExtraction extracts and stores the first profile of a brand.
// Nothing is written when the brand already has a profile or extraction
// fails.
func (s *Service) CreateFromExtraction(ctx context.Context, req CreateRequest) (*model.Profile, error) {
	if strings.TrimSpace(req.BrandID) == "" {
		return nil, eris.New("profile: brand id is required")
	}

	release, err := s.locker.Lock(ctx, req.BrandID)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: lock %s", req.BrandID)
	}
	defer release()

	if _, err := s.repo.GetProfile(ctx, req.BrandID); err == nil {
		return nil, eris.Wrapf(model.ErrAlreadyExists, "profile: create %s", req.BrandID)
	} else if !eris.Is(err, model.ErrNotFound) {
		return nil, eris.Wrapf(err, "profile: check existing %s", req.BrandID)
	}

	res, err := s.extract(ctx, req.BrandID, req.Name, req.URL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := res.Document
	score := scorer.Score(doc)
	p := &model.Profile{
		ID:              s.newID(),
		BrandID:         req.BrandID,
		OwnerID:         req.OwnerID,
		Name:            req.Name,
		URL:             req.URL,
		Status:          scorer.StatusFor(score),
		CompletionScore: score,
		Document:        doc,
		Provenance:      res.Provenance,
		Versions:        []model.VersionEntry{},
		LastCrawledAt:   &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Provenance == nil {
		p.Provenance = []model.ProvenanceRecord{}
	}

	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return nil, eris.Wrapf(err, "profile: create %s", req.BrandID)
	}

	zap.L().Info("profile: created",
		zap.String("brand_id", p.BrandID),
		zap.String("channel", res.Channel),
		zap.Int("score", score),
		zap.String("status", string(p.Status)),
	)
	return p, nil
}

// ReCrawl re-extracts a brand, replaces its document and provenance and
// returns the changes for review. The new document is live on return;
// review decisions are applied with AcceptChanges.
func (s *Service) ReCrawl(ctx context.Context, brandID, actorID string) (*model.Profile, model.Changes, error) {
	release, err := s.locker.Lock(ctx, brandID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "profile: lock %s", brandID)
	}
	defer release()

	p, err := s.load(ctx, brandID)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.extract(ctx, brandID, p.Name, p.URL)
	if err != nil {
		return nil, nil, err
	}

	doc := res.Document
	changes := diff.Compute(p.Document, doc)

	now := s.now()
	p.Document = doc
	p.Provenance = res.Provenance
	if p.Provenance == nil {
		p.Provenance = []model.ProvenanceRecord{}
	}
	p.CompletionScore = scorer.Score(doc)
	p.Status = model.StatusNeedsReview
	p.Versions, _ = s.ledger.Append(p.Versions, actorOrSystem(actorID), diff.Summary("Re-crawl", changes), changes)
	p.LastCrawledAt = &now
	p.UpdatedAt = now

	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, nil, eris.Wrapf(err, "profile: save re-crawl %s", brandID)
	}

	zap.L().Info("profile: re-crawled",
		zap.String("brand_id", brandID),
		zap.String("channel", res.Channel),
		zap.Int("changes", len(changes)),
		zap.Int("score", p.CompletionScore),
	)
	return p, changes, nil
}

// UpdateField sets one field to a user supplied value. The field's
// provenance becomes a single user record at full trust.
func (s *Service) UpdateField(ctx context.Context, brandID string, upd FieldUpdate, editorID string) (*model.Profile, error) {
	path, err := document.ParsePath(upd.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: update field %s", brandID)
	}
	value, err := document.Normalize(upd.Value)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: update field %s", brandID)
	}

	var out *model.Profile
	err = s.mutate(ctx, brandID, func(p *model.Profile) (bool, error) {
		old, had := document.Get(p.Document, path)
		if err := document.Set(p.Document, path, value); err != nil {
			return false, err
		}

		tr := s.tracker(p)
		tr.Remove(path.String())
		tr.MarkAncestorsHybrid(path.String())
		tr.RecordUserEdit(path.String(), upd.SourceURL, editorID)
		p.Provenance = tr.Records()

		changes := model.Changes{path.String(): {
			Old:       document.Clone(old),
			New:       document.Clone(value),
			OldAbsent: !had,
		}}
		p.Versions, _ = s.ledger.Append(p.Versions, actorOrSystem(editorID), diff.Summary("Field update", changes), changes)
		s.rescore(p)
		out = p
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveField raises a field's provenance to full trust without touching
// the document, the score or the history. Approving an already approved
// field by the same editor writes nothing.
func (s *Service) ApproveField(ctx context.Context, brandID, fieldPath, editorID string) (*model.Profile, error) {
	path, err := document.ParsePath(fieldPath)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: approve field %s", brandID)
	}

	var out *model.Profile
	err = s.mutate(ctx, brandID, func(p *model.Profile) (bool, error) {
		out = p
		if r := p.ProvenanceFor(path.String()); r != nil &&
			r.TrustScore == provenance.TrustApproved &&
			r.ExtractionMethod == model.MethodUser &&
			r.EditorID == editorID {
			return false, nil
		}
		tr := s.tracker(p)
		tr.Approve(path.String(), editorID)
		p.Provenance = tr.Records()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptChanges applies reviewed re-crawl changes as user edits in one
// write. Each accepted path is set to its new value, or removed when the
// new side is absent, and its provenance becomes a user record. Paths left
// out of accepted are rejections and cause no mutation.
func (s *Service) AcceptChanges(ctx context.Context, brandID string, accepted model.Changes, editorID string) (*model.Profile, error) {
	if len(accepted) == 0 {
		return s.Get(ctx, brandID)
	}
	for _, raw := range accepted.Paths() {
		if _, err := document.ParsePath(raw); err != nil {
			return nil, eris.Wrapf(err, "profile: accept changes %s", brandID)
		}
	}

	var out *model.Profile
	err := s.mutate(ctx, brandID, func(p *model.Profile) (bool, error) {
		before := document.CloneDoc(p.Document)
		if err := diff.Apply(p.Document, accepted); err != nil {
			return false, err
		}

		tr := s.tracker(p)
		for _, raw := range accepted.Paths() {
			tr.Remove(raw)
			tr.MarkAncestorsHybrid(raw)
			if !accepted[raw].NewAbsent {
				tr.RecordUserEdit(raw, p.URL, editorID)
			}
		}
		p.Provenance = tr.Records()

		changes := diff.Compute(before, p.Document)
		summary := fmt.Sprintf("Review: %d of %d accepted field(s) changed", len(changes), len(accepted))
		p.Versions, _ = s.ledger.Append(p.Versions, actorOrSystem(editorID), summary, changes)
		s.rescore(p)
		out = p
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the profile of a brand.
func (s *Service) Get(ctx context.Context, brandID string) (*model.Profile, error) {
	return s.load(ctx, brandID)
}

// List returns profiles matching filter.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]model.Profile, error) {
	out, err := s.repo.ListProfiles(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "profile: list")
	}
	return out, nil
}

// Delete removes the profile of a brand.
func (s *Service) Delete(ctx context.Context, brandID string) error {
	release, err := s.locker.Lock(ctx, brandID)
	if err != nil {
		return eris.Wrapf(err, "profile: lock %s", brandID)
	}
	defer release()

	if err := s.repo.DeleteProfile(ctx, brandID); err != nil {
		return eris.Wrapf(err, "profile: delete %s", brandID)
	}
	zap.L().Info("profile: deleted", zap.String("brand_id", brandID))
	return nil
}

// GetVersion returns one version entry, or nil when the profile has no
// version with that ID.
func (s *Service) GetVersion(ctx context.Context, brandID, versionID string) (*model.VersionEntry, error) {
	p, err := s.load(ctx, brandID)
	if err != nil {
		return nil, err
	}
	return ledger.Get(p.Versions, versionID), nil
}

// Score returns the completion breakdown of a stored profile.
func (s *Service) Score(ctx context.Context, brandID string) (scorer.Breakdown, error) {
	p, err := s.load(ctx, brandID)
	if err != nil {
		return scorer.Breakdown{}, err
	}
	return scorer.Explain(p.Document), nil
}

func (s *Service) load(ctx context.Context, brandID string) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, brandID)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: get %s", brandID)
	}
	if p.Document == nil {
		p.Document = model.Document{}
	}
	return p, nil
}

// mutate loads a profile under the brand lock, applies fn and saves the
// result when fn reports a change.
func (s *Service) mutate(ctx context.Context, brandID string, fn func(p *model.Profile) (bool, error)) error {
	release, err := s.locker.Lock(ctx, brandID)
	if err != nil {
		return eris.Wrapf(err, "profile: lock %s", brandID)
	}
	defer release()

	p, err := s.load(ctx, brandID)
	if err != nil {
		return err
	}
	changed, err := fn(p)
	if err != nil {
		return eris.Wrapf(err, "profile: mutate %s", brandID)
	}
	if !changed {
		return nil
	}
	p.UpdatedAt = s.now()
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return eris.Wrapf(err, "profile: save %s", brandID)
	}
	return nil
}

func (s *Service) extract(ctx context.Context, brandID, name, url string) (*extract.Result, error) {
	if s.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.extractTimeout)
		defer cancel()
	}
	res, err := s.extractor.Extract(ctx, name, url)
	if err != nil {
		zap.L().Warn("profile: extraction failed", zap.String("brand_id", brandID), zap.Error(err))
		return nil, &ExtractionError{BrandID: brandID, Err: err}
	}
	if res == nil {
		return nil, &ExtractionError{BrandID: brandID, Err: eris.New("extractor returned no result")}
	}

	// Scoring, diffing and provenance only see plain JSON trees, so typed
	// maps and slices from the extractor are flattened first.
	doc := model.Document{}
	if res.Document != nil {
		v, err := document.Normalize(res.Document)
		if err != nil {
			return nil, &ExtractionError{BrandID: brandID, Err: err}
		}
		obj, ok := v.(map[string]any)
		if !ok && v != nil {
			return nil, &ExtractionError{BrandID: brandID, Err: eris.Errorf("extractor returned %T, want an object", v)}
		}
		if obj != nil {
			doc = obj
		}
	}
	res.Document = doc
	if len(res.Provenance) == 0 {
		source := res.SourceURL
		if source == "" {
			source = url
		}
		res.Provenance = provenance.FromDocument(doc, source, res.Confidence, s.now())
	} else {
		res.Provenance = provenance.Expand(doc, res.Provenance)
	}
	return res, nil
}

func (s *Service) tracker(p *model.Profile) *provenance.Tracker {
	return provenance.New(p.Provenance, provenance.WithClock(s.now))
}

// rescore recomputes the score and derives the status from it.
func (s *Service) rescore(p *model.Profile) {
	p.CompletionScore = scorer.Score(p.Document)
	p.Status = scorer.StatusFor(p.CompletionScore)
}

func actorOrSystem(id string) string {
	if id == "" {
		return SystemActor
	}
	return id
}
