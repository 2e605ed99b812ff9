package profile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brand-cli/internal/document"
	"github.com/sells-group/brand-cli/internal/extract"
	"github.com/sells-group/brand-cli/internal/extract/mocks"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/provenance"
	"github.com/sells-group/brand-cli/internal/scorer"
	"github.com/sells-group/brand-cli/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestService(t *testing.T, repo Repository, ex extract.Extractor, opts ...Option) *Service {
	t.Helper()
	var mu sync.Mutex
	n := 0
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}, opts...)
	return NewService(repo, ex, opts...)
}

func result(doc model.Document, confidence int) *extract.Result {
	return &extract.Result{
		Document:   doc,
		Provenance: provenance.FromDocument(doc, "https://acme.com", confidence, testNow),
		Channel:    "jina",
		Confidence: confidence,
		SourceURL:  "https://acme.com",
	}
}

// fullDoc fills one field in every scored section.
func fullDoc() model.Document {
	doc := model.Document{}
	for _, s := range model.ScoredSections() {
		doc[s] = map[string]any{"summary": "x"}
	}
	doc["voice"] = map[string]any{"tone": []any{"bold"}}
	return doc
}

var acme = CreateRequest{BrandID: "acme", OwnerID: "u1", Name: "Acme", URL: "https://acme.com"}

func createAcme(t *testing.T, svc *Service, ex *mocks.MockExtractor, doc model.Document) *model.Profile {
	t.Helper()
	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(result(doc, provenance.ConfidenceHighFidelity), nil).Once()
	p, err := svc.CreateFromExtraction(context.Background(), acme)
	require.NoError(t, err)
	return p
}

func TestCreateFromExtraction(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)

	p := createAcme(t, svc, ex, fullDoc())
	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, 100, p.CompletionScore)
	assert.Equal(t, model.StatusComplete, p.Status)
	assert.Empty(t, p.Versions)
	require.NotNil(t, p.LastCrawledAt)
	assert.Len(t, p.Provenance, 11)

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, p.Document, stored.Document)
	assert.Equal(t, "u1", stored.OwnerID)
}

func TestCreateFromExtraction_Scores(t *testing.T) {
	tests := []struct {
		name       string
		doc        model.Document
		wantScore  int
		wantStatus model.ProfileStatus
	}{
		{"empty document", model.Document{}, 0, model.StatusNeedsReview},
		{"nil document", nil, 0, model.StatusNeedsReview},
		{"identity only", model.Document{"identity": map[string]any{"official_name": "Acme"}}, 64, model.StatusNeedsReview},
		{"every section", fullDoc(), 100, model.StatusComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := mocks.NewMockExtractor(t)
			svc := newTestService(t, newTestStore(t), ex)
			p := createAcme(t, svc, ex, tt.doc)
			assert.Equal(t, tt.wantScore, p.CompletionScore)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.NotNil(t, p.Document)
		})
	}
}

func TestCreateFromExtraction_AlreadyExists(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	first := createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	_, err := svc.CreateFromExtraction(context.Background(), acme)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrAlreadyExists))

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, first.Document, stored.Document)
	assert.Equal(t, first.Revision, stored.Revision)
	ex.AssertNumberOfCalls(t, "Extract", 1)
}

func TestCreateFromExtraction_ExtractionFailed(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(nil, eris.New("upstream 503")).Once()

	_, err := svc.CreateFromExtraction(context.Background(), acme)
	require.Error(t, err)
	assert.True(t, IsExtractionFailed(err))
	assert.Contains(t, err.Error(), "upstream 503")

	_, err = st.GetProfile(context.Background(), "acme")
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestCreateFromExtraction_RequiresBrandID(t *testing.T) {
	svc := newTestService(t, newTestStore(t), mocks.NewMockExtractor(t))
	_, err := svc.CreateFromExtraction(context.Background(), CreateRequest{Name: "Acme"})
	require.Error(t, err)
}

func TestCreateFromExtraction_Timeout(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex, WithExtractTimeout(10*time.Millisecond))
	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").
		Return(func(ctx context.Context, _, _ string) (*extract.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Once()

	_, err := svc.CreateFromExtraction(context.Background(), acme)
	require.Error(t, err)
	assert.True(t, IsExtractionFailed(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReCrawl(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	before := fullDoc()
	createAcme(t, svc, ex, before)

	after := fullDoc()
	after["voice"] = map[string]any{"tone": []any{"bold", "warm"}}
	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(result(after, provenance.ConfidenceLowFidelity), nil).Once()

	p, changes, err := svc.ReCrawl(context.Background(), "acme", "u2")
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, []any{"bold"}, changes["voice.tone"].Old)
	assert.Equal(t, []any{"bold", "warm"}, changes["voice.tone"].New)

	// re-crawled data always needs review, whatever its score
	assert.Equal(t, 100, p.CompletionScore)
	assert.Equal(t, model.StatusNeedsReview, p.Status)

	require.Len(t, p.Versions, 1)
	assert.Equal(t, "u2", p.Versions[0].AuthorID)
	assert.Equal(t, "Re-crawl: 1 field changed (voice.tone)", p.Versions[0].Summary)

	for _, r := range p.Provenance {
		assert.Equal(t, provenance.ConfidenceLowFidelity, r.TrustScore)
	}

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, after["voice"], stored.Document["voice"])
	assert.Equal(t, model.StatusNeedsReview, stored.Status)
}

func TestReCrawl_NotFound(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)

	_, _, err := svc.ReCrawl(context.Background(), "ghost", "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestReCrawl_FailureLeavesProfileUntouched(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	first := createAcme(t, svc, ex, fullDoc())

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(nil, context.Canceled).Once()
	_, _, err := svc.ReCrawl(context.Background(), "acme", "")
	require.Error(t, err)
	assert.True(t, IsExtractionFailed(err))

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, first.Revision, stored.Revision)
	assert.Equal(t, model.StatusComplete, stored.Status)
	assert.Empty(t, stored.Versions)
}

func TestReCrawl_SystemActor(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{})

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(result(model.Document{}, provenance.ConfidenceNoContent), nil).Once()
	p, changes, err := svc.ReCrawl(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Empty(t, changes)
	require.Len(t, p.Versions, 1)
	assert.Equal(t, SystemActor, p.Versions[0].AuthorID)
	assert.Equal(t, "Re-crawl: no changes", p.Versions[0].Summary)
}

func TestUpdateField(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	p, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "identity.tagline", Value: "Anvils for all"}, "u2")
	require.NoError(t, err)

	v, ok := document.GetString(p.Document, "identity.tagline")
	require.True(t, ok)
	assert.Equal(t, "Anvils for all", v)

	var touched []model.ProvenanceRecord
	for _, r := range p.Provenance {
		if r.FieldPath == "identity.tagline" {
			touched = append(touched, r)
		}
	}
	require.Len(t, touched, 1)
	assert.Equal(t, 100, touched[0].TrustScore)
	assert.Equal(t, model.MethodUser, touched[0].ExtractionMethod)
	assert.Equal(t, "u2", touched[0].EditorID)

	require.Len(t, p.Versions, 1)
	entry := p.Versions[0]
	require.Len(t, entry.Changes, 1)
	assert.True(t, entry.Changes["identity.tagline"].OldAbsent)
	assert.Equal(t, "Anvils for all", entry.Changes["identity.tagline"].New)
	assert.Equal(t, "Field update: 1 field changed (identity.tagline)", entry.Summary)

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, p.Document, stored.Document)
	assert.Equal(t, p.CompletionScore, stored.CompletionScore)
}

func TestUpdateField_StatusFollowsScore(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)

	doc := fullDoc()
	delete(doc, "compliance")
	p := createAcme(t, svc, ex, doc)
	require.Equal(t, model.StatusComplete, p.Status)

	// blanking fields lowers the score below the threshold
	for _, s := range []string{"identity", "voice", "messaging", "products", "audience", "proof"} {
		_, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: s, Value: map[string]any{"summary": ""}}, "u2")
		require.NoError(t, err)
	}
	p, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Less(t, p.CompletionScore, 70)
	assert.Equal(t, model.StatusNeedsReview, p.Status)

	for _, s := range []string{"identity", "voice", "messaging", "products", "audience", "proof", "compliance"} {
		_, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: s + ".summary", Value: "back"}, "u2")
		require.NoError(t, err)
	}
	p, err = svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 100, p.CompletionScore)
	assert.Equal(t, model.StatusComplete, p.Status)
}

func TestUpdateField_ReplacesSubtreeProvenance(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme", "tagline": "Old"}})

	p, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{
		Path:      "identity",
		Value:     map[string]any{"official_name": "Acme Corp"},
		SourceURL: "https://acme.com/about",
	}, "u2")
	require.NoError(t, err)

	require.Len(t, p.Provenance, 1)
	assert.Equal(t, "identity", p.Provenance[0].FieldPath)
	assert.Equal(t, "https://acme.com/about", p.Provenance[0].SourceURL)
}

func TestUpdateField_Errors(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{"products": []any{}})

	_, err := svc.UpdateField(context.Background(), "ghost", FieldUpdate{Path: "identity.tagline", Value: "x"}, "u2")
	assert.True(t, eris.Is(err, model.ErrNotFound))

	_, err = svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "identity..tagline", Value: "x"}, "u2")
	assert.True(t, eris.Is(err, document.ErrInvalidPath))

	_, err = svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "products.3.name", Value: "x"}, "u2")
	assert.True(t, eris.Is(err, document.ErrInvalidPath))

	p, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, p.Versions)
}

func TestApproveField(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	created := createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	once, err := svc.ApproveField(context.Background(), "acme", "identity.official_name", "u2")
	require.NoError(t, err)
	rec := once.ProvenanceFor("identity.official_name")
	require.NotNil(t, rec)
	assert.Equal(t, 100, rec.TrustScore)
	assert.Equal(t, model.MethodUser, rec.ExtractionMethod)
	assert.Equal(t, "https://acme.com", rec.SourceURL)

	assert.Equal(t, created.Document, once.Document)
	assert.Equal(t, created.CompletionScore, once.CompletionScore)
	assert.Empty(t, once.Versions)

	twice, err := svc.ApproveField(context.Background(), "acme", "identity.official_name", "u2")
	require.NoError(t, err)
	assert.Equal(t, once.Provenance, twice.Provenance)
	assert.Equal(t, once.Revision, twice.Revision)
}

func TestApproveField_UntrackedPathBorrowsFirstSource(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	p, err := svc.ApproveField(context.Background(), "acme", "seo.keywords", "u2")
	require.NoError(t, err)
	rec := p.ProvenanceFor("seo.keywords")
	require.NotNil(t, rec)
	assert.Equal(t, "https://acme.com", rec.SourceURL)
	_, present := document.GetString(p.Document, "seo.keywords")
	assert.False(t, present)
}

func TestApproveField_NotFound(t *testing.T) {
	svc := newTestService(t, newTestStore(t), mocks.NewMockExtractor(t))
	_, err := svc.ApproveField(context.Background(), "ghost", "identity.tagline", "u2")
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestAcceptChanges(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{
		"identity": map[string]any{"official_name": "Acme", "tagline": "Old"},
	})

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(result(model.Document{
		"identity": map[string]any{"official_name": "Acme Inc", "mission": "Anvils"},
	}, provenance.ConfidenceHighFidelity), nil).Once()
	_, changes, err := svc.ReCrawl(context.Background(), "acme", "")
	require.NoError(t, err)
	require.Len(t, changes, 3)

	review := Review(changes, map[string]Decision{
		"identity.official_name": DecisionAccept,
		"identity.tagline":       DecisionAccept,
		"identity.mission":       DecisionReject,
	})
	assert.Equal(t, []string{"identity.mission"}, review.Rejected)
	assert.Empty(t, review.Pending)

	p, err := svc.AcceptChanges(context.Background(), "acme", review.Accepted, "u2")
	require.NoError(t, err)

	rec := p.ProvenanceFor("identity.official_name")
	require.NotNil(t, rec)
	assert.Equal(t, model.MethodUser, rec.ExtractionMethod)
	assert.Nil(t, p.ProvenanceFor("identity.tagline"))

	mission := p.ProvenanceFor("identity.mission")
	require.NotNil(t, mission)
	assert.Equal(t, model.MethodAuto, mission.ExtractionMethod)

	require.Len(t, p.Versions, 2)
	assert.Equal(t, "u2", p.Versions[1].AuthorID)
	assert.Equal(t, "Review: 0 of 2 accepted field(s) changed", p.Versions[1].Summary)
	assert.Equal(t, model.StatusNeedsReview, p.Status)
}

func TestAcceptChanges_Empty(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	created := createAcme(t, svc, ex, model.Document{})

	p, err := svc.AcceptChanges(context.Background(), "acme", nil, "u2")
	require.NoError(t, err)
	assert.Equal(t, created.Revision, p.Revision)
}

func TestGetVersion(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{})
	p, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "seo.keywords", Value: []string{"anvils"}}, "u2")
	require.NoError(t, err)
	id := p.Versions[0].VersionID

	v, err := svc.GetVersion(context.Background(), "acme", id)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []any{"anvils"}, v.Changes["seo.keywords"].New)

	v, err = svc.GetVersion(context.Background(), "acme", "nope")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = svc.GetVersion(context.Background(), "ghost", id)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestListAndDelete(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)
	createAcme(t, svc, ex, model.Document{})

	ex.On("Extract", mock.Anything, "Globex", "https://globex.com").Return(result(fullDoc(), provenance.ConfidenceHighFidelity), nil).Once()
	_, err := svc.CreateFromExtraction(context.Background(), CreateRequest{BrandID: "globex", OwnerID: "u9", Name: "Globex", URL: "https://globex.com"})
	require.NoError(t, err)

	mine, err := svc.List(context.Background(), store.ListFilter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "acme", mine[0].BrandID)

	require.NoError(t, svc.Delete(context.Background(), "acme"))
	_, err = svc.Get(context.Background(), "acme")
	assert.True(t, eris.Is(err, model.ErrNotFound))
	assert.True(t, eris.Is(svc.Delete(context.Background(), "acme"), model.ErrNotFound))
}

func TestScore(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	b, err := svc.Score(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 64, b.Score)
	assert.Equal(t, 1, b.FilledSections)
}

func TestUpdateField_ConcurrentWritersAllLand(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{})

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.UpdateField(context.Background(), "acme",
				FieldUpdate{Path: fmt.Sprintf("seo.k%d", i), Value: "v"}, "u2")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	p, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, p.Versions, writers)
	assert.Len(t, p.Document["seo"], writers)
}

// staleRepo loses every update to a concurrent writer.
type staleRepo struct{ Repository }

func (staleRepo) UpdateProfile(_ context.Context, p *model.Profile) error {
	return eris.Wrapf(model.ErrConflict, "brand %s", p.BrandID)
}

func TestUpdateField_Conflict(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	createAcme(t, newTestService(t, st, ex), ex, model.Document{})

	svc := newTestService(t, staleRepo{st}, ex)
	_, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "seo.keywords", Value: "x"}, "u2")
	assert.True(t, eris.Is(err, model.ErrConflict))
}

func TestCreateFromExtraction_TypedDocument(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)

	doc := model.Document{
		"identity": map[string]string{"official_name": "Acme"},
		"voice":    map[string][]string{"tone": {"bold"}},
	}
	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(&extract.Result{
		Document:   doc,
		Provenance: provenance.FromDocument(doc, "https://acme.com", provenance.ConfidenceHighFidelity, testNow),
		Channel:    "jina",
		Confidence: provenance.ConfidenceHighFidelity,
		SourceURL:  "https://acme.com",
	}, nil).Once()

	p, err := svc.CreateFromExtraction(context.Background(), acme)
	require.NoError(t, err)

	v, ok := document.GetString(p.Document, "identity.official_name")
	require.True(t, ok)
	assert.Equal(t, "Acme", v)
	assert.Nil(t, p.ProvenanceFor("identity"))
	require.NotNil(t, p.ProvenanceFor("identity.official_name"))
	require.NotNil(t, p.ProvenanceFor("voice.tone"))
	assert.Equal(t, provenance.ConfidenceHighFidelity, p.ProvenanceFor("identity.official_name").TrustScore)

	stored, err := st.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, scorer.Score(stored.Document), stored.CompletionScore)
	assert.Equal(t, p.CompletionScore, stored.CompletionScore)
	assert.Greater(t, stored.CompletionScore, 64)
}

func TestCreateFromExtraction_MissingProvenanceIsDerived(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(&extract.Result{
		Document:   model.Document{"identity": map[string]any{"official_name": "Acme"}},
		Confidence: provenance.ConfidenceLowFidelity,
	}, nil).Once()

	p, err := svc.CreateFromExtraction(context.Background(), acme)
	require.NoError(t, err)

	require.Len(t, p.Provenance, 1)
	assert.Equal(t, "identity.official_name", p.Provenance[0].FieldPath)
	assert.Equal(t, "https://acme.com", p.Provenance[0].SourceURL)
	assert.Equal(t, provenance.ConfidenceLowFidelity, p.Provenance[0].TrustScore)
	assert.Equal(t, testNow, p.Provenance[0].LastUpdated)
}

func TestCreateFromExtraction_UnencodableDocument(t *testing.T) {
	st := newTestStore(t)
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, st, ex)

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(&extract.Result{
		Document: model.Document{"identity": make(chan int)},
	}, nil).Once()

	_, err := svc.CreateFromExtraction(context.Background(), acme)
	require.Error(t, err)
	assert.True(t, IsExtractionFailed(err))

	_, err = st.GetProfile(context.Background(), "acme")
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestReCrawl_TypedDocumentDiffsLeaves(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{"identity": map[string]any{"official_name": "Acme"}})

	ex.On("Extract", mock.Anything, "Acme", "https://acme.com").Return(&extract.Result{
		Document:   model.Document{"identity": map[string]string{"official_name": "Acme"}},
		Confidence: provenance.ConfidenceHighFidelity,
		SourceURL:  "https://acme.com",
	}, nil).Once()

	p, changes, err := svc.ReCrawl(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, 64, p.CompletionScore)
}

func TestUpdateField_MarksAncestorRecordsHybrid(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	svc := newTestService(t, newTestStore(t), ex)
	createAcme(t, svc, ex, model.Document{
		"products": []any{map[string]any{"name": "Anvil"}},
	})
	before, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, before.ProvenanceFor("products"))

	p, err := svc.UpdateField(context.Background(), "acme", FieldUpdate{Path: "products.0.name", Value: "Anvil Pro"}, "u2")
	require.NoError(t, err)

	parent := p.ProvenanceFor("products")
	require.NotNil(t, parent)
	assert.Equal(t, model.MethodHybrid, parent.ExtractionMethod)
	assert.Equal(t, provenance.ConfidenceHighFidelity, parent.TrustScore)

	leaf := p.ProvenanceFor("products.0.name")
	require.NotNil(t, leaf)
	assert.Equal(t, model.MethodUser, leaf.ExtractionMethod)
}
