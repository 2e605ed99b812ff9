package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sells-group/brand-cli/internal/model"
)

const (
	mongoProfilesCollection = "brand_profiles"
	mongoCrawlCollection    = "crawl_cache"
)

// MongoStore implements Store on a MongoDB database. Each profile is one
// document keyed by brand id; the indexed fields are lifted to the top level
// and the full profile is kept in an embedded sub-document.
type MongoStore struct {
	client   *mongo.Client
	profiles *mongo.Collection
	crawls   *mongo.Collection
}

// mongoProfile is the stored shape of a profile.
type mongoProfile struct {
	BrandID   string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Status    string    `bson:"status"`
	Revision  int64     `bson:"revision"`
	CreatedAt time.Time `bson:"created_at"`
	Profile   bson.Raw  `bson:"profile"`
}

type mongoCrawl struct {
	URL       string              `bson:"_id"`
	ID        string              `bson:"cache_id"`
	Pages     []model.CrawledPage `bson:"pages"`
	CrawledAt time.Time           `bson:"crawled_at"`
	ExpiresAt time.Time           `bson:"expires_at"`
}

// NewMongo connects to MongoDB and returns a store on the named database.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, eris.Wrap(err, "mongo: ping")
	}
	s := newMongoStore(cli.Database(database))
	s.client = cli
	return s, nil
}

func newMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		profiles: db.Collection(mongoProfilesCollection),
		crawls:   db.Collection(mongoCrawlCollection),
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return eris.Wrap(s.client.Ping(ctx, nil), "mongo: ping")
}

// Migrate creates the secondary indexes. The crawl cache uses a TTL index so
// the server also reaps expired entries.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.profiles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return eris.Wrap(err, "mongo: create profile indexes")
	}
	_, err = s.crawls.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return eris.Wrap(err, "mongo: create crawl cache index")
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return eris.Wrap(s.client.Disconnect(context.Background()), "mongo: disconnect")
}

func (s *MongoStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Revision == 0 {
		p.Revision = 1
	}
	doc, err := toMongoProfile(p)
	if err != nil {
		return err
	}
	if _, err := s.profiles.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return alreadyExists(p.BrandID)
		}
		return eris.Wrapf(err, "mongo: insert profile %s", p.BrandID)
	}
	return nil
}

func (s *MongoStore) GetProfile(ctx context.Context, brandID string) (*model.Profile, error) {
	var doc mongoProfile
	err := s.profiles.FindOne(ctx, bson.D{{Key: "_id", Value: brandID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: get profile %s", brandID)
	}
	return fromMongoProfile(doc)
}

func (s *MongoStore) ListProfiles(ctx context.Context, filter ListFilter) ([]model.Profile, error) {
	q := bson.D{}
	if filter.OwnerID != "" {
		q = append(q, bson.E{Key: "owner_id", Value: filter.OwnerID})
	}
	if filter.Status != "" {
		q = append(q, bson.E{Key: "status", Value: string(filter.Status)})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(filter.limit()))
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cur, err := s.profiles.Find(ctx, q, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list profiles")
	}
	var docs []mongoProfile
	if err := cur.All(ctx, &docs); err != nil {
		return nil, eris.Wrap(err, "mongo: list profiles decode")
	}

	profiles := make([]model.Profile, 0, len(docs))
	for _, d := range docs {
		p, err := fromMongoProfile(d)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, p *model.Profile) error {
	next := *p
	next.Revision = p.Revision + 1
	doc, err := toMongoProfile(&next)
	if err != nil {
		return err
	}

	res, err := s.profiles.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: p.BrandID}, {Key: "revision", Value: p.Revision}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "owner_id", Value: doc.OwnerID},
			{Key: "status", Value: doc.Status},
			{Key: "revision", Value: doc.Revision},
			{Key: "profile", Value: doc.Profile},
		}}},
	)
	if err != nil {
		return eris.Wrapf(err, "mongo: update profile %s", p.BrandID)
	}
	if res.MatchedCount == 0 {
		n, err := s.profiles.CountDocuments(ctx, bson.D{{Key: "_id", Value: p.BrandID}})
		if err != nil {
			return eris.Wrapf(err, "mongo: check revision %s", p.BrandID)
		}
		if n == 0 {
			return notFound(p.BrandID)
		}
		return conflict(p.BrandID, p.Revision)
	}
	p.Revision = next.Revision
	return nil
}

func (s *MongoStore) DeleteProfile(ctx context.Context, brandID string) error {
	res, err := s.profiles.DeleteOne(ctx, bson.D{{Key: "_id", Value: brandID}})
	if err != nil {
		return eris.Wrapf(err, "mongo: delete profile %s", brandID)
	}
	if res.DeletedCount == 0 {
		return notFound(brandID)
	}
	return nil
}

func (s *MongoStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlCache, error) {
	var doc mongoCrawl
	err := s.crawls.FindOne(ctx, bson.D{
		{Key: "_id", Value: url},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: time.Now().UTC()}}},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "mongo: get cached crawl")
	}
	return &model.CrawlCache{
		ID:        doc.ID,
		URL:       doc.URL,
		Pages:     doc.Pages,
		CrawledAt: doc.CrawledAt,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}

func (s *MongoStore) SetCachedCrawl(ctx context.Context, url string, pages []model.CrawledPage, ttl time.Duration) error {
	now := time.Now().UTC()
	doc := mongoCrawl{
		URL:       url,
		ID:        uuid.New().String(),
		Pages:     pages,
		CrawledAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.crawls.ReplaceOne(ctx, bson.D{{Key: "_id", Value: url}}, doc, options.Replace().SetUpsert(true))
	return eris.Wrap(err, "mongo: set cached crawl")
}

func (s *MongoStore) DeleteExpiredCrawls(ctx context.Context) (int, error) {
	res, err := s.crawls.DeleteMany(ctx, bson.D{
		{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: time.Now().UTC()}}},
	})
	if err != nil {
		return 0, eris.Wrap(err, "mongo: delete expired crawls")
	}
	return int(res.DeletedCount), nil
}

// toMongoProfile converts through JSON so the stored sub-document has the
// same field names and value shapes as the API representation.
func toMongoProfile(p *model.Profile) (mongoProfile, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return mongoProfile{}, eris.Wrap(err, "mongo: marshal profile")
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(b, false, &d); err != nil {
		return mongoProfile{}, eris.Wrap(err, "mongo: convert profile")
	}
	raw, err := bson.Marshal(d)
	if err != nil {
		return mongoProfile{}, eris.Wrap(err, "mongo: encode profile")
	}
	return mongoProfile{
		BrandID:   p.BrandID,
		OwnerID:   p.OwnerID,
		Status:    string(p.Status),
		Revision:  p.Revision,
		CreatedAt: p.CreatedAt.UTC(),
		Profile:   raw,
	}, nil
}

func fromMongoProfile(doc mongoProfile) (*model.Profile, error) {
	b, err := bson.MarshalExtJSON(doc.Profile, false, false)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: convert profile")
	}
	var p model.Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, eris.Wrap(err, "mongo: unmarshal profile")
	}
	if p.Document == nil {
		p.Document = model.Document{}
	}
	p.Revision = doc.Revision
	return &p, nil
}
