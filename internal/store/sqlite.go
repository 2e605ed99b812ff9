package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/brand-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brand_profiles (
	id               TEXT PRIMARY KEY,
	brand_id         TEXT NOT NULL UNIQUE,
	owner_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	status           TEXT NOT NULL,
	completion_score INTEGER NOT NULL DEFAULT 0,
	document         TEXT NOT NULL DEFAULT '{}',
	provenance       TEXT NOT NULL DEFAULT '[]',
	versions         TEXT NOT NULL DEFAULT '[]',
	last_crawled_at  DATETIME,
	revision         INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_brand_profiles_owner ON brand_profiles(owner_id);
CREATE INDEX IF NOT EXISTS idx_brand_profiles_status ON brand_profiles(status);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	pages      TEXT NOT NULL,
	crawled_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_cache_expires_at ON crawl_cache(expires_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Revision == 0 {
		p.Revision = 1
	}
	blobs, err := encodeProfile(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO brand_profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_id) DO NOTHING`,
		p.ID, p.BrandID, p.OwnerID, p.Name, p.URL, string(p.Status), p.CompletionScore,
		string(blobs.document), string(blobs.provenance), string(blobs.versions),
		p.LastCrawledAt, p.Revision, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert profile %s", p.BrandID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return alreadyExists(p.BrandID)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, brandID string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM brand_profiles WHERE brand_id = ?`,
		brandID,
	)
	p, err := scanSQLiteProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", brandID)
	}
	return p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, filter ListFilter) ([]model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM brand_profiles WHERE 1=1`
	var args []any

	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, brand_id ASC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanSQLiteProfile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, p *model.Profile) error {
	blobs, err := encodeProfile(p)
	if err != nil {
		return err
	}
	next := p.Revision + 1

	res, err := s.db.ExecContext(ctx,
		`UPDATE brand_profiles SET owner_id = ?, name = ?, url = ?, status = ?,
		 completion_score = ?, document = ?, provenance = ?, versions = ?,
		 last_crawled_at = ?, revision = ?, updated_at = ?
		 WHERE brand_id = ? AND revision = ?`,
		p.OwnerID, p.Name, p.URL, string(p.Status), p.CompletionScore,
		string(blobs.document), string(blobs.provenance), string(blobs.versions),
		p.LastCrawledAt, next, p.UpdatedAt.UTC(),
		p.BrandID, p.Revision,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile %s", p.BrandID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var current int64
		err := s.db.QueryRowContext(ctx,
			`SELECT revision FROM brand_profiles WHERE brand_id = ?`, p.BrandID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(p.BrandID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check revision %s", p.BrandID)
		}
		return conflict(p.BrandID, p.Revision)
	}
	p.Revision = next
	return nil
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, brandID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM brand_profiles WHERE brand_id = ?`, brandID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete profile %s", brandID)
	}
	return checkRowsAffected(res, brandID)
}

func (s *SQLiteStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlCache, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, pages, crawled_at, expires_at FROM crawl_cache
		 WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	)

	var cc model.CrawlCache
	var pagesJSON string
	err := row.Scan(&cc.ID, &cc.URL, &pagesJSON, &cc.CrawledAt, &cc.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached crawl")
	}
	if err := json.Unmarshal([]byte(pagesJSON), &cc.Pages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached pages")
	}
	return &cc, nil
}

func (s *SQLiteStore) SetCachedCrawl(ctx context.Context, url string, pages []model.CrawledPage, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_cache (id, url, pages, crawled_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET pages = excluded.pages, crawled_at = excluded.crawled_at, expires_at = excluded.expires_at`,
		id, url, string(pagesJSON), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached crawl")
}

func (s *SQLiteStore) DeleteExpiredCrawls(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM crawl_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired crawls")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, brandID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(brandID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteProfile(row scannable) (*model.Profile, error) {
	var p model.Profile
	var status, doc, prov, versions string
	var lastCrawled sql.NullTime

	if err := row.Scan(
		&p.ID, &p.BrandID, &p.OwnerID, &p.Name, &p.URL, &status, &p.CompletionScore,
		&doc, &prov, &versions, &lastCrawled, &p.Revision, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.ProfileStatus(status)
	if lastCrawled.Valid {
		t := lastCrawled.Time
		p.LastCrawledAt = &t
	}
	blobs := profileBlobs{document: []byte(doc), provenance: []byte(prov), versions: []byte(versions)}
	if err := decodeProfile(&p, blobs); err != nil {
		return nil, err
	}
	return &p, nil
}
