package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-cli/internal/db"
	"github.com/sells-group/brand-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const profileColumns = `id, brand_id, owner_id, name, url, status, completion_score, document, provenance, versions, last_crawled_at, revision, created_at, updated_at`

const (
	pgInsertProfile = `INSERT INTO brand_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (brand_id) DO NOTHING`
	pgGetProfile    = `SELECT ` + profileColumns + ` FROM brand_profiles WHERE brand_id = $1`
	pgUpdateProfile = `UPDATE brand_profiles SET owner_id = $1, name = $2, url = $3, status = $4,
		completion_score = $5, document = $6, provenance = $7, versions = $8,
		last_crawled_at = $9, revision = $10, updated_at = $11
		WHERE brand_id = $12 AND revision = $13`
	pgProfileRevision = `SELECT revision FROM brand_profiles WHERE brand_id = $1`
	pgDeleteProfile   = `DELETE FROM brand_profiles WHERE brand_id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_profile":   pgInsertProfile,
	"get_profile":      pgGetProfile,
	"update_profile":   pgUpdateProfile,
	"profile_revision": pgProfileRevision,
	"delete_profile":   pgDeleteProfile,
	"get_cached_crawl": `SELECT id, url, pages, crawled_at, expires_at FROM crawl_cache WHERE url = $1 AND expires_at > now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brand_profiles (
	id               TEXT PRIMARY KEY,
	brand_id         TEXT NOT NULL UNIQUE,
	owner_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	status           TEXT NOT NULL,
	completion_score INTEGER NOT NULL DEFAULT 0,
	document         JSONB NOT NULL DEFAULT '{}'::jsonb,
	provenance       JSONB NOT NULL DEFAULT '[]'::jsonb,
	versions         JSONB NOT NULL DEFAULT '[]'::jsonb,
	last_crawled_at  TIMESTAMPTZ,
	revision         BIGINT NOT NULL DEFAULT 1,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_brand_profiles_owner ON brand_profiles(owner_id);
CREATE INDEX IF NOT EXISTS idx_brand_profiles_status ON brand_profiles(status);
CREATE INDEX IF NOT EXISTS idx_brand_profiles_created ON brand_profiles(created_at DESC);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	pages      JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_cache_expires_at ON crawl_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.Profile) error {
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

	tag, err := s.pool.Exec(ctx, pgInsertProfile,
		p.ID, p.BrandID, p.OwnerID, p.Name, p.URL, string(p.Status), p.CompletionScore,
		blobs.document, blobs.provenance, blobs.versions, p.LastCrawledAt, p.Revision,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert profile %s", p.BrandID)
	}
	if tag.RowsAffected() == 0 {
		return alreadyExists(p.BrandID)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, brandID string) (*model.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, pgGetProfile, brandID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(brandID)
		}
		return nil, eris.Wrapf(err, "postgres: get profile %s", brandID)
	}
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, filter ListFilter) ([]model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM brand_profiles WHERE true`
	args := []any{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, brand_id ASC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.Profile) error {
	blobs, err := encodeProfile(p)
	if err != nil {
		return err
	}
	next := p.Revision + 1

	tag, err := s.pool.Exec(ctx, pgUpdateProfile,
		p.OwnerID, p.Name, p.URL, string(p.Status), p.CompletionScore,
		blobs.document, blobs.provenance, blobs.versions, p.LastCrawledAt, next, p.UpdatedAt,
		p.BrandID, p.Revision,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile %s", p.BrandID)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := s.pool.QueryRow(ctx, pgProfileRevision, p.BrandID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(p.BrandID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check revision %s", p.BrandID)
		}
		return conflict(p.BrandID, p.Revision)
	}
	p.Revision = next
	return nil
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, brandID string) error {
	tag, err := s.pool.Exec(ctx, pgDeleteProfile, brandID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete profile %s", brandID)
	}
	if tag.RowsAffected() == 0 {
		return notFound(brandID)
	}
	return nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var blobs profileBlobs
	var status string
	if err := row.Scan(
		&p.ID, &p.BrandID, &p.OwnerID, &p.Name, &p.URL, &status, &p.CompletionScore,
		&blobs.document, &blobs.provenance, &blobs.versions, &p.LastCrawledAt, &p.Revision,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.ProfileStatus(status)
	if err := decodeProfile(&p, blobs); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetCachedCrawl(ctx context.Context, url string) (*model.CrawlCache, error) {
	var cc model.CrawlCache
	var pagesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, url, pages, crawled_at, expires_at FROM crawl_cache WHERE url = $1 AND expires_at > now()`,
		url,
	).Scan(&cc.ID, &cc.URL, &pagesJSON, &cc.CrawledAt, &cc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached crawl")
	}
	if err := json.Unmarshal(pagesJSON, &cc.Pages); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached pages")
	}
	return &cc, nil
}

func (s *PostgresStore) SetCachedCrawl(ctx context.Context, url string, pages []model.CrawledPage, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pages")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_cache (id, url, pages, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET pages = $3, crawled_at = $4, expires_at = $5`,
		id, url, pagesJSON, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached crawl")
}

func (s *PostgresStore) DeleteExpiredCrawls(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM crawl_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired crawls")
	}
	return int(tag.RowsAffected()), nil
}
