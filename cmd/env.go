package main

import (
	"context"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/brand-cli/internal/config"
	"github.com/sells-group/brand-cli/internal/extract"
	"github.com/sells-group/brand-cli/internal/lock"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/profile"
	"github.com/sells-group/brand-cli/internal/resilience"
	"github.com/sells-group/brand-cli/internal/scrape"
	"github.com/sells-group/brand-cli/internal/store"
	anthropicpkg "github.com/sells-group/brand-cli/pkg/anthropic"
	"github.com/sells-group/brand-cli/pkg/firecrawl"
	"github.com/sells-group/brand-cli/pkg/jina"
)

// appEnv holds the initialized store, service and upstream breakers used by
// the serve and profile commands.
type appEnv struct {
	Store    store.Store
	Service  *profile.Service
	Breakers *resilience.ServiceBreakers
	closers  []func() error
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// initEnv validates config for mode and builds the environment. In "store"
// mode no extractor is configured and extraction calls fail. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string, override extract.Extractor) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, closers: []func() error{st.Close}}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Breakers = resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Resilience.FailureThreshold, cfg.Resilience.ResetTimeoutSecs),
	)

	var ex extract.Extractor = disabledExtractor{}
	switch {
	case override != nil:
		ex = override
	case mode != "store":
		ex, err = initExtractor(cfg, st, env.Breakers)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	opts := []profile.Option{profile.WithExtractTimeout(cfg.Extract.Timeout())}
	locker, closeLocker, err := initLocker(ctx, cfg.Redis)
	if err != nil {
		env.Close()
		return nil, err
	}
	if locker != nil {
		opts = append(opts, profile.WithLocker(locker))
		env.closers = append(env.closers, closeLocker)
	}

	env.Service = profile.NewService(st, ex, opts...)
	return env, nil
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "brand.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case "mongo":
		return store.NewMongo(ctx, c.Mongo.URI, c.Mongo.Database)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initLocker connects the shared Redis lock. A nil locker means profile
// writes are serialized in-process only.
func initLocker(ctx context.Context, rc config.RedisConfig) (lock.Locker, func() error, error) {
	if rc.Addr == "" {
		return nil, nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        rc.Addr,
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, eris.Wrap(err, "redis ping")
	}
	zap.L().Info("profile locks shared through redis", zap.String("addr", rc.Addr))
	return lock.NewRedis(rdb, lock.RedisConfig{TTL: rc.LockTTL()}), rdb.Close, nil
}

// initExtractor builds the web extractor: Jina, then Firecrawl when a key is
// configured, then a plain HTTP fetch.
func initExtractor(c *config.Config, cache extract.CrawlCache, breakers *resilience.ServiceBreakers) (extract.Extractor, error) {
	scrapers := []scrape.Scraper{
		scrape.NewJinaAdapter(jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL)), breakers.Get("jina")),
	}
	if c.Firecrawl.Key != "" {
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(
			firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL)),
		))
	} else {
		zap.L().Debug("BRAND_FIRECRAWL_KEY not set, firecrawl fallback disabled")
	}
	scrapers = append(scrapers, scrape.NewLocalScraper())
	chain := scrape.NewChain(scrape.NewURLFilter(c.Crawl.ExcludePaths), scrapers...)

	schema, err := loadSchema(c.Extract.SchemaPath)
	if err != nil {
		return nil, err
	}
	pageTypes, err := parsePageTypes(c.Crawl.PageTypes)
	if err != nil {
		return nil, err
	}

	opts := []extract.Option{
		extract.WithPolicy(resilience.Policy{
			Service: "anthropic",
			Retry:   resilience.FromRetryConfig(c.Resilience.MaxAttempts, c.Resilience.InitialBackoffMs, c.Resilience.MaxBackoffMs),
			Breaker: breakers.Get("anthropic"),
		}),
	}
	if c.Crawl.CacheTTL() > 0 {
		opts = append(opts, extract.WithCache(cache))
	}
	if c.Anthropic.RequestsPerMinute > 0 {
		opts = append(opts, extract.WithLimiter(rate.NewLimiter(rate.Limit(c.Anthropic.RequestsPerMinute/60), 1)))
	}

	return extract.NewWebExtractor(chain, anthropicpkg.NewClient(c.Anthropic.Key), schema, extract.Config{
		Model:         c.Anthropic.Model,
		MaxTokens:     c.Anthropic.MaxTokens,
		MaxPageChars:  c.Extract.MaxPageChars,
		MaxTotalChars: c.Extract.MaxTotalChars,
		MaxConcurrent: c.Crawl.MaxConcurrent,
		CacheTTL:      c.Crawl.CacheTTL(),
		PageTypes:     pageTypes,
	}, opts...), nil
}

func loadSchema(path string) (*extract.Schema, error) {
	if path == "" {
		return extract.DefaultSchema()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read schema %s", path)
	}
	return extract.ParseSchema(data)
}

func parsePageTypes(names []string) ([]model.PageType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[model.PageType]bool)
	for _, pt := range model.AllPageTypes() {
		known[pt] = true
	}
	out := make([]model.PageType, 0, len(names))
	for _, n := range names {
		pt := model.PageType(n)
		if !known[pt] {
			return nil, eris.Errorf("unknown page type %q", n)
		}
		out = append(out, pt)
	}
	return out, nil
}

// disabledExtractor stands in when a command was started without
// extraction credentials.
type disabledExtractor struct{}

func (disabledExtractor) Extract(context.Context, string, string) (*extract.Result, error) {
	return nil, eris.New("extraction is not configured for this command")
}
