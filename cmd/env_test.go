//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brand-cli/internal/config"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/resilience"
)

func TestInitStore_SQLite(t *testing.T) {
	c := &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	}}

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	c := &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "brand.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := &config.Config{Store: config.StoreConfig{Driver: "oracle"}}

	st, err := initStore(context.Background(), c)
	assert.Error(t, err)
	assert.Nil(t, st)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitLocker_NoAddr(t *testing.T) {
	l, closeFn, err := initLocker(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.Nil(t, closeFn)
}

func TestInitLocker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	l, closeFn, err := initLocker(context.Background(), config.RedisConfig{Addr: mr.Addr(), LockTTLSecs: 30})
	require.NoError(t, err)
	require.NotNil(t, l)
	defer closeFn() //nolint:errcheck

	release, err := l.Lock(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, mr.Exists("brand:lock:acme"))
	release()
	assert.False(t, mr.Exists("brand:lock:acme"))
}

func TestInitLocker_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := initLocker(context.Background(), config.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestParsePageTypes(t *testing.T) {
	got, err := parsePageTypes(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parsePageTypes([]string{string(model.PageTypeHomepage)})
	require.NoError(t, err)
	assert.Equal(t, []model.PageType{model.PageTypeHomepage}, got)

	_, err = parsePageTypes([]string{"careers_portal"})
	assert.Error(t, err)
}

func TestLoadSchema(t *testing.T) {
	s, err := loadSchema("")
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = loadSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInitExtractor_Defaults(t *testing.T) {
	c := &config.Config{
		Anthropic: config.AnthropicConfig{Key: "k", Model: "m", MaxTokens: 1024, RequestsPerMinute: 60},
		Crawl:     config.CrawlConfig{MaxConcurrent: 2, CacheTTLHours: 1},
		Resilience: config.ResilienceConfig{
			MaxAttempts: 2, InitialBackoffMs: 10, MaxBackoffMs: 100, FailureThreshold: 3, ResetTimeoutSecs: 5,
		},
	}
	envStore, err := initStore(context.Background(), &config.Config{Store: config.StoreConfig{
		Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "x.db"),
	}})
	require.NoError(t, err)
	defer envStore.Close() //nolint:errcheck

	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(3, 5))
	ex, err := initExtractor(c, envStore, breakers)
	require.NoError(t, err)
	assert.NotNil(t, ex)
}

func TestDisabledExtractor(t *testing.T) {
	_, err := disabledExtractor{}.Extract(context.Background(), "Acme", "https://acme.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
