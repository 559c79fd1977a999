package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("FILTER_CHAINS", "")
	t.Setenv("QUERY_TIMEOUT", "")

	cfg := load(mapSource{})

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Query.DefaultPageSize)
	assert.Equal(t, 100, cfg.Query.MaxPageSize)
	assert.Equal(t, 10, cfg.Query.TopN)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Empty(t, cfg.Query.FilterChains)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironmentAndSecrets(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("FILTER_CHAINS", "10D, 30D,,3D")
	t.Setenv("QUERY_TIMEOUT", "5s")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := load(mapSource{"JWT_SECRET": "s3cret", "MONGODB_URL": "mongodb://mongo:27017"})

	assert.Equal(t, BackendMongo, cfg.Store.Backend)
	assert.Equal(t, []string{"10D", "30D", "3D"}, cfg.Query.FilterChains)
	assert.Equal(t, 5*time.Second, cfg.Query.Timeout)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URL)
}

func TestValidate(t *testing.T) {
	cfg := load(mapSource{})

	cfg.Store.Backend = "dynamo"
	assert.Error(t, cfg.Validate())

	cfg.Store.Backend = BackendSQLite
	cfg.Query.DefaultPageSize = 200
	assert.Error(t, cfg.Validate())

	cfg.Query.DefaultPageSize = 10
	cfg.Query.TopN = 0
	assert.Error(t, cfg.Validate())
}
