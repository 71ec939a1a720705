package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, config.BackendSolr, cfg.Index.Backend)
	assert.Equal(t, 8983, cfg.Index.Port)
	assert.Equal(t, 1000, cfg.Run.PageSize)
	assert.Equal(t, 10, cfg.Run.CommitFrequency)
	assert.Equal(t, 60*time.Second, cfg.Index.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Run.RetryDelay)
	assert.Equal(t, "*:*", cfg.Run.Query)
	assert.Empty(t, cfg.FieldRules)
	assert.Equal(t, "http://127.0.0.1:8983/solr/core1/", cfg.Index.Endpoint())
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
index:
  host: http://solr.local
  collection: products
run:
  page_size: 250
  commit_frequency: 4
  end_offset: 5000
field_rules:
  - price=blank
  - legacy_id=drop
`)
	t.Setenv("REINDEX_RUN_COMMIT_FREQUENCY", "8")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--rows", "500", "--timeout", "2s"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "http://solr.local", cfg.Index.Host)
	assert.Equal(t, "products", cfg.Index.Collection)
	assert.Equal(t, 500, cfg.Run.PageSize, "flag wins over file")
	assert.Equal(t, 8, cfg.Run.CommitFrequency, "env wins over file")
	assert.Equal(t, 5000, cfg.Run.EndOffset)
	assert.Equal(t, 2*time.Second, cfg.Index.Timeout)
	assert.Equal(t, models.FieldRules{
		{Field: "price", Op: models.FieldBlank},
		{Field: "legacy_id", Op: models.FieldDrop},
	}, cfg.FieldRules)
}

func TestLoadFieldRuleFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--field-rule", "b=drop", "--field-rule", "a=blank"}))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"b=drop", "a=blank"}, cfg.FieldRules.Strings())
}

func TestLoadRejectsWriterType(t *testing.T) {
	t.Setenv("REINDEX_INDEX_WRITER_TYPE", "xml")
	_, err := config.Load("", nil)
	assert.True(t, errors.Is(err, errors.Config), "got %v", err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.True(t, errors.Is(err, errors.Config))
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Index: config.Index{
				Backend: config.BackendSolr, Host: "http://h", Port: 8983,
				Collection: "c", WriterType: config.WriterJSON, Timeout: time.Second,
			},
			Run: config.Run{PageSize: 10, CommitFrequency: 1},
		}
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*config.Config) {}, ok: true},
		{name: "unbounded end", mutate: func(c *config.Config) { c.Run.StartOffset = 100 }, ok: true},
		{name: "reindexer backend", mutate: func(c *config.Config) { c.Index.Backend = config.BackendReindexer }, ok: true},
		{name: "unknown backend", mutate: func(c *config.Config) { c.Index.Backend = "es" }},
		{name: "writer type", mutate: func(c *config.Config) { c.Index.WriterType = "php" }},
		{name: "zero page size", mutate: func(c *config.Config) { c.Run.PageSize = 0 }},
		{name: "zero commit frequency", mutate: func(c *config.Config) { c.Run.CommitFrequency = 0 }},
		{name: "negative start", mutate: func(c *config.Config) { c.Run.StartOffset = -1 }},
		{name: "end before start", mutate: func(c *config.Config) { c.Run.StartOffset = 10; c.Run.EndOffset = 10 }},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Index.Timeout = -time.Second }},
		{name: "bad port", mutate: func(c *config.Config) { c.Index.Port = 0 }},
		{name: "no collection", mutate: func(c *config.Config) { c.Index.Collection = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, errors.Config), "got %v", err)
		})
	}
}

func TestEndpoint(t *testing.T) {
	idx := config.Index{Host: "https://search.example.com/", Port: 443, Path: "solr", Collection: "/books/"}
	assert.Equal(t, "https://search.example.com:443/solr/books/", idx.Endpoint())
	idx.Path = ""
	assert.Equal(t, "https://search.example.com:443/books/", idx.Endpoint())
}

func TestLoadFieldRuleMapping(t *testing.T) {
	path := writeConfig(t, `
field_rules:
  Title: blank
  "attr.color": drop
  SKU_Code: empty
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, models.FieldRules{
		{Field: "Title", Op: models.FieldBlank},
		{Field: "attr.color", Op: models.FieldDrop},
		{Field: "SKU_Code", Op: models.FieldBlank},
	}, cfg.FieldRules, "field names keep case, dots and order")
}

func TestLoadFieldRuleMappingAppliesToDocument(t *testing.T) {
	path := writeConfig(t, "field_rules:\n  Title: blank\n  attr.color: drop\n")
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	doc, err := models.NewDocument([]byte(`{"id":"1","Title":"x","title":"y","attr.color":"red"}`))
	require.NoError(t, err)
	require.NoError(t, cfg.FieldRules.Apply(doc))
	assert.Equal(t, "", doc.Get("Title").String())
	assert.Equal(t, "y", doc.Get("title").String())
	assert.False(t, doc.Has("attr.color"))
}
