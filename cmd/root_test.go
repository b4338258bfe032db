package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookdex/internal/config"
	"bookdex/internal/testutil"
)

func TestBuildSourceUnknown(t *testing.T) {
	_, err := buildSource("mystery", config.Source{})
	assert.Error(t, err)
}

func TestRequireSources(t *testing.T) {
	cfg := &config.Config{Sources: map[string]config.Source{
		"openlibrary": {Enabled: false},
	}}
	assert.Error(t, requireSources(cfg))

	cfg.Sources["openlibrary"] = config.Source{Enabled: true}
	assert.NoError(t, requireSources(cfg))
}

func TestBuildPipeline(t *testing.T) {
	env := testutil.NewTestEnv(t)

	cfg := &config.Config{Sources: map[string]config.Source{
		"openlibrary": {Enabled: true, Rate: 1, Burst: 3},
		"googlebooks": {Enabled: true, Rate: 1, Burst: 3},
		"isbndb":      {Enabled: false},
		"scrape":      {Enabled: false},
	}}
	cfg.Cache.DBFile = env.Path("cache.db")
	cfg.Sink.DBFile = env.Path("books.db")

	p, err := buildPipeline(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.service)
	assert.Equal(t, 2, len(p.gate.SnapshotAll()))
}
