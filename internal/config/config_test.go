package config

import (
	"testing"

	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.NotEmpty(t, c.VaultDir)
	assert.Equal(t, chain.DefaultVersionLimit, c.VersionLimit)
	assert.Equal(t, chain.DefaultCacheSize, c.CacheSize)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, chain.DefaultVersionLimit, cfg.VersionLimit)
	assert.Equal(t, chain.DefaultCacheSize, cfg.CacheSize)
}
