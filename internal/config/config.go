package config

import (
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
)

// Config holds runtime settings for the HashFS CLI.
//
// Fields:
//   - VaultDir: directory holding the per-vault sqlite databases.
//   - VersionLimit: per-file history bound applied on save.
//   - CacheSize: capacity of the in-memory chain cache.
type Config struct {
	VaultDir     string
	VersionLimit int
	CacheSize    int
}

// LoadDefaults populates c with sensible defaults. The vault directory
// defaults to ~/.hashfs, falling back to the working directory when the
// home directory cannot be resolved.
func (c *Config) LoadDefaults() {
	dir := ".hashfs"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".hashfs")
	}
	c.VaultDir = dir
	c.VersionLimit = chain.DefaultVersionLimit
	c.CacheSize = chain.DefaultCacheSize
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
