package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/hashfs/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. After
// parsing, values are copied into the runtime Config; absent fields
// leave the existing value untouched.
type JsonConfig struct {
	VaultDir     *string `json:"vault_dir"`
	VersionLimit *int    `json:"version_limit"`
	CacheSize    *int    `json:"cache_size"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies present fields into the provided Config.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later
// stages override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.VaultDir != nil {
		cfg.VaultDir = *jc.VaultDir
	}
	if jc.VersionLimit != nil {
		cfg.VersionLimit = *jc.VersionLimit
	}
	if jc.CacheSize != nil {
		cfg.CacheSize = *jc.CacheSize
	}
}
