package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/hashfs/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   vault directory (default from Config)
//	-l int      per-file version limit (default from Config)
//	-s int      chain cache size (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-l", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.VaultDir, "d", cfg.VaultDir, "vault directory")
	fs.IntVar(&cfg.VersionLimit, "l", cfg.VersionLimit, "per-file version limit")
	fs.IntVar(&cfg.CacheSize, "s", cfg.CacheSize, "chain cache size")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
