package cli

import (
	"bufio"
	"os"

	"github.com/dmitrijs2005/hashfs/internal/config"
	"github.com/dmitrijs2005/hashfs/internal/logging"
	"github.com/dmitrijs2005/hashfs/internal/vault/engine"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
)

// App wires the REPL to a vault dispatcher. One App serves one terminal
// session; the vault stays locked until the unlock command succeeds.
type App struct {
	config      *config.Config
	dispatcher  *engine.Dispatcher
	reader      *bufio.Reader
	unlocked    bool
	fingerprint models.Fingerprint
}

func NewApp(c *config.Config, log logging.Logger) *App {
	eng := engine.New(engine.Options{
		Dir:          c.VaultDir,
		VersionLimit: c.VersionLimit,
		CacheSize:    c.CacheSize,
		Logger:       log,
	})
	return &App{
		config:     c,
		dispatcher: engine.NewDispatcher(eng),
		reader:     bufio.NewReader(os.Stdin),
	}
}

func (a *App) isUnlocked() bool {
	return a.unlocked
}

// Close shuts the dispatcher down, wiping key material.
func (a *App) Close() error {
	return a.dispatcher.Close()
}
