// Package engine implements the vault engine: the single owner of the
// derived session keys, the open store handle, the metadata index and
// the chain cache. Every operation the host can request (init, load,
// save, delete, rename, ZIP export/import, integrity check) lives here.
//
// The engine itself is not safe for concurrent use; the Dispatcher
// serializes requests onto one executor goroutine, which is the
// concurrency model the whole design assumes.
package engine

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/logging"
	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/dmitrijs2005/hashfs/internal/vault/index"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
)

// Options configures an Engine.
type Options struct {
	// Dir is the directory holding vault namespace databases.
	Dir string
	// VersionLimit bounds per-file history; <= 0 selects the default.
	VersionLimit int
	// CacheSize bounds the chain cache; <= 0 selects the default.
	CacheSize int
	// Logger receives structured events; nil discards them.
	Logger logging.Logger
}

// Engine is the vault engine. All state is owned by one executor; see
// Dispatcher.
type Engine struct {
	opts Options
	log  logging.Logger

	keys   *cryptox.KeySet
	store  *store.Store
	chains *chain.Manager
	index  *index.Manager
	meta   *models.MetaIndex

	fingerprint models.Fingerprint
}

// deriveKeysFn is a test seam: tests substitute a cheap derivation so
// suites do not pay the full scrypt cost per init.
var deriveKeysFn = cryptox.DeriveKeys

// New builds an Engine. No keys are derived and nothing is opened until
// Init.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.VersionLimit <= 0 {
		opts.VersionLimit = chain.DefaultVersionLimit
	}
	return &Engine{opts: opts, log: opts.Logger}
}

// Init unlocks the vault addressed by the passphrase: derives the key
// set, opens (or recovers) the namespace store, loads (or rebuilds) the
// metadata index and computes the vault fingerprints. Re-init on an
// already-unlocked engine tears the previous session down first.
func (e *Engine) Init(ctx context.Context, passphrase string) (*models.InitResult, error) {
	keys, err := deriveKeysFn(passphrase)
	if err != nil {
		return nil, err
	}

	e.teardown()

	s, dbRebuilt, err := store.OpenOrRecover(ctx, e.opts.Dir, keys.VaultID)
	if err != nil {
		keys.Wipe()
		return nil, err
	}

	e.keys = keys
	e.store = s
	e.chains = chain.NewManager(s, keys, e.opts.CacheSize, e.log)
	e.index = index.NewManager(s, keys, e.chains, e.log)

	doc, outcome, err := e.index.Load(ctx)
	if err != nil {
		e.teardown()
		return nil, err
	}
	e.meta = doc

	if err := e.touchBookkeeping(ctx); err != nil {
		e.teardown()
		return nil, err
	}

	e.fingerprint = e.computeFingerprint()

	var recovery *models.RecoveryInfo
	if dbRebuilt || outcome.Rebuilt {
		recovery = &models.RecoveryInfo{
			DatabaseRebuilt: dbRebuilt,
			MetadataRebuilt: outcome.Rebuilt,
			RecoveredFiles:  outcome.RecoveredFiles,
		}
		e.log.Warn(ctx, "vault recovered during init",
			"vault", keys.VaultID,
			"databaseRebuilt", dbRebuilt,
			"metadataRebuilt", outcome.Rebuilt,
			"recoveredFiles", len(outcome.RecoveredFiles))
	}

	e.log.Info(ctx, "vault unlocked", "vault", keys.VaultID, "files", len(doc.Files))

	return &models.InitResult{
		Files:        e.filesSummary(),
		Fingerprint:  e.fingerprint,
		RecoveryInfo: recovery,
	}, nil
}

// touchBookkeeping maintains the integrity collection: creation time on
// first unlock, metadata schema version always.
func (e *Engine) touchBookkeeping(ctx context.Context) error {
	integ := e.store.Integrity()

	created, err := integ.Get(ctx, store.CreatedKey)
	if err != nil {
		return err
	}
	if created == "" {
		if err := integ.Set(ctx, store.CreatedKey, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
			return err
		}
	}
	return integ.Set(ctx, store.MetaVersionKey, strconv.Itoa(models.SchemaVersion))
}

// computeFingerprint derives the {base, session} hash pair. Base is a
// function of the namespace name and the encryption key, so it is
// stable across re-inits of the same vault; session mixes in fresh
// time+random entropy.
func (e *Engine) computeFingerprint() models.Fingerprint {
	nameBytes := []byte(e.store.Namespace())
	if len(nameBytes) > 32 {
		nameBytes = nameBytes[:32]
	}

	baseInput := make([]byte, 0, len(nameBytes)+len(e.keys.EncKey))
	baseInput = append(baseInput, nameBytes...)
	baseInput = append(baseInput, e.keys.EncKey...)
	base := cryptox.Digest(baseInput)

	entropy := make([]byte, 0, 40)
	entropy = binary.BigEndian.AppendUint64(entropy, uint64(time.Now().UnixMilli()))
	entropy = append(entropy, common.GenerateRandByteArray(32)...)

	sessionInput := make([]byte, 0, len(base)+len(entropy))
	sessionInput = append(sessionInput, base[:]...)
	sessionInput = append(sessionInput, entropy...)
	session := cryptox.Digest(sessionInput)

	return models.Fingerprint{
		Base:    hex.EncodeToString(base[:]),
		Session: hex.EncodeToString(session[:]),
	}
}

// requireAuth gates every per-file operation.
func (e *Engine) requireAuth() error {
	if e.keys == nil {
		return common.ErrUnauthenticated
	}
	return nil
}

// Files returns the sorted file summaries.
func (e *Engine) Files() ([]models.FileSummary, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}
	return e.filesSummary(), nil
}

func (e *Engine) filesSummary() []models.FileSummary {
	out := make([]models.FileSummary, 0, len(e.meta.Files))
	for name, rec := range e.meta.Files {
		out = append(out, models.FileSummary{
			Name:               name,
			Mime:               rec.Mime,
			HeadVersion:        rec.HeadVersion,
			LastSize:           rec.LastSize,
			LastCompressedSize: rec.LastCompressedSize,
			LastModified:       rec.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// versionLimit resolves the effective history bound for a save.
func (e *Engine) versionLimit(override int) int {
	if override > 0 {
		return override
	}
	return e.opts.VersionLimit
}

// Fingerprint returns the current {base, session} pair. Zero before
// Init.
func (e *Engine) Fingerprint() models.Fingerprint { return e.fingerprint }

// Close tears the session down: wipes key material and closes the
// store. The engine can be re-unlocked with Init afterwards.
func (e *Engine) Close() error {
	e.teardown()
	return nil
}

func (e *Engine) teardown() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn(context.Background(), "closing store", "error", err)
		}
	}
	e.keys.Wipe()
	e.keys = nil
	e.store = nil
	e.chains = nil
	e.index = nil
	e.meta = nil
	e.fingerprint = models.Fingerprint{}
}

// record returns the file record for name, or a NotFound error carrying
// the filename.
func (e *Engine) record(name string) (*models.FileRecord, error) {
	rec, ok := e.meta.Files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	return rec, nil
}
