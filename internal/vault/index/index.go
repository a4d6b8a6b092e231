// Package index manages the encrypted metadata index: the single
// whole-document map of logical filename to file record. The index is
// validated and migrated on load; when it is absent or fails
// validation, it is rebuilt from the surviving chains.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/logging"
	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
)

// Manager loads, validates, migrates, rebuilds and saves the metadata
// index. Like everything engine-owned it is used from a single
// executor and holds no locks.
type Manager struct {
	store  *store.Store
	keys   *cryptox.KeySet
	chains *chain.Manager
	log    logging.Logger
}

func NewManager(s *store.Store, keys *cryptox.KeySet, chains *chain.Manager, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{store: s, keys: keys, chains: chains, log: log}
}

// LoadOutcome reports how the index was obtained.
type LoadOutcome struct {
	// Rebuilt is set when validation failed and the index was
	// reconstructed from chains.
	Rebuilt bool
	// Migrated is set when an older schema was upgraded in place.
	Migrated bool
	// RecoveredFiles lists the synthesized recovered_* names.
	RecoveredFiles []string
}

// Load returns the metadata index, migrating or rebuilding as needed.
// A vault without a stored index (fresh namespace) yields an empty
// index without counting as a rebuild.
func (m *Manager) Load(ctx context.Context) (*models.MetaIndex, *LoadOutcome, error) {
	outcome := &LoadOutcome{}

	env, err := m.store.Meta().Get(ctx, store.IndexKey)
	if errors.Is(err, common.ErrNotFound) {
		doc := models.NewMetaIndex()
		if err := m.Save(ctx, doc); err != nil {
			return nil, nil, err
		}
		return doc, outcome, nil
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := m.decode(env)
	if err != nil {
		m.log.Warn(ctx, "metadata index invalid, rebuilding from chains", "error", err)
		doc, outcome.RecoveredFiles, err = m.rebuild(ctx)
		if err != nil {
			return nil, nil, err
		}
		outcome.Rebuilt = true
		return doc, outcome, nil
	}

	if doc.SchemaVersion < models.SchemaVersion {
		m.migrate(doc)
		if err := m.Save(ctx, doc); err != nil {
			return nil, nil, err
		}
		outcome.Migrated = true
	}

	return doc, outcome, nil
}

// decode decrypts and validates the stored index document. The shape
// check is strict: a top-level object with a files mapping whose
// records carry at least a mime string; anything else is rejected so
// the rebuild path runs.
func (m *Manager) decode(env *cryptox.Envelope) (*models.MetaIndex, error) {
	raw, err := cryptox.Decrypt(m.keys.EncKey, env)
	if err != nil {
		return nil, err
	}

	var shape struct {
		Files map[string]json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("index parse: %w", err)
	}
	if shape.Files == nil {
		return nil, errors.New("index has no files mapping")
	}
	for name, rec := range shape.Files {
		var fields struct {
			Mime *string `json:"mime"`
		}
		if err := json.Unmarshal(rec, &fields); err != nil || fields.Mime == nil {
			return nil, fmt.Errorf("index record %q malformed", name)
		}
	}

	doc := models.NewMetaIndex()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("index decode: %w", err)
	}
	if doc.Files == nil {
		doc.Files = make(map[string]*models.FileRecord)
	}
	return doc, nil
}

// migrate fills defaults introduced by newer schema versions and bumps
// the version tag.
func (m *Manager) migrate(doc *models.MetaIndex) {
	now := time.Now().UnixMilli()
	for _, rec := range doc.Files {
		if rec.Mime == "" {
			rec.Mime = models.DefaultMime
		}
		if rec.LastModified == 0 {
			rec.LastModified = now
		}
		// LastSize / LastCompressedSize default to 0, which the zero
		// value already provides.
	}
	doc.SchemaVersion = models.SchemaVersion
}

// rebuild reconstructs an index from chains: every chain whose head
// version's blob survives becomes a recovered_<chainID[0:8]> record.
func (m *Manager) rebuild(ctx context.Context) (*models.MetaIndex, []string, error) {
	doc := models.NewMetaIndex()

	ids, err := m.store.Chains().ListKeys(ctx)
	if err != nil {
		return nil, nil, err
	}

	var recovered []string
	now := time.Now().UnixMilli()
	for _, id := range ids {
		c, err := m.chains.Load(ctx, id)
		if err != nil {
			m.log.Warn(ctx, "skipping unreadable chain during rebuild", "chain", id, "error", err)
			continue
		}
		last := c.Last()
		if last == nil {
			continue
		}
		if _, err := m.store.Files().Get(ctx, last.Key); err != nil {
			continue
		}

		name := "recovered_" + shortID(id)
		key := last.Key
		doc.Files[name] = &models.FileRecord{
			Mime:         models.DefaultMime,
			ChainID:      id,
			HeadVersion:  last.Version,
			LastModified: now,
			LastSize:     last.Size,
			ActiveKey:    &key,
		}
		recovered = append(recovered, name)
	}

	if err := m.Save(ctx, doc); err != nil {
		return nil, nil, err
	}
	return doc, recovered, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Encrypt serializes and encrypts the index document for inclusion in
// a caller-owned transaction. Writes are always whole-document
// rewrites; LastSaved is refreshed here.
func (m *Manager) Encrypt(doc *models.MetaIndex) (*cryptox.Envelope, error) {
	doc.LastSaved = time.Now().UnixMilli()
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	return cryptox.Encrypt(m.keys.EncKey, raw)
}

// Save encrypts and persists the index document in its own write.
func (m *Manager) Save(ctx context.Context, doc *models.MetaIndex) error {
	env, err := m.Encrypt(doc)
	if err != nil {
		return err
	}
	return m.store.Meta().Put(ctx, store.IndexKey, env)
}
