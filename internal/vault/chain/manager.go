package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hashfs/internal/codec"
	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/logging"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
)

// Manager loads, verifies, saves and prunes chains, fronted by a small
// LRU cache. One manager is instantiated per engine session and owns no
// state beyond the cache; it is not safe for concurrent use (the engine
// serializes all access).
type Manager struct {
	store *store.Store
	keys  *cryptox.KeySet
	cache *lruCache
	log   logging.Logger
}

// NewManager builds a manager over the given store and session keys.
// cacheSize <= 0 selects DefaultCacheSize.
func NewManager(s *store.Store, keys *cryptox.KeySet, cacheSize int, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		store: s,
		keys:  keys,
		cache: newLRUCache(cacheSize),
		log:   log,
	}
}

// Load returns the chain for chainID, verifying the blob signature, the
// payload, and the chain hash. A missing chain blob yields an empty
// chain so fresh files share the append path. Legacy chains without a
// chain hash are upgraded (computed, signed, rewritten) on first load.
func (m *Manager) Load(ctx context.Context, chainID string) (*Chain, error) {
	if c := m.cache.get(chainID); c != nil {
		return c, nil
	}

	env, sig, err := m.store.Chains().Get(ctx, chainID)
	if errors.Is(err, common.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}

	c, err := m.decode(env, sig, chainID)
	if err != nil {
		return nil, err
	}

	if c.ChainHash == "" && c.ChainSig == "" {
		// Legacy chain: compute and sign the chain hash, persist the
		// upgraded object.
		if err := m.Save(ctx, chainID, c); err != nil {
			return nil, fmt.Errorf("upgrade chain %s: %w", chainID, err)
		}
		m.log.Info(ctx, "upgraded legacy chain", "chain", chainID, "versions", len(c.Versions))
		return c, nil
	}

	if got := ComputeHash(c); got != c.ChainHash {
		return nil, fmt.Errorf("%w: chain %s hash mismatch", common.ErrChainCorrupt, chainID)
	}
	if !cryptox.Verify(m.keys.PubKey, c.ChainHash, c.ChainSig) {
		return nil, fmt.Errorf("%w: chain %s signature invalid", common.ErrChainCorrupt, chainID)
	}

	m.cache.put(chainID, c)
	return c, nil
}

// decode verifies the blob signature over the compressed inner bytes,
// then decrypts, inflates and parses the chain JSON. The signature
// covers the pre-encryption compressed payload, so verification
// requires decrypting first.
func (m *Manager) decode(env *cryptox.Envelope, sig, chainID string) (*Chain, error) {
	if sig == "" {
		return nil, fmt.Errorf("%w: chain %s has no signature", common.ErrChainCorrupt, chainID)
	}

	compressed, err := cryptox.Decrypt(m.keys.EncKey, env)
	if err != nil {
		return nil, fmt.Errorf("%w: chain %s: %v", common.ErrChainCorrupt, chainID, err)
	}

	if !cryptox.Verify(m.keys.PubKey, cryptox.Hash(compressed), sig) {
		return nil, fmt.Errorf("%w: chain %s blob signature invalid", common.ErrChainCorrupt, chainID)
	}

	raw, err := codec.Inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: chain %s inflate: %v", common.ErrChainCorrupt, chainID, err)
	}

	c := New()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("%w: chain %s parse: %v", common.ErrChainCorrupt, chainID, err)
	}
	if c.Versions == nil {
		c.Versions = []VersionEntry{}
	}
	return c, nil
}

// Save recomputes and signs the chain hash, serializes, compresses,
// signs the compressed bytes, encrypts, writes the blob and refreshes
// the cache.
func (m *Manager) Save(ctx context.Context, chainID string, c *Chain) error {
	c.ChainHash = ComputeHash(c)
	c.ChainSig = cryptox.Sign(m.keys.SigKey, c.ChainHash)

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chain %s: %w", chainID, err)
	}
	compressed, err := codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("compress chain %s: %w", chainID, err)
	}

	sig := cryptox.Sign(m.keys.SigKey, cryptox.Hash(compressed))

	env, err := cryptox.Encrypt(m.keys.EncKey, compressed)
	if err != nil {
		return fmt.Errorf("encrypt chain %s: %w", chainID, err)
	}

	if err := m.store.Chains().Put(ctx, chainID, env, sig); err != nil {
		return err
	}

	m.cache.put(chainID, c)
	return nil
}

// Append pushes a new version entry, prunes to versionLimit, re-signs
// and saves the chain. It returns the blob keys dropped by pruning;
// the caller deletes those blobs in its own transaction.
func (m *Manager) Append(ctx context.Context, chainID string, entry VersionEntry, versionLimit int) ([]string, error) {
	if versionLimit <= 0 {
		versionLimit = DefaultVersionLimit
	}

	c, err := m.Load(ctx, chainID)
	if err != nil {
		return nil, err
	}

	c.Versions = append(c.Versions, entry)

	var dropped []string
	for len(c.Versions) > versionLimit {
		dropped = append(dropped, c.Versions[0].Key)
		c.Versions = c.Versions[1:]
		c.Pruned.Count++
	}
	if len(dropped) > 0 {
		c.Pruned.OldestKept = c.Versions[0].Version
	}

	if err := m.Save(ctx, chainID, c); err != nil {
		return nil, err
	}
	return dropped, nil
}

// Validate performs the full integrity walk: every retained version's
// blob is fetched, decrypted, inflated, rehashed and its signature
// checked. The first failure surfaces as ChainCorrupt carrying the
// offending version number.
func (m *Manager) Validate(ctx context.Context, chainID string, c *Chain) error {
	for i := range c.Versions {
		v := &c.Versions[i]
		if _, err := m.CheckVersion(ctx, v); err != nil {
			return fmt.Errorf("%w: version %d: %v", common.ErrChainCorrupt, v.Version, err)
		}
	}
	return nil
}

// CheckVersion fetches, decrypts, inflates and verifies one version's
// blob, returning the plaintext on success. Both the content hash and
// the per-version signature must hold.
func (m *Manager) CheckVersion(ctx context.Context, v *VersionEntry) ([]byte, error) {
	env, err := m.store.Files().Get(ctx, v.Key)
	if err != nil {
		return nil, fmt.Errorf("blob missing: %w", err)
	}
	compressed, err := cryptox.Decrypt(m.keys.EncKey, env)
	if err != nil {
		return nil, err
	}
	plaintext, err := codec.Inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if cryptox.Hash(plaintext) != v.Hash {
		return nil, common.ErrHashMismatch
	}
	if !cryptox.Verify(m.keys.PubKey, v.Hash, v.Sig) {
		return nil, common.ErrSignatureInvalid
	}
	return plaintext, nil
}

// Invalidate drops a chain from the cache. Called when a chain is
// deleted or rewritten outside the manager (delete transaction).
func (m *Manager) Invalidate(chainID string) {
	m.cache.remove(chainID)
}
