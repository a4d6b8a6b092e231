package index

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/codec"
	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) *cryptox.KeySet {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 7)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &cryptox.KeySet{
		SigKey:  priv,
		PubKey:  priv.Public().(ed25519.PublicKey),
		EncKey:  common.GenerateRandByteArray(32),
		VaultID: "testvault-v6",
	}
}

func newTestManager(t *testing.T) (*Manager, *store.Store, *cryptox.KeySet, *chain.Manager) {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir(), "testvault-v6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	keys := testKeys(t)
	cm := chain.NewManager(s, keys, 0, nil)
	return NewManager(s, keys, cm, nil), s, keys, cm
}

func TestLoad_FreshVaultYieldsEmptyIndex(t *testing.T) {
	m, s, _, _ := newTestManager(t)
	ctx := context.Background()

	doc, outcome, err := m.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, doc.Files)
	require.Equal(t, models.SchemaVersion, doc.SchemaVersion)
	require.False(t, outcome.Rebuilt)

	// The fresh index was persisted.
	_, err = s.Meta().Get(ctx, store.IndexKey)
	require.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	doc := models.NewMetaIndex()
	key := "blob-1"
	doc.Files["a.txt"] = &models.FileRecord{
		Mime:        "text/plain",
		ChainID:     "chain-1",
		HeadVersion: 3,
		LastSize:    11,
		ActiveKey:   &key,
	}
	require.NoError(t, m.Save(ctx, doc))
	require.NotZero(t, doc.LastSaved)

	got, outcome, err := m.Load(ctx)
	require.NoError(t, err)
	require.False(t, outcome.Rebuilt)
	rec := got.Files["a.txt"]
	require.NotNil(t, rec)
	require.Equal(t, "text/plain", rec.Mime)
	require.EqualValues(t, 3, rec.HeadVersion)
	require.NotNil(t, rec.ActiveKey)
	require.Equal(t, "blob-1", *rec.ActiveKey)
}

// writeRawIndex encrypts arbitrary JSON into the meta collection.
func writeRawIndex(t *testing.T, s *store.Store, keys *cryptox.KeySet, raw []byte) {
	t.Helper()
	env, err := cryptox.Encrypt(keys.EncKey, raw)
	require.NoError(t, err)
	require.NoError(t, s.Meta().Put(context.Background(), store.IndexKey, env))
}

func TestLoad_MigratesOldSchema(t *testing.T) {
	m, s, keys, _ := newTestManager(t)
	ctx := context.Background()

	writeRawIndex(t, s, keys, []byte(`{
		"files": {"old.md": {"mime": "", "chainId": "c1", "headVersion": 1}},
		"schemaVersion": 1
	}`))

	doc, outcome, err := m.Load(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Migrated)
	require.False(t, outcome.Rebuilt)

	rec := doc.Files["old.md"]
	require.Equal(t, models.DefaultMime, rec.Mime)
	require.NotZero(t, rec.LastModified)
	require.Equal(t, models.SchemaVersion, doc.SchemaVersion)
}

func TestLoad_RejectsMalformedShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `[1,2,3]`},
		{"missing files", `{"schemaVersion": 2}`},
		{"record without mime", `{"files": {"a": {"chainId": "c1"}}, "schemaVersion": 2}`},
		{"record not object", `{"files": {"a": 42}, "schemaVersion": 2}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, s, keys, _ := newTestManager(t)
			writeRawIndex(t, s, keys, []byte(tc.raw))

			// Rebuild runs against an empty chains collection, so the
			// result is a valid empty index flagged as rebuilt.
			doc, outcome, err := m.Load(context.Background())
			require.NoError(t, err)
			require.True(t, outcome.Rebuilt)
			require.Empty(t, doc.Files)
		})
	}
}

func TestLoad_RebuildsFromChains(t *testing.T) {
	m, s, keys, cm := newTestManager(t)
	ctx := context.Background()

	// A chain whose head blob survives.
	plaintext := []byte("recoverable")
	compressed, err := codec.Compress(plaintext)
	require.NoError(t, err)
	env, err := cryptox.Encrypt(keys.EncKey, compressed)
	require.NoError(t, err)
	require.NoError(t, s.Files().Put(ctx, "blob-1", env))

	h := cryptox.Hash(plaintext)
	c := chain.New()
	c.Versions = append(c.Versions, chain.VersionEntry{
		Version: 2,
		Hash:    h,
		Sig:     cryptox.Sign(keys.SigKey, h),
		Key:     "blob-1",
		Size:    int64(len(plaintext)),
		TS:      time.Now().UnixMilli(),
	})
	require.NoError(t, cm.Save(ctx, "abcdef1234567890", c))

	// A chain whose head blob is gone: must be skipped.
	c2 := chain.New()
	c2.Versions = append(c2.Versions, chain.VersionEntry{
		Version: 1, Hash: h, Sig: cryptox.Sign(keys.SigKey, h), Key: "gone", Size: 1,
	})
	require.NoError(t, cm.Save(ctx, "ffff000011112222", c2))

	// Corrupt index forces the rebuild.
	writeRawIndex(t, s, keys, []byte(`{"nonsense": true}`))

	doc, outcome, err := m.Load(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Rebuilt)
	require.Equal(t, []string{"recovered_abcdef12"}, outcome.RecoveredFiles)

	rec := doc.Files["recovered_abcdef12"]
	require.NotNil(t, rec)
	require.Equal(t, "abcdef1234567890", rec.ChainID)
	require.EqualValues(t, 2, rec.HeadVersion)
	require.NotNil(t, rec.ActiveKey)
	require.Equal(t, "blob-1", *rec.ActiveKey)
}

func TestLoad_RebuildOnUndecryptableIndex(t *testing.T) {
	m, s, _, _ := newTestManager(t)
	ctx := context.Background()

	// Garbage envelope: decryption fails, rebuild path runs.
	require.NoError(t, s.Meta().Put(ctx, store.IndexKey, &cryptox.Envelope{
		IV:         common.GenerateRandByteArray(cryptox.NonceSize),
		Ciphertext: common.GenerateRandByteArray(64),
	}))

	doc, outcome, err := m.Load(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Rebuilt)
	require.Empty(t, doc.Files)
}

func TestEncrypt_ProducesFreshEnvelope(t *testing.T) {
	m, _, keys, _ := newTestManager(t)

	doc := models.NewMetaIndex()
	env, err := m.Encrypt(doc)
	require.NoError(t, err)

	raw, err := cryptox.Decrypt(keys.EncKey, env)
	require.NoError(t, err)

	var round models.MetaIndex
	require.NoError(t, json.Unmarshal(raw, &round))
	require.Equal(t, models.SchemaVersion, round.SchemaVersion)
}
