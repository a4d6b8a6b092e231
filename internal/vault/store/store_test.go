package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/dbx"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), "testvault-v6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEnvelope(body string) *cryptox.Envelope {
	return &cryptox.Envelope{
		IV:         common.GenerateRandByteArray(cryptox.NonceSize),
		Ciphertext: []byte(body),
	}
}

func TestOpen_CreatesNamespaceFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, "abc-v6")
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "abc-v6.db"))
	require.NoError(t, err)
	require.Equal(t, "abc-v6", s.Namespace())
}

func TestFilesRepo_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	files := s.Files()

	env := testEnvelope("ciphertext-bytes")
	require.NoError(t, files.Put(ctx, "blob-1", env))

	got, err := files.Get(ctx, "blob-1")
	require.NoError(t, err)
	require.Equal(t, env.IV, got.IV)
	require.Equal(t, env.Ciphertext, got.Ciphertext)

	require.NoError(t, files.Delete(ctx, "blob-1"))
	_, err = files.Get(ctx, "blob-1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFilesRepo_DeleteMissingIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Files().Delete(context.Background(), "never-existed"))
}

func TestFilesRepo_ListKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	files := s.Files()

	require.NoError(t, files.Put(ctx, "a", testEnvelope("1")))
	require.NoError(t, files.Put(ctx, "b", testEnvelope("2")))

	keys, err := files.ListKeys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestChainsRepo_RoundTripWithSig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chains := s.Chains()

	env := testEnvelope("compressed-chain")
	require.NoError(t, chains.Put(ctx, "chain-1", env, "deadbeef"))

	got, sig, err := chains.Get(ctx, "chain-1")
	require.NoError(t, err)
	require.Equal(t, env.Ciphertext, got.Ciphertext)
	require.Equal(t, "deadbeef", sig)

	ids, err := chains.ListKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"chain-1"}, ids)
}

func TestMetaRepo_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := s.Meta()

	require.NoError(t, meta.Put(ctx, IndexKey, testEnvelope("index")))
	got, err := meta.Get(ctx, IndexKey)
	require.NoError(t, err)
	require.Equal(t, []byte("index"), got.Ciphertext)

	_, err = meta.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestIntegrityRepo_AbsentReadsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	integ := s.Integrity()

	v, err := integ.Get(ctx, CreatedKey)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, integ.Set(ctx, CreatedKey, "1724400000000"))
	v, err = integ.Get(ctx, CreatedKey)
	require.NoError(t, err)
	require.Equal(t, "1724400000000", v)
}

func TestWithTx_MultiCollectionAtomicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := NewFilesRepo(tx).Put(ctx, "blob-1", testEnvelope("x")); err != nil {
			return err
		}
		if err := NewMetaRepo(tx).Put(ctx, IndexKey, testEnvelope("y")); err != nil {
			return err
		}
		if err := NewChainsRepo(tx).Put(ctx, "chain-1", testEnvelope("z"), "sig"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, common.ErrStoreUnavailable)

	// Nothing committed.
	_, err = s.Files().Get(ctx, "blob-1")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.Meta().Get(ctx, IndexKey)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, _, err = s.Chains().Get(ctx, "chain-1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestWithTx_CommitsAllCollections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := NewFilesRepo(tx).Put(ctx, "blob-1", testEnvelope("x")); err != nil {
			return err
		}
		return NewMetaRepo(tx).Put(ctx, IndexKey, testEnvelope("y"))
	})
	require.NoError(t, err)

	_, err = s.Files().Get(ctx, "blob-1")
	require.NoError(t, err)
	_, err = s.Meta().Get(ctx, IndexKey)
	require.NoError(t, err)
}

func TestHealthCheck_CleanStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))

	// The probe cleans up its marker.
	keys, err := s.Files().ListKeys(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestOpenOrRecover_CleanOpen(t *testing.T) {
	dir := t.TempDir()
	s, recovered, err := OpenOrRecover(context.Background(), dir, "v-v6")
	require.NoError(t, err)
	defer s.Close()
	require.False(t, recovered)
}

func TestOpenOrRecover_DropsCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Populate a namespace, then trash the file on disk.
	s, err := Open(ctx, dir, "v-v6")
	require.NoError(t, err)
	require.NoError(t, s.Files().Put(ctx, "blob-1", testEnvelope("x")))
	require.NoError(t, s.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v-v6.db"), []byte("not a database"), 0o600))

	s, recovered, err := OpenOrRecover(ctx, dir, "v-v6")
	require.NoError(t, err)
	defer s.Close()
	require.True(t, recovered)

	// Namespace came back empty.
	keys, err := s.Files().ListKeys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}
