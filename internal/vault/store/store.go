// Package store implements the vault's namespaced key-value store on
// sqlite. A vault namespace is one database file named after the vault
// id; collections (files, chains, meta, integrity) are tables accessed
// through repository types. Atomic multi-collection writes run through
// dbx.WithTx, so either every write of an operation commits or none.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/dbx"
	"github.com/dmitrijs2005/hashfs/internal/vault/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store owns one vault namespace's database handle.
type Store struct {
	db        *sql.DB
	path      string
	namespace string
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the database file for the given vault
// namespace under dir and applies migrations.
func Open(ctx context.Context, dir, namespace string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, namespace+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// The engine is a single serialized writer; one connection keeps
	// sqlite's locking out of the picture.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &Store{db: db, path: path, namespace: namespace}, nil
}

// OpenOrRecover opens the namespace and runs the health probe. If
// either fails, the namespace database is dropped and recreated empty.
// The returned bool reports whether recovery happened.
func OpenOrRecover(ctx context.Context, dir, namespace string) (*Store, bool, error) {
	s, err := Open(ctx, dir, namespace)
	if err == nil {
		if err = s.HealthCheck(ctx); err == nil {
			return s, false, nil
		}
		_ = s.Close()
	}

	if err := removeDatabase(filepath.Join(dir, namespace+".db")); err != nil {
		return nil, false, fmt.Errorf("%w: drop namespace: %v", common.ErrStoreUnavailable, err)
	}

	s, err = Open(ctx, dir, namespace)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reopen after recovery: %v", common.ErrStoreUnavailable, err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		_ = s.Close()
		return nil, false, fmt.Errorf("%w: health after recovery: %v", common.ErrStoreUnavailable, err)
	}
	return s, true, nil
}

// removeDatabase deletes the database file and sqlite sidecars.
func removeDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// healthKey is the reserved files key used by the probe. It never
// collides with blob keys, which are UUIDs.
const healthKey = "__health__"

// HealthCheck writes a marker envelope into files, reads it back,
// compares, and deletes it. Any deviation means the namespace needs
// recovery.
func (s *Store) HealthCheck(ctx context.Context) error {
	files := s.Files()

	marker := &cryptox.Envelope{
		IV:         common.GenerateRandByteArray(cryptox.NonceSize),
		Ciphertext: common.GenerateRandByteArray(32),
	}

	if err := files.Put(ctx, healthKey, marker); err != nil {
		return fmt.Errorf("health put: %w", err)
	}
	got, err := files.Get(ctx, healthKey)
	if err != nil {
		return fmt.Errorf("health get: %w", err)
	}
	if string(got.IV) != string(marker.IV) || string(got.Ciphertext) != string(marker.Ciphertext) {
		return errors.New("health marker mismatch")
	}
	if err := files.Delete(ctx, healthKey); err != nil {
		return fmt.Errorf("health delete: %w", err)
	}
	return nil
}

// WithTx runs fn inside one sqlite transaction. Repositories created
// from the provided DBTX share the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if err := dbx.WithTx(ctx, s.db, nil, fn); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

// Files returns the files repository bound to the store handle.
func (s *Store) Files() *FilesRepo { return NewFilesRepo(s.db) }

// Chains returns the chains repository bound to the store handle.
func (s *Store) Chains() *ChainsRepo { return NewChainsRepo(s.db) }

// Meta returns the meta repository bound to the store handle.
func (s *Store) Meta() *MetaRepo { return NewMetaRepo(s.db) }

// Integrity returns the integrity repository bound to the store handle.
func (s *Store) Integrity() *IntegrityRepo { return NewIntegrityRepo(s.db) }

// Namespace returns the vault namespace this store serves.
func (s *Store) Namespace() string { return s.namespace }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
