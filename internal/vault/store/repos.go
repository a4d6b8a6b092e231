package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/dbx"
)

// FilesRepo stores encrypted content blobs keyed by opaque blob keys.
// It works over a DBTX, so the same type serves both direct access and
// transactional access.
type FilesRepo struct {
	db dbx.DBTX
}

func NewFilesRepo(db dbx.DBTX) *FilesRepo {
	return &FilesRepo{db: db}
}

// Get returns the envelope stored under key, or common.ErrNotFound.
func (r *FilesRepo) Get(ctx context.Context, key string) (*cryptox.Envelope, error) {
	env := &cryptox.Envelope{}
	err := r.db.QueryRowContext(ctx,
		`SELECT iv, ciphertext FROM files WHERE key = ?`, key,
	).Scan(&env.IV, &env.Ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: blob %s", common.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return env, nil
}

// Put upserts an envelope under key.
func (r *FilesRepo) Put(ctx context.Context, key string, env *cryptox.Envelope) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files (key, iv, ciphertext) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET iv = excluded.iv, ciphertext = excluded.ciphertext
	`, key, env.IV, env.Ciphertext)
	if err != nil {
		return fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an
// error: prune and cleanup paths delete opportunistically.
func (r *FilesRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every blob key in the collection. Used by the
// orphan scan.
func (r *FilesRepo) ListKeys(ctx context.Context) ([]string, error) {
	return listKeys(ctx, r.db, `SELECT key FROM files`)
}

// ChainsRepo stores encrypted, compressed chain payloads with the
// attached chain-blob signature.
type ChainsRepo struct {
	db dbx.DBTX
}

func NewChainsRepo(db dbx.DBTX) *ChainsRepo {
	return &ChainsRepo{db: db}
}

// Get returns the chain envelope and its signature, or
// common.ErrNotFound.
func (r *ChainsRepo) Get(ctx context.Context, id string) (*cryptox.Envelope, string, error) {
	env := &cryptox.Envelope{}
	var sig string
	err := r.db.QueryRowContext(ctx,
		`SELECT iv, ciphertext, sig FROM chains WHERE id = ?`, id,
	).Scan(&env.IV, &env.Ciphertext, &sig)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: chain %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get chain %s: %w", id, err)
	}
	return env, sig, nil
}

// Put upserts a chain payload and its signature.
func (r *ChainsRepo) Put(ctx context.Context, id string, env *cryptox.Envelope, sig string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chains (id, iv, ciphertext, sig) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET iv = excluded.iv,
			ciphertext = excluded.ciphertext,
			sig = excluded.sig
	`, id, env.IV, env.Ciphertext, sig)
	if err != nil {
		return fmt.Errorf("failed to put chain %s: %w", id, err)
	}
	return nil
}

// Delete removes a chain.
func (r *ChainsRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chains WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chain %s: %w", id, err)
	}
	return nil
}

// ListKeys returns every chain id. Used by metadata rebuild.
func (r *ChainsRepo) ListKeys(ctx context.Context) ([]string, error) {
	return listKeys(ctx, r.db, `SELECT id FROM chains`)
}

// MetaRepo stores the encrypted metadata index (one document under the
// "index" key).
type MetaRepo struct {
	db dbx.DBTX
}

func NewMetaRepo(db dbx.DBTX) *MetaRepo {
	return &MetaRepo{db: db}
}

// IndexKey is the single meta-collection key the engine uses.
const IndexKey = "index"

func (r *MetaRepo) Get(ctx context.Context, key string) (*cryptox.Envelope, error) {
	env := &cryptox.Envelope{}
	err := r.db.QueryRowContext(ctx,
		`SELECT iv, ciphertext FROM meta WHERE key = ?`, key,
	).Scan(&env.IV, &env.Ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: meta %s", common.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meta[%s]: %w", key, err)
	}
	return env, nil
}

func (r *MetaRepo) Put(ctx context.Context, key string, env *cryptox.Envelope) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meta (key, iv, ciphertext) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET iv = excluded.iv, ciphertext = excluded.ciphertext
	`, key, env.IV, env.Ciphertext)
	if err != nil {
		return fmt.Errorf("failed to put meta[%s]: %w", key, err)
	}
	return nil
}

func (r *MetaRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete meta[%s]: %w", key, err)
	}
	return nil
}

// IntegrityRepo stores small plaintext bookkeeping values: creation
// time, metadata format version.
type IntegrityRepo struct {
	db dbx.DBTX
}

func NewIntegrityRepo(db dbx.DBTX) *IntegrityRepo {
	return &IntegrityRepo{db: db}
}

// Bookkeeping keys.
const (
	CreatedKey     = "created"
	MetaVersionKey = "metaVersion"
)

// Get returns the value under key, or "" when absent.
func (r *IntegrityRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM integrity WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get integrity[%s]: %w", key, err)
	}
	return value, nil
}

func (r *IntegrityRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO integrity (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set integrity[%s]: %w", key, err)
	}
	return nil
}

// listKeys runs a single-column key query and collects the rows.
func listKeys(ctx context.Context, db dbx.DBTX, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
