package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/dbx"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
)

// Delete removes a file entirely: every retained version blob, the
// chain object and the metadata entry, in one transaction. Missing
// blobs do not fail the delete.
func (e *Engine) Delete(ctx context.Context, filename string) error {
	if err := e.requireAuth(); err != nil {
		return err
	}

	rec, err := e.record(filename)
	if err != nil {
		return err
	}

	c, err := e.chains.Load(ctx, rec.ChainID)
	if err != nil {
		return fmt.Errorf("file %s: %w", filename, err)
	}

	keys := c.BlobKeys()
	if rec.ActiveKey != nil {
		found := false
		for _, k := range keys {
			if k == *rec.ActiveKey {
				found = true
				break
			}
		}
		if !found {
			keys = append(keys, *rec.ActiveKey)
		}
	}

	delete(e.meta.Files, filename)
	indexEnv, err := e.index.Encrypt(e.meta)
	if err == nil {
		err = e.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			files := store.NewFilesRepo(tx)
			for _, key := range keys {
				if err := files.Delete(ctx, key); err != nil {
					return err
				}
			}
			if err := store.NewChainsRepo(tx).Delete(ctx, rec.ChainID); err != nil {
				return err
			}
			return store.NewMetaRepo(tx).Put(ctx, store.IndexKey, indexEnv)
		})
	}
	if err != nil {
		e.meta.Files[filename] = rec
		return err
	}

	e.chains.Invalidate(rec.ChainID)
	e.log.Info(ctx, "file deleted", "file", filename, "blobs", len(keys))
	return nil
}

// History lists the retained versions of a file, oldest first.
func (e *Engine) History(ctx context.Context, filename string) ([]models.VersionInfo, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	rec, err := e.record(filename)
	if err != nil {
		return nil, err
	}
	c, err := e.chains.Load(ctx, rec.ChainID)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", filename, err)
	}

	out := make([]models.VersionInfo, 0, len(c.Versions))
	for _, v := range c.Versions {
		out = append(out, models.VersionInfo{
			Version: v.Version,
			Hash:    v.Hash,
			Size:    v.Size,
			TS:      v.TS,
		})
	}
	return out, nil
}

// Rename changes a file's logical name. The record (chain, history,
// modification time) moves untouched; only the index key changes.
func (e *Engine) Rename(ctx context.Context, oldName, newName string) error {
	if err := e.requireAuth(); err != nil {
		return err
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: empty target name", common.ErrRenameInvalid)
	}
	if newName == oldName {
		return nil
	}

	rec, ok := e.meta.Files[oldName]
	if !ok {
		return fmt.Errorf("%w: %s does not exist", common.ErrRenameInvalid, oldName)
	}
	if _, exists := e.meta.Files[newName]; exists {
		return fmt.Errorf("%w: %s already exists", common.ErrRenameConflict, newName)
	}

	delete(e.meta.Files, oldName)
	e.meta.Files[newName] = rec
	if err := e.index.Save(ctx, e.meta); err != nil {
		delete(e.meta.Files, newName)
		e.meta.Files[oldName] = rec
		return err
	}

	e.log.Info(ctx, "file renamed", "from", oldName, "to", newName)
	return nil
}
