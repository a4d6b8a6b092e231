package engine

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/codec"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/dbx"
	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
	"github.com/google/uuid"
)

// SaveOptions tunes a single save call.
type SaveOptions struct {
	// VersionLimit overrides the engine default when > 0.
	VersionLimit int
}

// Save commits a new version of filename. Content identical to the
// current head (by BLAKE3) is deduplicated: no blob is written and the
// chain does not grow, though a differing MIME still updates metadata.
//
// The write pipeline is hash → sign → compress → encrypt → transaction
// (blob + metadata) → chain append/prune → prune-blob deletion. The
// blob/metadata transaction is atomic; a failure there leaves the vault
// exactly as before the call. A failure deleting pruned blobs is only
// logged: the keys become orphans that integrity-check collects.
func (e *Engine) Save(ctx context.Context, filename string, data []byte, mime string, opts SaveOptions) (*models.SaveResult, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	hash := cryptox.Hash(data)

	rec, existed := e.meta.Files[filename]
	if !existed {
		rec = &models.FileRecord{
			Mime:    mimeOrDefault(mime),
			ChainID: uuid.NewString(),
		}
	}

	c, err := e.chains.Load(ctx, rec.ChainID)
	if err != nil {
		return nil, err
	}

	if last := c.Last(); last != nil && last.Hash == hash {
		// Unchanged content. Only a MIME change touches storage.
		if mime != "" && mime != rec.Mime {
			prev := rec.Mime
			rec.Mime = mime
			if err := e.index.Save(ctx, e.meta); err != nil {
				rec.Mime = prev
				return nil, err
			}
		}
		return &models.SaveResult{Unchanged: true}, nil
	}

	version := rec.HeadVersion + 1
	newKey := uuid.NewString()
	sig := cryptox.Sign(e.keys.SigKey, hash)

	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, err
	}
	env, err := cryptox.Encrypt(e.keys.EncKey, compressed)
	if err != nil {
		return nil, err
	}

	// Stage the record mutation, keeping a snapshot so a failed
	// transaction restores the pre-call state exactly.
	snapshot := *rec
	rec.Mime = mimeOrKeep(mime, rec.Mime)
	rec.HeadVersion = version
	rec.LastModified = time.Now().UnixMilli()
	rec.LastSize = int64(len(data))
	rec.LastCompressedSize = int64(len(compressed))
	rec.ActiveKey = &newKey
	e.meta.Files[filename] = rec

	// The index is encrypted before the transaction begins; the blob
	// and the index document commit together.
	indexEnv, err := e.index.Encrypt(e.meta)
	if err == nil {
		err = e.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			if err := store.NewFilesRepo(tx).Put(ctx, newKey, env); err != nil {
				return err
			}
			return store.NewMetaRepo(tx).Put(ctx, store.IndexKey, indexEnv)
		})
	}
	if err != nil {
		if existed {
			*rec = snapshot
		} else {
			delete(e.meta.Files, filename)
		}
		return nil, err
	}

	entry := chain.VersionEntry{
		Version: version,
		Hash:    hash,
		Sig:     sig,
		Key:     newKey,
		Size:    int64(len(data)),
		TS:      rec.LastModified,
	}
	dropped, err := e.chains.Append(ctx, rec.ChainID, entry, e.versionLimit(opts.VersionLimit))
	if err != nil {
		return nil, err
	}

	if len(dropped) > 0 {
		err := e.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			files := store.NewFilesRepo(tx)
			for _, key := range dropped {
				if err := files.Delete(ctx, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// Orphans only; integrity-check reclaims them.
			e.log.Warn(ctx, "failed to delete pruned blobs",
				"file", filename, "count", len(dropped), "error", err)
		} else {
			e.log.Debug(ctx, "pruned old versions",
				"file", filename, "count", len(dropped))
		}
	}

	return &models.SaveResult{Version: version, Files: e.filesSummary()}, nil
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return models.DefaultMime
	}
	return mime
}

func mimeOrKeep(mime, current string) string {
	if mime == "" {
		if current == "" {
			return models.DefaultMime
		}
		return current
	}
	return mime
}
