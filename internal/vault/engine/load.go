package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hashfs/internal/codec"
	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/dmitrijs2005/hashfs/internal/vault/chain"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
)

// Load reads one version of a file. version == nil selects the head.
// validate additionally runs the full chain integrity walk.
//
// A missing file (or one without content yet) yields an empty plaintext
// rather than an error, so hosts can open-or-create transparently.
// Corruption of the head triggers the recovery walk: the newest earlier
// version whose blob still verifies becomes the new head.
func (e *Engine) Load(ctx context.Context, filename string, version *int64, validate bool) (*models.LoadResult, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	rec, ok := e.meta.Files[filename]
	if !ok || rec.ActiveKey == nil {
		mime := models.DefaultMime
		if ok && rec.Mime != "" {
			mime = rec.Mime
		}
		return &models.LoadResult{Data: []byte{}, Mime: mime}, nil
	}

	c, err := e.chains.Load(ctx, rec.ChainID)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", filename, err)
	}

	var target *chain.VersionEntry
	latest := version == nil
	if latest {
		target = c.Last()
		if target == nil {
			return &models.LoadResult{Data: []byte{}, Mime: rec.Mime}, nil
		}
	} else {
		if target = c.Find(*version); target == nil {
			return nil, fmt.Errorf("%w: %s version %d", common.ErrVersionNotFound, filename, *version)
		}
	}

	plaintext, err := e.chains.CheckVersion(ctx, target)
	if err != nil {
		if latest {
			// Head corruption: walk back to the newest surviving
			// version, or give the file up entirely.
			e.log.Warn(ctx, "head version failed verification, recovering",
				"file", filename, "version", target.Version, "error", err)
			return e.recoverLatest(ctx, filename, rec, c)
		}
		return nil, fmt.Errorf("%w: %s version %d: %v", historicalKind(err), filename, target.Version, err)
	}

	if validate {
		if err := e.chains.Validate(ctx, rec.ChainID, c); err != nil {
			return nil, fmt.Errorf("file %s: %w", filename, err)
		}
	}

	head := c.Last()
	return &models.LoadResult{
		Data:              plaintext,
		Mime:              rec.Mime,
		Size:              int64(len(plaintext)),
		Version:           target.Version,
		CurrentVersion:    head.Version,
		AvailableVersions: c.Range(),
	}, nil
}

// recoverLatest walks the chain backwards from the entry before the
// head. The first earlier version that still verifies becomes the new
// head: the file record is repointed and persisted, and the plaintext
// is returned flagged Recovered. If nothing survives, the record is
// dropped and FileCorrupt surfaces.
func (e *Engine) recoverLatest(ctx context.Context, filename string, rec *models.FileRecord, c *chain.Chain) (*models.LoadResult, error) {
	for i := len(c.Versions) - 2; i >= 0; i-- {
		entry := &c.Versions[i]
		plaintext, err := e.chains.CheckVersion(ctx, entry)
		if err != nil {
			e.log.Warn(ctx, "recovery candidate failed",
				"file", filename, "version", entry.Version, "error", err)
			continue
		}

		key := entry.Key
		rec.HeadVersion = entry.Version
		rec.ActiveKey = &key
		rec.LastSize = entry.Size
		if err := e.index.Save(ctx, e.meta); err != nil {
			return nil, err
		}

		e.log.Info(ctx, "recovered file to earlier version",
			"file", filename, "version", entry.Version)

		return &models.LoadResult{
			Data:              plaintext,
			Mime:              rec.Mime,
			Size:              int64(len(plaintext)),
			Version:           entry.Version,
			CurrentVersion:    entry.Version,
			AvailableVersions: c.Range(),
			Recovered:         true,
		}, nil
	}

	// No version survives: the file is gone.
	delete(e.meta.Files, filename)
	if err := e.index.Save(ctx, e.meta); err != nil {
		return nil, err
	}
	e.log.Error(ctx, "file unrecoverable, removed", "file", filename)
	return nil, fmt.Errorf("%w: %s", common.ErrFileCorrupt, filename)
}

// historicalKind maps a version-check failure on a historical version
// to its surface error kind. Hash/signature failures keep their
// specialised kinds for diagnostics; everything else is VersionCorrupt.
func historicalKind(err error) error {
	switch {
	case errors.Is(err, common.ErrHashMismatch):
		return common.ErrHashMismatch
	case errors.Is(err, common.ErrSignatureInvalid):
		return common.ErrSignatureInvalid
	default:
		return common.ErrVersionCorrupt
	}
}

// decryptBlob fetches, decrypts and inflates one stored blob. Shared by
// export and import paths.
func (e *Engine) decryptBlob(ctx context.Context, key string) ([]byte, error) {
	env, err := e.store.Files().Get(ctx, key)
	if err != nil {
		return nil, err
	}
	compressed, err := cryptox.Decrypt(e.keys.EncKey, env)
	if err != nil {
		return nil, err
	}
	return codec.Inflate(compressed)
}
