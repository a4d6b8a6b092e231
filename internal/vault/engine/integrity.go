package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/hashfs/internal/dbx"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/dmitrijs2005/hashfs/internal/vault/store"
)

// IntegrityCheck walks every file's full chain, repoints heads whose
// blob no longer verifies, removes files with no surviving version, and
// finally sweeps blob keys no surviving chain references. It is the
// reclamation path for orphans left by failed prune deletions.
func (e *Engine) IntegrityCheck(ctx context.Context, progress models.Progress) (*models.IntegrityReport, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	report := &models.IntegrityReport{
		Issues:       []models.IntegrityIssue{},
		FilesRemoved: []string{},
	}

	names := make([]string, 0, len(e.meta.Files))
	for name := range e.meta.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	metaDirty := false
	for i, name := range names {
		if progress != nil {
			progress(i, len(names), name)
		}
		removed, changed, err := e.checkFile(ctx, name, report)
		if err != nil {
			return nil, err
		}
		if removed {
			report.FilesRemoved = append(report.FilesRemoved, name)
		}
		metaDirty = metaDirty || removed || changed
	}

	if metaDirty {
		if err := e.index.Save(ctx, e.meta); err != nil {
			return nil, err
		}
	}

	orphans, err := e.sweepOrphans(ctx)
	if err != nil {
		return nil, err
	}
	report.OrphansRemoved = orphans

	if progress != nil {
		progress(len(names), len(names), "")
	}

	e.log.Info(ctx, "integrity check complete",
		"issues", len(report.Issues),
		"filesRemoved", len(report.FilesRemoved),
		"orphansRemoved", report.OrphansRemoved)
	return report, nil
}

// checkFile validates one file's chain version by version. Failing
// versions are dropped from the chain; when the head falls, the newest
// surviving version becomes the head. Returns (removed, changed).
func (e *Engine) checkFile(ctx context.Context, name string, report *models.IntegrityReport) (bool, bool, error) {
	rec := e.meta.Files[name]

	c, err := e.chains.Load(ctx, rec.ChainID)
	if err != nil {
		report.Issues = append(report.Issues, models.IntegrityIssue{
			File:   name,
			Detail: fmt.Sprintf("chain unreadable: %v", err),
		})
		return true, false, e.removeFile(ctx, name, rec.ChainID)
	}

	if len(c.Versions) == 0 {
		// Nascent file: a record without content is legitimate.
		return false, false, nil
	}

	surviving := c.Versions[:0:0]
	for i := range c.Versions {
		v := &c.Versions[i]
		if _, err := e.chains.CheckVersion(ctx, v); err != nil {
			report.Issues = append(report.Issues, models.IntegrityIssue{
				File:    name,
				Version: v.Version,
				Detail:  err.Error(),
			})
			continue
		}
		surviving = append(surviving, *v)
	}

	if len(surviving) == 0 {
		return true, false, e.removeFile(ctx, name, rec.ChainID)
	}
	if len(surviving) == len(c.Versions) {
		return false, false, nil
	}

	c.Versions = surviving
	if err := e.chains.Save(ctx, rec.ChainID, c); err != nil {
		return false, false, err
	}

	head := c.Last()
	changed := false
	if rec.HeadVersion != head.Version {
		key := head.Key
		rec.HeadVersion = head.Version
		rec.ActiveKey = &key
		rec.LastSize = head.Size
		changed = true
		e.log.Warn(ctx, "head repointed during integrity check",
			"file", name, "version", head.Version)
	}
	return false, changed, nil
}

// removeFile drops a file's record and chain. Its blobs are left for
// the orphan sweep that follows.
func (e *Engine) removeFile(ctx context.Context, name, chainID string) error {
	if err := e.store.Chains().Delete(ctx, chainID); err != nil {
		return err
	}
	e.chains.Invalidate(chainID)
	delete(e.meta.Files, name)
	e.log.Warn(ctx, "unrecoverable file removed", "file", name)
	return nil
}

// sweepOrphans deletes every blob key not referenced by a surviving
// chain version or active key.
func (e *Engine) sweepOrphans(ctx context.Context) (int, error) {
	referenced := make(map[string]struct{})
	for _, rec := range e.meta.Files {
		if rec.ActiveKey != nil {
			referenced[*rec.ActiveKey] = struct{}{}
		}
		c, err := e.chains.Load(ctx, rec.ChainID)
		if err != nil {
			return 0, err
		}
		for _, key := range c.BlobKeys() {
			referenced[key] = struct{}{}
		}
	}

	keys, err := e.store.Files().ListKeys(ctx)
	if err != nil {
		return 0, err
	}

	var orphans []string
	for _, key := range keys {
		if _, ok := referenced[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		files := store.NewFilesRepo(tx)
		for _, key := range orphans {
			if err := files.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(orphans), nil
}
