package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/hashfs/internal/codec"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
)

// SidecarName is the archive entry carrying per-file MIME types.
const SidecarName = ".hashfs_meta.json"

// sidecar is the JSON shape of the archive metadata entry.
type sidecar struct {
	Mimes map[string]string `json:"mimes"`
}

// ExportZip packs the head version of every file into a ZIP archive,
// plus the metadata sidecar mapping filename to MIME type. A file whose
// head blob cannot be decrypted is skipped with a warning rather than
// failing the whole export.
func (e *Engine) ExportZip(ctx context.Context, progress models.Progress) ([]byte, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(e.meta.Files))
	for name, rec := range e.meta.Files {
		if rec.ActiveKey != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make(map[string][]byte, len(names)+1)
	sc := sidecar{Mimes: make(map[string]string, len(names))}

	for i, name := range names {
		if progress != nil {
			progress(i, len(names), name)
		}
		rec := e.meta.Files[name]
		plaintext, err := e.decryptBlob(ctx, *rec.ActiveKey)
		if err != nil {
			e.log.Warn(ctx, "skipping file during export", "file", name, "error", err)
			continue
		}
		entries[name] = plaintext
		sc.Mimes[name] = rec.Mime
	}
	if progress != nil {
		progress(len(names), len(names), "")
	}

	raw, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}
	entries[SidecarName] = raw

	archive, err := codec.ZipPack(entries)
	if err != nil {
		return nil, err
	}

	e.log.Info(ctx, "vault exported", "files", len(sc.Mimes), "bytes", len(archive))
	return archive, nil
}

// ImportZip unpacks an archive into import items ready for save. The
// sidecar, when present, supplies MIME types; entries it does not cover
// default to octet-stream. Nothing is written: the host runs the normal
// save pipeline per item, so hash deduplication still applies.
func (e *Engine) ImportZip(ctx context.Context, archive []byte, progress models.Progress) ([]models.ImportItem, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	entries, err := codec.ZipUnpack(archive)
	if err != nil {
		return nil, err
	}

	mimes := map[string]string{}
	if raw, ok := entries[SidecarName]; ok {
		var sc sidecar
		if err := json.Unmarshal(raw, &sc); err != nil {
			e.log.Warn(ctx, "unreadable archive sidecar, using default mime", "error", err)
		} else if sc.Mimes != nil {
			mimes = sc.Mimes
		}
		delete(entries, SidecarName)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]models.ImportItem, 0, len(names))
	for i, name := range names {
		if progress != nil {
			progress(i, len(names), name)
		}
		mime := mimes[name]
		if mime == "" {
			mime = models.ImportDefaultMime
		}
		data := entries[name]
		items = append(items, models.ImportItem{
			Name:    name,
			Success: true,
			Data: &models.ImportedFile{
				Filename: name,
				Mime:     mime,
				Data:     data,
				Size:     int64(len(data)),
			},
		})
	}
	if progress != nil {
		progress(len(names), len(names), "")
	}
	return items, nil
}

// ImportFileInput is one raw item handed to ImportFiles.
type ImportFileInput struct {
	Name string
	Data []byte
	Type string
}

// ImportFiles shapes loose files into import items, mirroring ImportZip
// but taking MIME types from each item instead of a sidecar.
func (e *Engine) ImportFiles(ctx context.Context, inputs []ImportFileInput, progress models.Progress) ([]models.ImportItem, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}

	items := make([]models.ImportItem, 0, len(inputs))
	for i, in := range inputs {
		if progress != nil {
			progress(i, len(inputs), in.Name)
		}
		if in.Name == "" {
			items = append(items, models.ImportItem{Name: in.Name, Error: "missing name"})
			continue
		}
		mime := in.Type
		if mime == "" {
			mime = models.ImportDefaultMime
		}
		items = append(items, models.ImportItem{
			Name:    in.Name,
			Success: true,
			Data: &models.ImportedFile{
				Filename: in.Name,
				Mime:     mime,
				Data:     in.Data,
				Size:     int64(len(in.Data)),
			},
		})
	}
	if progress != nil {
		progress(len(inputs), len(inputs), "")
	}
	return items, nil
}
