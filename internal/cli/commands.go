package cli

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/dmitrijs2005/hashfs/internal/vault/engine"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
)

// Unlock prompts for the passphrase and opens the vault it addresses.
func (a *App) Unlock(ctx context.Context) error {
	pw, err := GetPassphrase(os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	defer common.WipeByteArray(pw)

	res, err := a.dispatcher.Init(ctx, string(pw))
	if err != nil {
		log.Println(err.Error())
		return err
	}

	a.unlocked = true
	a.fingerprint = res.Fingerprint

	if ri := res.RecoveryInfo; ri != nil {
		fmt.Println("Vault required recovery:")
		if ri.DatabaseRebuilt {
			fmt.Println("  - storage was rebuilt")
		}
		if ri.MetadataRebuilt {
			fmt.Printf("  - metadata was rebuilt, %d file(s) recovered\n", len(ri.RecoveredFiles))
		}
	}
	fmt.Printf("Vault unlocked (%s), %d file(s)\n", shortHex(res.Fingerprint.Base), len(res.Files))
	return nil
}

// List prints the file table.
func (a *App) List(ctx context.Context) error {
	files, err := a.dispatcher.Files(ctx)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if len(files) == 0 {
		fmt.Println("Vault is empty")
		return nil
	}
	for _, f := range files {
		fmt.Printf("%-40s v%-4d %8d B  %s  %s\n",
			f.Name, f.HeadVersion, f.LastSize, f.Mime, formatTS(f.LastModified))
	}
	return nil
}

// Put stores a local file into the vault, optionally under a different
// name. MIME is guessed from the extension.
func (a *App) Put(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = models.ImportDefaultMime
	}

	res, err := a.dispatcher.Save(ctx, name, data, mimeType, engine.SaveOptions{})
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if res.Unchanged {
		fmt.Printf("%s unchanged\n", name)
	} else {
		fmt.Printf("%s saved as version %d\n", name, res.Version)
	}
	return nil
}

// Cat prints a file's content; an optional version argument selects a
// historical one.
func (a *App) Cat(ctx context.Context, name, versionArg string) error {
	var version *int64
	if versionArg != "" {
		v, err := strconv.ParseInt(versionArg, 10, 64)
		if err != nil {
			log.Printf("invalid version %q\n", versionArg)
			return err
		}
		version = &v
	}

	res, err := a.dispatcher.Load(ctx, name, version, false)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if res.Recovered {
		fmt.Printf("(head was corrupt; recovered version %d)\n", res.Version)
	}
	os.Stdout.Write(res.Data)
	if n := len(res.Data); n > 0 && res.Data[n-1] != '\n' {
		fmt.Println()
	}
	return nil
}

// History lists a file's retained versions.
func (a *App) History(ctx context.Context, name string) error {
	versions, err := a.dispatcher.History(ctx, name)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	for _, v := range versions {
		fmt.Printf("v%-4d %8d B  %s  %s\n",
			v.Version, v.Size, formatTS(v.TS), shortHex(v.Hash))
	}
	return nil
}

// Remove deletes a file and its whole history.
func (a *App) Remove(ctx context.Context, name string) error {
	files, err := a.dispatcher.Delete(ctx, name)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Printf("%s removed, %d file(s) remain\n", name, len(files))
	return nil
}

// Move renames a file.
func (a *App) Move(ctx context.Context, oldName, newName string) error {
	if _, err := a.dispatcher.Rename(ctx, oldName, newName); err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Printf("%s -> %s\n", oldName, newName)
	return nil
}

// Export writes the vault as a ZIP archive to path.
func (a *App) Export(ctx context.Context, path string) error {
	archive, err := a.dispatcher.ExportZip(ctx, "")
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if err := os.WriteFile(path, archive, 0o600); err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Printf("Exported %d bytes to %s\n", len(archive), path)
	return nil
}

// Import reads a ZIP archive and saves every item through the normal
// write pipeline, so unchanged content deduplicates.
func (a *App) Import(ctx context.Context, path string) error {
	archive, err := os.ReadFile(path)
	if err != nil {
		log.Println(err.Error())
		return err
	}

	items, err := a.dispatcher.ImportZip(ctx, archive, "")
	if err != nil {
		log.Println(err.Error())
		return err
	}

	imported := 0
	for _, item := range items {
		if !item.Success {
			fmt.Printf("skipped %s: %s\n", item.Name, item.Error)
			continue
		}
		if _, err := a.dispatcher.Save(ctx, item.Data.Filename, item.Data.Data, item.Data.Mime, engine.SaveOptions{}); err != nil {
			fmt.Printf("failed %s: %v\n", item.Name, err)
			continue
		}
		imported++
	}
	fmt.Printf("Imported %d of %d item(s)\n", imported, len(items))
	return nil
}

// Check runs the integrity check and prints the report.
func (a *App) Check(ctx context.Context) error {
	report, err := a.dispatcher.IntegrityCheck(ctx, "")
	if err != nil {
		log.Println(err.Error())
		return err
	}

	for _, issue := range report.Issues {
		if issue.Version != 0 {
			fmt.Printf("issue: %s v%d: %s\n", issue.File, issue.Version, issue.Detail)
		} else {
			fmt.Printf("issue: %s: %s\n", issue.File, issue.Detail)
		}
	}
	for _, name := range report.FilesRemoved {
		fmt.Printf("removed unrecoverable file: %s\n", name)
	}
	fmt.Printf("Integrity check done: %d issue(s), %d file(s) removed, %d orphan(s) collected\n",
		len(report.Issues), len(report.FilesRemoved), report.OrphansRemoved)
	return nil
}

func shortHex(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func formatTS(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
