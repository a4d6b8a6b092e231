package codec

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ZipPack builds a ZIP archive from a path → content map. Entries are
// deflated at CompressionLevel and written in sorted path order so the
// same map always produces the same archive layout. Paths keep their
// full relative form (slashes preserved).
func ZipPack(entries map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, CompressionLevel)
	})

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   p,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("zip create %q: %w", p, err)
		}
		if _, err := w.Write(entries[p]); err != nil {
			return nil, fmt.Errorf("zip write %q: %w", p, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

// ZipUnpack reads a ZIP archive into a path → content map. Directory
// entries are skipped; file contents round-trip binary-exact.
func ZipUnpack(archive []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("zip open: %w", err)
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip open %q: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip read %q: %w", f.Name, err)
		}
		entries[f.Name] = data
	}
	return entries, nil
}
