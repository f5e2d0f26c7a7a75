package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// maxEntryBytes caps one unpacked attachment.
const maxEntryBytes = 256 << 20

// ExtractZIP unpacks an attachment archive into destDir and returns the
// extracted file paths. Entries escaping destDir or larger than
// maxEntryBytes are rejected.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}
	return extracted, nil
}

// zipNames lists the file entries of an archive with decoded names.
func zipNames(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			names = append(names, entryName(f))
		}
	}
	return names, nil
}

// entryName returns the entry name as UTF-8. Archives made by Windows tools
// without the UTF-8 flag store Cyrillic names in CP866.
func entryName(f *zip.File) string {
	if !f.NonUTF8 || utf8.ValidString(f.Name) {
		return f.Name
	}
	name, err := charmap.CodePage866.NewDecoder().String(f.Name)
	if err != nil {
		return f.Name
	}
	return name
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	name := entryName(f)
	destPath := filepath.Join(destDir, name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	if f.UncompressedSize64 > maxEntryBytes {
		return "", eris.Errorf("zip: entry %q is %d bytes, limit %d", name, f.UncompressedSize64, maxEntryBytes)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open entry %q", name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	// The header size can lie; cap the copy as well.
	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return "", eris.Wrapf(err, "zip: write %q", name)
	}
	if n > maxEntryBytes {
		return "", eris.Errorf("zip: entry %q exceeds %d bytes", name, maxEntryBytes)
	}
	return destPath, nil
}
