package fetcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind is a document format recognized by ExtractText.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindXLSX    Kind = "xlsx"
	KindDOC     Kind = "doc"
	KindXLS     Kind = "xls"
	KindZIP     Kind = "zip"
	KindUnknown Kind = "unknown"
)

// Extension returns the file extension for k, ".bin" for unknown.
func (k Kind) Extension() string {
	if k == KindUnknown || k == "" {
		return ".bin"
	}
	return "." + string(k)
}

// ErrUnsupported is returned for formats without a text extractor.
var ErrUnsupported = eris.New("fetcher: unsupported document type")

var (
	pdfMagic = []byte("%PDF")
	oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	zipMagic = [][]byte{{'P', 'K', 3, 4}, {'P', 'K', 5, 6}, {'P', 'K', 7, 8}}

	// "Workbook" as UTF-16LE, the stream name of an Excel OLE file.
	oleWorkbook = []byte{'W', 0, 'o', 0, 'r', 0, 'k', 0, 'b', 0, 'o', 0, 'o', 0, 'k', 0}
)

// DetectKind classifies content by its leading magic bytes. Zip-based
// formats are reported as KindZIP; DetectFileKind looks inside the archive.
func DetectKind(head []byte) Kind {
	switch {
	case bytes.HasPrefix(head, pdfMagic):
		return KindPDF
	case bytes.HasPrefix(head, oleMagic):
		return KindDOC
	}
	for _, m := range zipMagic {
		if bytes.HasPrefix(head, m) {
			return KindZIP
		}
	}
	return KindUnknown
}

// DetectFileKind classifies a file by signature, falling back to its
// extension when the signature is unknown.
func DetectFileKind(path string) (Kind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KindUnknown, eris.Wrapf(err, "fetcher: read %s", path)
	}
	return detectFileKind(path, data), nil
}

func detectFileKind(path string, data []byte) Kind {
	switch DetectKind(data) {
	case KindPDF:
		return KindPDF
	case KindDOC:
		if bytes.Contains(data, oleWorkbook) {
			return KindXLS
		}
		return KindDOC
	case KindZIP:
		names, err := zipNames(path)
		if err != nil {
			return KindZIP
		}
		for _, n := range names {
			if strings.HasPrefix(n, "word/") {
				return KindDOCX
			}
		}
		for _, n := range names {
			if strings.HasPrefix(n, "xl/") {
				return KindXLSX
			}
		}
		return KindZIP
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".xlsx", ".xlsm":
		return KindXLSX
	case ".xls":
		return KindXLS
	case ".doc":
		return KindDOC
	case ".zip":
		return KindZIP
	}
	return KindUnknown
}

// maxArchiveDepth bounds recursion into archives nested in archives.
const maxArchiveDepth = 2

// ExtractText returns the plain text of a document file. Archives are
// unpacked into a temporary directory and each inner file is extracted
// under a "=== Файл внутри архива: name ===" heading.
func ExtractText(ctx context.Context, path string) (string, error) {
	return extractText(ctx, path, 0)
}

func extractText(ctx context.Context, path string, depth int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "fetcher: extract text")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: read %s", path)
	}

	switch kind := detectFileKind(path, data); kind {
	case KindPDF:
		return PDFText(path)
	case KindDOCX:
		return DOCXText(path)
	case KindXLSX:
		return XLSXText(path)
	case KindDOC:
		return legacyDocText(data), nil
	case KindZIP:
		if depth >= maxArchiveDepth {
			return "", eris.Wrapf(ErrUnsupported, "nested archive %s", filepath.Base(path))
		}
		return archiveText(ctx, path, depth)
	default:
		return "", eris.Wrapf(ErrUnsupported, "%s (%s)", filepath.Base(path), kind)
	}
}

func archiveText(ctx context.Context, path string, depth int) (string, error) {
	dir, err := os.MkdirTemp("", "zakupki-zip-")
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	files, err := ExtractZIP(path, dir)
	if err != nil {
		return "", err
	}

	var chunks []string
	for _, f := range files {
		text, err := extractText(ctx, f, depth+1)
		if err != nil {
			zap.L().Debug("fetcher: skipping archive entry", zap.String("file", f), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, "=== Файл внутри архива: "+filepath.Base(f)+" ===\n"+text)
	}
	return strings.Join(chunks, "\n\n"), nil
}
