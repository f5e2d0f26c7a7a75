package fetcher

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDFText extracts the plain text of every page, pages separated by
// newlines. Pages the parser cannot handle are skipped.
func PDFText(path string) (text string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", eris.Wrap(err, "pdf: open")
	}
	defer f.Close() //nolint:errcheck

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		pages = append(pages, pageText(r, i, path))
	}
	return strings.Join(pages, "\n"), nil
}

// pageText recovers from parser panics on malformed content streams.
func pageText(r *pdf.Reader, n int, path string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Debug("pdf: page skipped", zap.String("path", path), zap.Int("page", n), zap.Any("panic", rec))
			out = ""
		}
	}()
	p := r.Page(n)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
