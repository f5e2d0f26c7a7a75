package portal

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zakupki-realty/internal/fetcher"
)

// minPrintFormChars rejects print forms that are only page chrome.
const minPrintFormChars = 100

// Attachment is a document attached to a notice.
type Attachment struct {
	Name string
	URL  string
}

// PrintFormURL returns the printable notice page.
func (c *Client) PrintFormURL(regNumber string) string {
	return c.opts.BaseURL + "/epz/order/notice/printForm/view.html?regNumber=" + url.QueryEscape(regNumber)
}

// DocumentsURL returns the notice's attachment list.
func (c *Client) DocumentsURL(regNumber string) string {
	return c.opts.BaseURL + "/epz/order/notice/zk20/view/documents.html?regNumber=" + url.QueryEscape(regNumber)
}

// FetchDocuments builds the combined text of a notice: the print form
// followed by the text of every attachment that could be read. Load
// failures of individual parts are logged and skipped; an empty result
// means nothing was readable.
func (c *Client) FetchDocuments(ctx context.Context, regNumber string) (string, error) {
	log := zap.L().With(zap.String("reg_number", regNumber))

	var parts []string
	if text, err := c.PrintForm(ctx, regNumber); err != nil {
		log.Debug("portal: print form unavailable", zap.Error(err))
	} else if text != "" {
		parts = append(parts, "=== ПЕЧАТНАЯ ФОРМА ===\n"+text+"\n")
	}

	docs, err := c.Attachments(ctx, regNumber)
	if err != nil {
		log.Warn("portal: attachment list unavailable", zap.Error(err))
	}
	if len(docs) > 0 {
		texts, err := c.attachmentTexts(ctx, regNumber, docs)
		if err != nil {
			return "", err
		}
		for i, text := range texts {
			if strings.TrimSpace(text) != "" {
				parts = append(parts, "=== Документ: "+docs[i].Name+" ===\n"+text+"\n")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "portal: fetch documents")
	}
	if len(parts) == 0 {
		log.Warn("portal: no readable text")
	}
	return strings.Join(parts, "\n"), nil
}

// PrintForm returns the visible text of the print form, or "" when the page
// carries too little text to be a notice.
func (c *Client) PrintForm(ctx context.Context, regNumber string) (string, error) {
	doc, err := c.fetchPage(ctx, "print_form", c.PrintFormURL(regNumber))
	if err != nil {
		return "", eris.Wrapf(err, "portal: print form %s", regNumber)
	}
	text := textLines(doc)
	if len([]rune(text)) <= minPrintFormChars {
		return "", nil
	}
	return text, nil
}

// Attachments lists the downloadable documents of a notice.
func (c *Client) Attachments(ctx context.Context, regNumber string) ([]Attachment, error) {
	doc, err := c.fetchPage(ctx, "documents", c.DocumentsURL(regNumber))
	if err != nil {
		return nil, eris.Wrapf(err, "portal: documents %s", regNumber)
	}
	return parseAttachments(doc, c.opts.BaseURL), nil
}

func parseAttachments(doc *html.Node, baseURL string) []Attachment {
	var out []Attachment
	for _, block := range findAll(doc, element("div", "attachment")) {
		name := textContent(findFirst(block, element("span", "section__value")))
		if name == "" {
			continue
		}
		link := findFirst(block, func(n *html.Node) bool {
			return element("a")(n) && strings.Contains(attr(n, "href"), "uid=")
		})
		if link == nil {
			continue
		}
		uid := queryParam(attr(link, "href"), "uid")
		if uid == "" {
			continue
		}
		out = append(out, Attachment{
			Name: name,
			URL:  baseURL + "/44fz/filestore/public/1.0/download/priz/file.html?uid=" + url.QueryEscape(uid),
		})
	}
	return out
}

// attachmentTexts downloads and reads attachments in parallel. The result
// is index-aligned with docs; unreadable documents yield "".
func (c *Client) attachmentTexts(ctx context.Context, regNumber string, docs []Attachment) ([]string, error) {
	dir := filepath.Join(c.RecordDir(regNumber), "documents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "portal: create %s", dir)
	}

	texts := make([]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.DocWorkers)
	for i, doc := range docs {
		g.Go(func() error {
			text, err := c.attachmentText(gctx, dir, doc)
			if err != nil {
				zap.L().Warn("portal: attachment skipped",
					zap.String("reg_number", regNumber),
					zap.String("document", doc.Name),
					zap.Error(err),
				)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait()
	return texts, nil
}

func (c *Client) attachmentText(ctx context.Context, dir string, doc Attachment) (string, error) {
	path, err := c.download(ctx, dir, doc)
	if err != nil {
		return "", err
	}
	return fetcher.ExtractText(ctx, path)
}

// download saves an attachment under a name derived from its title, with
// the extension taken from the content signature.
func (c *Client) download(ctx context.Context, dir string, doc Attachment) (string, error) {
	tmp := filepath.Join(dir, fileName(doc.Name, fetcher.KindUnknown))
	if _, err := c.fetcher.DownloadToFile(ctx, doc.URL, tmp); err != nil {
		return "", eris.Wrapf(err, "portal: download %q", doc.Name)
	}

	kind, err := fetcher.DetectFileKind(tmp)
	if err != nil {
		return "", err
	}
	if kind == fetcher.KindUnknown {
		return tmp, nil
	}
	path := filepath.Join(dir, fileName(doc.Name, kind))
	if err := os.Rename(tmp, path); err != nil {
		return "", eris.Wrapf(err, "portal: rename %q", doc.Name)
	}
	return path, nil
}

var unsafeNameRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// fileName keeps up to 50 safe characters of the title plus a short hash so
// documents with similar titles do not collide.
func fileName(name string, kind fetcher.Kind) string {
	safe := []rune(strings.TrimSpace(unsafeNameRe.ReplaceAllString(name, "")))
	if len(safe) > 50 {
		safe = safe[:50]
	}
	sum := md5.Sum([]byte(name))
	return string(safe) + "_" + hex.EncodeToString(sum[:])[:8] + kind.Extension()
}

// RecordDir is where a record's documents are stored until Cleanup.
func (c *Client) RecordDir(regNumber string) string {
	return filepath.Join(c.opts.DocsDir, filepath.Base(regNumber))
}

// Cleanup removes the downloaded documents of a record.
func (c *Client) Cleanup(regNumber string) error {
	return eris.Wrapf(os.RemoveAll(c.RecordDir(regNumber)), "portal: cleanup %s", regNumber)
}
