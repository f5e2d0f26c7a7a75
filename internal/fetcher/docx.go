package fetcher

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// DOCXText returns the paragraphs of word/document.xml, one per line.
// Table cells in a row are joined with tabs.
func DOCXText(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", eris.Wrap(err, "docx: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrap(err, "docx: open document.xml")
		}
		defer rc.Close() //nolint:errcheck
		return docxBodyText(rc)
	}
	return "", eris.New("docx: word/document.xml not found")
}

func docxBodyText(r io.Reader) (string, error) {
	dec := newXMLDecoder(r)

	var (
		lines  []string
		para   strings.Builder
		cell   []string // paragraphs of the current table cell
		row    []string // cells of the current table row
		depth  int      // table nesting
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "docx: read xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				switch {
				case text == "":
				case depth > 0:
					cell = append(cell, text)
				default:
					lines = append(lines, text)
				}
			case "tc":
				row = append(row, strings.Join(cell, " "))
				cell = cell[:0]
			case "tr":
				if strings.TrimSpace(strings.Join(row, "")) != "" {
					lines = append(lines, strings.Join(row, "\t"))
				}
				row = row[:0]
			case "tbl":
				depth--
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
