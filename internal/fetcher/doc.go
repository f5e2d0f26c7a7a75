package fetcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

const minDocRun = 4

// legacyDocText pulls readable text out of a binary Word 97-2003 file.
// Word stores text either as UTF-16LE or in an 8-bit codepage, so both
// readings are tried and the one with more Latin or Cyrillic letters wins.
func legacyDocText(data []byte) string {
	var wide string
	if dec, err := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder().Bytes(data[:len(data)&^1]); err == nil {
		wide = textRuns(string(dec))
	}

	var narrow string
	if dec, err := charmap.Windows1251.NewDecoder().Bytes(data); err == nil {
		narrow = textRuns(string(dec))
	}

	if letterCount(wide) >= letterCount(narrow) {
		return wide
	}
	return narrow
}

// textRuns keeps runs of at least minDocRun document characters that
// contain a letter, one run per line.
func textRuns(s string) string {
	var (
		runs []string
		cur  []rune
	)
	flush := func() {
		if len(cur) >= minDocRun && letterCount(string(cur)) > 0 {
			runs = append(runs, strings.TrimSpace(string(cur)))
		}
		cur = cur[:0]
	}
	for _, r := range s {
		if !isDocRune(r) {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return strings.Join(runs, "\n")
}

func isDocRune(r rune) bool {
	switch {
	case r == '\t' || r == '№' || r == '«' || r == '»' || r == '–' || r == '—':
		return true
	case r >= 0x20 && r < 0x7f:
		return true
	case unicode.Is(unicode.Cyrillic, r):
		return true
	}
	return false
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.In(r, unicode.Latin, unicode.Cyrillic) {
			n++
		}
	}
	return n
}
