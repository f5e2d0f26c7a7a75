package fetcher

import (
	"encoding/xml"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-zA-Z0-9_-]+)`)

// DecodeHTML converts an HTML body to UTF-8. The charset comes from the
// Content-Type header, then a <meta> tag; bodies that are not valid UTF-8
// with no declared charset are read as windows-1251.
func DecodeHTML(body []byte, contentType string) (string, error) {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = params["charset"]
	}
	if charset == "" {
		head := body[:min(len(body), 4096)]
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			charset = string(m[1])
		}
	}
	if charset == "" {
		if utf8.Valid(body) {
			return string(body), nil
		}
		charset = "windows-1251"
	}
	return decodeCharset(body, charset)
}

func decodeCharset(body []byte, charset string) (string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	name, _ := htmlindex.Name(enc)
	if strings.EqualFold(name, "utf-8") {
		return string(body), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: decode %s", charset)
	}
	return string(out), nil
}

// newXMLDecoder returns an xml.Decoder that understands any charset known
// to the HTML encoding index.
func newXMLDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	d.Strict = false
	return d
}
