package listing

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// card is the raw content of one listing card before field parsing.
type card struct {
	Text    string   // visible text, one block per line
	Title   string   // headline, when the markup marks one
	Address string   // address, when the markup marks one
	Links   []string // hrefs in document order
}

// htmlCards finds listing cards in rendered markup: elements tagged
// data-testid="list-item", else <article> elements.
func htmlCards(doc *html.Node) []card {
	nodes := collect(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "data-testid") == "list-item"
	})
	if len(nodes) == 0 {
		nodes = collect(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.DataAtom == atom.Article
		})
	}

	out := make([]card, 0, len(nodes))
	for _, n := range nodes {
		c := card{Text: innerText(n)}
		if t := headline(n); t != nil {
			c.Title = firstLine(innerText(t))
		}
		if a := first(n, func(n *html.Node) bool {
			return n.Type == html.ElementNode && attr(n, "data-testid") == "address"
		}); a != nil {
			c.Address = strings.Join(strings.Split(innerText(a), "\n"), " ")
		}
		for _, a := range collect(n, func(n *html.Node) bool {
			return n.DataAtom == atom.A && attr(n, "href") != ""
		}) {
			c.Links = append(c.Links, attr(a, "href"))
		}
		out = append(out, c)
	}
	return out
}

// headline returns the card's first h3, else h2, else link.
func headline(n *html.Node) *html.Node {
	for _, a := range []atom.Atom{atom.H3, atom.H2, atom.A} {
		if h := first(n, func(n *html.Node) bool { return n.DataAtom == a }); h != nil {
			return h
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collect returns the outermost nodes matching m, in document order. Cards
// are not searched inside other cards.
func collect(root *html.Node, m func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if m(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func first(root *html.Node, m func(*html.Node) bool) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if m(c) {
				found = c
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Br: true, atom.Dd: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Footer: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Li: true,
	atom.Ol: true, atom.P: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Tr: true, atom.Ul: true,
}

// innerText approximates the browser's innerText: block elements start new
// lines, inline text is joined, blank lines are dropped.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return normalizeLines(b.String())
}

// normalizeLines collapses whitespace within lines and drops empty lines.
func normalizeLines(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	l, _, _ := strings.Cut(s, "\n")
	return l
}
