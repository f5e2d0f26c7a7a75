package listing

import (
	"regexp"
	"strings"
)

var (
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	mdDecorRe    = regexp.MustCompile(`^[#>*\-\s]+|\*\*|__`)
	headlineRe   = regexp.MustCompile(`(?i)\d+\s*-?\s*к(омн|\.)|студи|квартир|комнат`)
	headlineArea = regexp.MustCompile(`(?i)м²|м2|кв\.?\s*м`)
)

// textCards segments readable page text into cards. A card starts at a
// headline line (room count or apartment wording together with an area) and
// runs to the next headline. Text without headlines is split on blank lines.
func textCards(text string) []card {
	var (
		lines []string
		links [][]string
	)
	for _, raw := range strings.Split(text, "\n") {
		line, hrefs := stripMarkdown(raw)
		lines = append(lines, line)
		links = append(links, hrefs)
	}

	var out []card
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		c := card{}
		var body []string
		for i := start; i < end; i++ {
			if lines[i] != "" {
				body = append(body, lines[i])
			}
			c.Links = append(c.Links, links[i]...)
		}
		c.Text = strings.Join(body, "\n")
		c.Title = firstLine(c.Text)
		out = append(out, c)
	}
	for i, line := range lines {
		if isHeadlineText(line) {
			flush(i)
			start = i
		}
	}
	flush(len(lines))
	if len(out) > 0 {
		return out
	}
	return paragraphCards(lines, links)
}

func isHeadlineText(line string) bool {
	return headlineRe.MatchString(line) && headlineArea.MatchString(line)
}

func paragraphCards(lines []string, links [][]string) []card {
	var (
		out  []card
		cur  card
		body []string
	)
	flush := func() {
		if len(body) > 0 {
			cur.Text = strings.Join(body, "\n")
			cur.Title = body[0]
			out = append(out, cur)
		}
		cur, body = card{}, nil
	}
	for i, line := range lines {
		if line == "" {
			flush()
			continue
		}
		body = append(body, line)
		cur.Links = append(cur.Links, links[i]...)
	}
	flush()
	return out
}

// stripMarkdown reduces a markdown line to its visible text and returns the
// link targets it carried.
func stripMarkdown(line string) (string, []string) {
	line = mdImageRe.ReplaceAllString(line, "")
	var hrefs []string
	for _, m := range mdLinkRe.FindAllStringSubmatch(line, -1) {
		hrefs = append(hrefs, m[2])
	}
	line = mdLinkRe.ReplaceAllString(line, "$1")
	line = mdDecorRe.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), " "), hrefs
}
