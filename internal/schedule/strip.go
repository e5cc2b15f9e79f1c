package schedule

import (
	"strings"

	"golang.org/x/net/html"
)

// stripHTML reduces an HTML fragment to its visible text: tags are removed,
// text nodes are joined, and all whitespace runs (including newlines)
// collapse to single spaces. The html package tolerates arbitrarily broken
// markup, so this never fails; worst case the input comes back as-is minus
// angle-bracketed noise.
func stripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		// html.Parse only fails on reader errors, which strings.Reader
		// cannot produce. Fall back to whitespace collapsing regardless.
		return collapseWhitespace(fragment)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapseWhitespace(strings.Join(parts, " "))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
