// Package htmlrules reads phases and rules out of the legacy static
// Simonini-isms page, where every phase is a <section class="section">.
package htmlrules

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxDerivedCode is the longest phase code derived from a section id.
const maxDerivedCode = 20

var titleRe = regexp.MustCompile(`^Phase\s+(\d+-\d+):\s*(.+)`)

// Phase is one section of the page.
type Phase struct {
	Code        string
	Name        string
	Description *string
	SortOrder   int
	Rules       []Rule
}

// Rule is a list item of a section.
type Rule struct {
	Number int
	Text   string
	HTML   string
}

// Parse reads the page and returns its sections in document order,
// including sections without rules.
//
// A title of the form "Phase 30-100: Framing" gives the phase code and
// name. Other sections take their code from the element id (dashes become
// underscores, at most 20 characters) or "section_<index>". Rules are the
// direct items of the first <ol>, numbered by position; a section without
// ordered rules uses the direct items of all its <ul> lists instead.
func Parse(r io.Reader) ([]Phase, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var phases []Phase
	for idx, section := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Section && hasClass(n, "section")
	}) {
		p, err := parseSection(section, idx)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, nil
}

func parseSection(section *html.Node, idx int) (Phase, error) {
	p := Phase{SortOrder: idx}

	var title string
	if el := findFirst(section, func(n *html.Node) bool { return hasClass(n, "section-title") }); el != nil {
		title = textOf(el)
	}

	if m := titleRe.FindStringSubmatch(title); m != nil {
		p.Code, p.Name = m[1], m[2]
	} else {
		if id := attr(section, "id"); id != "" {
			p.Code = strings.ReplaceAll(id, "-", "_")
			if r := []rune(p.Code); len(r) > maxDerivedCode {
				p.Code = string(r[:maxDerivedCode])
			}
		} else {
			p.Code = fmt.Sprintf("section_%d", idx)
		}
		p.Name = title
		if p.Name == "" {
			p.Name = fmt.Sprintf("Section %d", idx+1)
		}
	}

	if card := findFirst(section, func(n *html.Node) bool { return hasClass(n, "detail-card") }); card != nil {
		para := findFirst(card, isElement(atom.P))
		if para != nil && findFirst(card, isElement(atom.Ol)) == nil {
			desc := textOf(para)
			p.Description = &desc
		}
	}

	if ol := findFirst(section, isElement(atom.Ol)); ol != nil {
		for i, li := range children(ol, atom.Li) {
			text := textOf(li)
			if text == "" {
				continue
			}
			rendered, err := render(li)
			if err != nil {
				return Phase{}, err
			}
			p.Rules = append(p.Rules, Rule{Number: i + 1, Text: text, HTML: rendered})
		}
	}

	if len(p.Rules) == 0 {
		number := 1
		for _, ul := range findAll(section, isElement(atom.Ul)) {
			for _, li := range children(ul, atom.Li) {
				text := textOf(li)
				if text == "" {
					continue
				}
				rendered, err := render(li)
				if err != nil {
					return Phase{}, err
				}
				p.Rules = append(p.Rules, Rule{Number: number, Text: text, HTML: rendered})
				number++
			}
		}
	}

	return p, nil
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.DataAtom == a }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findFirst returns the first descendant of n (excluding n) matching match,
// in document order.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant of n matching match, in document order.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			out = append(out, c)
		}
		out = append(out, findAll(c, match)...)
	}
	return out
}

// children returns the direct element children of n with the given atom.
func children(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

// textOf joins the trimmed text nodes under n with single spaces.
func textOf(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render rule html: %w", err)
	}
	return buf.String(), nil
}
