package specdoc

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Section headings recognised at the start of a line. Longer headings come
// first so "Administrative and Contractual Requirements" is not cut short.
var sectionRe = regexp.MustCompile(`(?i)^(?:` + strings.Join([]string{
	`Bids for Work`,
	`Work Requirements`,
	`Administrative and Contractual Requirements`,
	`Administrative Requirements`,
	`Contractual Requirements`,
	`Safety Requirements`,
	`Quality Requirements`,
	`Material Requirements`,
	`Installation Requirements`,
	`Cleanup Requirements`,
}, `|`) + `)`)

var (
	itemRe   = regexp.MustCompile(`^(\d+)\.\s+(.+)`)
	bulletRe = regexp.MustCompile(`^[•\-]\s+(.+)`)
	footerRe = regexp.MustCompile(`^\d+-\d+\s+\w+\s+\d{4}`)
)

var (
	// ErrNoPhaseCode is returned when a file name carries no phase code.
	ErrNoPhaseCode = errors.New("no phase code in file name")

	// ErrNoSections is returned when no section with items was found.
	ErrNoSections = errors.New("no sections found")
)

// Item is a numbered requirement. Bullets under an item are kept on their
// own lines prefixed with "• ".
type Item struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Section is a heading and its items in document order.
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Normalize applies Unicode NFC so composed and decomposed accents compare
// equal.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// ParseSections splits document text into sections and numbered items.
//
// A heading starts a new section. "N. text" starts an item inside a
// section; following lines are joined onto it with single spaces until the
// next item or heading. Bullet lines ("• x" or "- x") become "\n• x" on the
// current item. Blank lines and page footers are skipped, as is anything
// before the first heading. Sections without items are dropped.
func ParseSections(text string) []Section {
	var sections []Section
	var current *Section
	var item *Item

	flush := func() {
		if current != nil && len(current.Items) > 0 {
			sections = append(sections, *current)
		}
	}

	for _, raw := range strings.Split(Normalize(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || footerRe.MatchString(line) {
			continue
		}

		if heading := sectionRe.FindString(line); heading != "" {
			flush()
			current = &Section{Name: heading}
			item = nil
			continue
		}

		if m := itemRe.FindStringSubmatch(line); m != nil {
			if current == nil {
				item = nil
				continue
			}
			current.Items = append(current.Items, Item{Number: m[1], Text: collapse(m[2])})
			item = &current.Items[len(current.Items)-1]
			continue
		}

		if item == nil {
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			item.Text += "\n• " + collapse(m[1])
			continue
		}
		item.Text += " " + collapse(line)
	}
	flush()

	return sections
}

// collapse replaces runs of whitespace with a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CountItems returns the number of items across sections.
func CountItems(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Items)
	}
	return n
}

// Summary describes a document for listings, e.g. "ALARM SYSTEM
// specifications covering 12 requirements across sections: Bids for Work,
// Work Requirements".
func Summary(phaseName string, sections []Section) string {
	summary := fmt.Sprintf("%s specifications covering %d requirements", phaseName, CountItems(sections))
	if len(sections) == 0 {
		return summary
	}

	names := make([]string, 0, 3)
	for i, s := range sections {
		if i == 3 {
			break
		}
		names = append(names, s.Name)
	}
	summary += " across sections: " + strings.Join(names, ", ")
	if len(sections) > 3 {
		summary += fmt.Sprintf(", and %d more", len(sections)-3)
	}
	return summary
}

// ItemHTML renders item text as an escaped paragraph with bullets on their
// own lines.
func ItemHTML(text string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
}
