package specdoc

import "regexp"

var figureRe = regexp.MustCompile(`(?i)Fig\.?\s*(\d{2}-\d{3}-\d{2}-\d{3})`)

// Figure is a figure code and the first page (1-based) that references it.
type Figure struct {
	Code string `json:"code"`
	Page int    `json:"page"`
}

// FigureRefs finds "Fig. 30-500-01-001" references across pages in order of
// first appearance.
func FigureRefs(pages []string) []Figure {
	seen := make(map[string]bool)
	var figures []Figure
	for i, page := range pages {
		for _, m := range figureRe.FindAllStringSubmatch(page, -1) {
			code := m[1]
			if seen[code] {
				continue
			}
			seen[code] = true
			figures = append(figures, Figure{Code: code, Page: i + 1})
		}
	}
	return figures
}
