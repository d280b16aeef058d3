package specdoc

import (
	"fmt"
	"strings"
)

// Document is a fully parsed phase specification.
type Document struct {
	PhaseCode string    `json:"phase_code"`
	PhaseName string    `json:"phase_name"`
	FullTitle string    `json:"full_title"`
	Summary   string    `json:"summary"`
	PageCount int       `json:"page_count"`
	Sections  []Section `json:"sections"`
	Figures   []Figure  `json:"figures,omitempty"`
}

// Parse builds a Document from a file name and the text of each page.
// Returns ErrNoPhaseCode or ErrNoSections when the file cannot be used.
func Parse(fileName string, pages []string) (*Document, error) {
	code, name, ok := ParsePhaseInfo(Normalize(fileName))
	if !ok {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoPhaseCode)
	}

	sections := ParseSections(strings.Join(pages, "\n"))
	if len(sections) == 0 {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoSections)
	}

	return &Document{
		PhaseCode: code,
		PhaseName: name,
		FullTitle: fmt.Sprintf("Phase %s %s", code, name),
		Summary:   Summary(name, sections),
		PageCount: len(pages),
		Sections:  sections,
		Figures:   FigureRefs(pages),
	}, nil
}
