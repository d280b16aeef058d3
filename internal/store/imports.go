package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SpecImport is a parsed phase spec document ready to be written.
type SpecImport struct {
	PhaseCode      string
	PhaseName      string
	FullTitle      string
	JobTreadFileID string
	JobTreadURL    string
	FileSize       *int64
	PageCount      int
	Summary        string
	Sections       []SpecImportSection
}

// SpecImportSection is a named group of items in import order.
type SpecImportSection struct {
	Name  string
	Items []SpecImportItem
}

// SpecImportItem is a numbered requirement with its rendered HTML.
type SpecImportItem struct {
	Number string
	Text   string
	HTML   string
}

// unsortedSpecOrder places documents whose phase code has no numeric form
// after every numbered phase.
const unsortedSpecOrder = 999999999

// specSortOrder returns the digits of a phase code as a number. Codes that
// are not dash-separated digits get unsortedSpecOrder and an error.
func specSortOrder(code string) (int, error) {
	n, err := strconv.Atoi(strings.ReplaceAll(code, "-", ""))
	if err != nil {
		return unsortedSpecOrder, fmt.Errorf("sort order of phase code %q: %w", code, err)
	}
	return n, nil
}

// ImportSpecDocument upserts a document by phase code and replaces all of its
// sections and items in one transaction. Replacing sections drops the
// bookmarks and notes attached to the old items. New documents are sorted by
// the digits of their phase code (30-100 sorts as 30100); other codes sort
// last. Returns the document id and the number of items written.
func (s *Store) ImportSpecDocument(ctx context.Context, doc SpecImport) (int64, int, error) {
	var documentID int64
	var items int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		err := tx.QueryRowContext(ctx, `
			SELECT document_id FROM isms_spec_documents WHERE phase_code = ?
		`, doc.PhaseCode).Scan(&documentID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE isms_spec_documents
				SET phase_name = ?, full_title = ?, jobtread_file_id = ?, jobtread_url = ?,
					file_size = ?, page_count = ?, summary = ?, updated_at = ?
				WHERE document_id = ?
			`, doc.PhaseName, doc.FullTitle, doc.JobTreadFileID, doc.JobTreadURL,
				doc.FileSize, doc.PageCount, doc.Summary, now, documentID); err != nil {
				return fmt.Errorf("update document: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM isms_spec_sections WHERE document_id = ?
			`, documentID); err != nil {
				return fmt.Errorf("clear sections: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			sortOrder, err := specSortOrder(doc.PhaseCode)
			if err != nil {
				s.logger.Warn("phase code is not numeric; sorting document last",
					zap.String("phase_code", doc.PhaseCode), zap.Error(err))
			}
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO isms_spec_documents
				(phase_code, phase_name, full_title, jobtread_file_id, jobtread_url,
				 file_size, page_count, summary, sort_order, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING document_id
			`, doc.PhaseCode, doc.PhaseName, doc.FullTitle, doc.JobTreadFileID, doc.JobTreadURL,
				doc.FileSize, doc.PageCount, doc.Summary, sortOrder, now, now).Scan(&documentID); err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
		default:
			return fmt.Errorf("find document: %w", err)
		}

		sectionStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO isms_spec_sections (document_id, section_name, section_order)
			VALUES (?, ?, ?)
			RETURNING section_id
		`)
		if err != nil {
			return err
		}
		defer sectionStmt.Close()

		itemStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO isms_spec_items (section_id, item_number, item_text, item_html)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer itemStmt.Close()

		for idx, sec := range doc.Sections {
			var sectionID int64
			if err := sectionStmt.QueryRowContext(ctx, documentID, sec.Name, idx+1).Scan(&sectionID); err != nil {
				return fmt.Errorf("insert section %q: %w", sec.Name, err)
			}
			for _, item := range sec.Items {
				if _, err := itemStmt.ExecContext(ctx, sectionID, item.Number, item.Text, item.HTML); err != nil {
					return fmt.Errorf("insert item %s: %w", item.Number, err)
				}
				items++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, translate("import spec document", err)
	}

	s.logger.Debug("imported spec document",
		zap.String("phase_code", doc.PhaseCode),
		zap.Int64("document_id", documentID),
		zap.Int("items", items))
	return documentID, items, nil
}

// FigureRef is a figure referenced from a page of a spec document.
type FigureRef struct {
	Code string
	Page int
}

// ReplaceSpecFigures replaces the figure references recorded for a document.
// Figure codes are unique across documents; a code seen again moves to the
// latest document that references it.
func (s *Store) ReplaceSpecFigures(ctx context.Context, documentID int64, phaseCode string, figures []FigureRef) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM isms_spec_figures WHERE document_id = ?
		`, documentID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO isms_spec_figures (figure_code, phase_code, document_id, page_number)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (figure_code) DO UPDATE SET
				phase_code = excluded.phase_code,
				document_id = excluded.document_id,
				page_number = excluded.page_number
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range figures {
			if _, err := stmt.ExecContext(ctx, f.Code, phaseCode, documentID, f.Page); err != nil {
				return fmt.Errorf("insert figure %s: %w", f.Code, err)
			}
		}
		return nil
	})
	return translate("replace spec figures", err)
}

// ListSpecFigures returns figure references ordered by phase code, page and
// figure code. A non-empty phaseCode limits the result to that phase.
func (s *Store) ListSpecFigures(ctx context.Context, phaseCode string) ([]SpecFigure, error) {
	query := `
		SELECT figure_id, figure_code, phase_code, document_id, page_number, image_path
		FROM isms_spec_figures`
	var args []any
	if phaseCode != "" {
		query += ` WHERE phase_code = ?`
		args = append(args, phaseCode)
	}
	query += ` ORDER BY phase_code, page_number, figure_code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spec figures: %w", err)
	}
	defer rows.Close()

	figures := []SpecFigure{}
	for rows.Next() {
		var f SpecFigure
		if err := rows.Scan(&f.FigureID, &f.FigureCode, &f.PhaseCode, &f.DocumentID, &f.PageNumber, &f.ImagePath); err != nil {
			return nil, fmt.Errorf("scan spec figure: %w", err)
		}
		figures = append(figures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec figures: %w", err)
	}
	return figures, nil
}

// PhaseImport is a phase and its numbered rules parsed from legacy HTML.
type PhaseImport struct {
	PhaseCode   string
	PhaseName   string
	Description *string
	SortOrder   int
	Rules       []RuleImport
}

// RuleImport is one rule of a PhaseImport.
type RuleImport struct {
	Number int
	Text   string
	HTML   string
}

// ImportPhases upserts phases by code and their rules by (phase, number) in
// one transaction. Phases without rules are skipped. Returns the number of
// phases and rules written.
func (s *Store) ImportPhases(ctx context.Context, phases []PhaseImport, userID int64) (int, int, error) {
	var phaseCount, ruleCount int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		for _, p := range phases {
			if len(p.Rules) == 0 {
				s.logger.Debug("skipping empty phase", zap.String("phase_code", p.PhaseCode))
				continue
			}

			var phaseID int64
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO isms_phases
				(phase_code, phase_name, description, sort_order, created_by, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (phase_code) DO UPDATE SET
					phase_name = excluded.phase_name,
					description = excluded.description,
					sort_order = excluded.sort_order,
					updated_at = excluded.updated_at
				RETURNING phase_id
			`, p.PhaseCode, p.PhaseName, p.Description, p.SortOrder, userID, now, now).Scan(&phaseID); err != nil {
				return fmt.Errorf("upsert phase %s: %w", p.PhaseCode, err)
			}
			phaseCount++

			for _, r := range p.Rules {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO isms_rules
					(phase_id, rule_number, rule_text, rule_html, created_by, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT (phase_id, rule_number) DO UPDATE SET
						rule_text = excluded.rule_text,
						rule_html = excluded.rule_html,
						updated_at = excluded.updated_at
				`, phaseID, r.Number, r.Text, r.HTML, userID, now, now); err != nil {
					return fmt.Errorf("upsert rule %s/%d: %w", p.PhaseCode, r.Number, err)
				}
				ruleCount++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, translate("import phases", err)
	}
	return phaseCount, ruleCount, nil
}

// Counts summarizes the active content of the database.
type Counts struct {
	Phases        int `json:"phases"`
	Rules         int `json:"rules"`
	SpecDocuments int `json:"spec_documents"`
	SpecItems     int `json:"spec_items"`
	SpecFigures   int `json:"spec_figures"`
}

// Counts returns the number of active phases, rules, spec documents, spec
// items and indexed figures.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM isms_phases WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM isms_rules WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM isms_spec_documents WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM isms_spec_items WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM isms_spec_figures)
	`).Scan(&c.Phases, &c.Rules, &c.SpecDocuments, &c.SpecItems, &c.SpecFigures)
	if err != nil {
		return nil, fmt.Errorf("count content: %w", err)
	}
	return &c, nil
}
