package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// ListSpecDocuments returns active spec documents with section and item
// counts, ordered by sort order then phase code. A non-empty category keeps
// only documents whose phase code starts with it (e.g. "30").
func (s *Store) ListSpecDocuments(ctx context.Context, category string) ([]SpecDocument, error) {
	query := `
		SELECT
			d.document_id, d.phase_code, d.phase_name, d.full_title,
			d.jobtread_url, d.file_size, d.page_count, d.summary,
			COUNT(DISTINCT sec.section_id) AS section_count,
			COUNT(i.item_id) AS item_count
		FROM isms_spec_documents d
		LEFT JOIN isms_spec_sections sec ON sec.document_id = d.document_id
		LEFT JOIN isms_spec_items i ON i.section_id = sec.section_id
		WHERE d.is_active = TRUE`
	var args []any
	if category != "" {
		query += ` AND d.phase_code LIKE ? ESCAPE '\'`
		args = append(args, prefixPattern(category))
	}
	query += `
		GROUP BY d.document_id
		ORDER BY d.sort_order, d.phase_code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spec documents: %w", err)
	}
	defer rows.Close()

	docs := []SpecDocument{}
	for rows.Next() {
		var d SpecDocument
		var sections, items int
		if err := rows.Scan(
			&d.DocumentID, &d.PhaseCode, &d.PhaseName, &d.FullTitle,
			&d.JobTreadURL, &d.FileSize, &d.PageCount, &d.Summary,
			&sections, &items,
		); err != nil {
			return nil, fmt.Errorf("scan spec document: %w", err)
		}
		d.SectionCount, d.ItemCount = &sections, &items
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec documents: %w", err)
	}
	return docs, nil
}

// GetSpecDocument returns an active document with its active sections and
// items. Items are ordered numerically by item number.
func (s *Store) GetSpecDocument(ctx context.Context, documentID int64) (*SpecDocumentDetail, error) {
	return s.getSpecDocument(ctx, "document_id = ?", documentID)
}

// GetSpecDocumentByCode returns an active document looked up by phase code.
func (s *Store) GetSpecDocumentByCode(ctx context.Context, phaseCode string) (*SpecDocumentDetail, error) {
	return s.getSpecDocument(ctx, "phase_code = ?", phaseCode)
}

func (s *Store) getSpecDocument(ctx context.Context, where string, arg any) (*SpecDocumentDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			document_id, phase_code, phase_name, full_title,
			jobtread_url, file_size, page_count, summary
		FROM isms_spec_documents
		WHERE `+where+` AND is_active = TRUE
	`, arg)

	var d SpecDocumentDetail
	if err := row.Scan(
		&d.DocumentID, &d.PhaseCode, &d.PhaseName, &d.FullTitle,
		&d.JobTreadURL, &d.FileSize, &d.PageCount, &d.Summary,
	); err != nil {
		return nil, translate("get spec document", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			sec.section_id, sec.section_name, sec.section_order,
			i.item_id, i.item_number, i.item_text, i.item_html
		FROM isms_spec_sections sec
		LEFT JOIN isms_spec_items i ON i.section_id = sec.section_id AND i.is_active = TRUE
		WHERE sec.document_id = ? AND sec.is_active = TRUE
		ORDER BY sec.section_order, sec.section_id, CAST(i.item_number AS INTEGER), i.item_id
	`, d.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("query spec sections: %w", err)
	}
	defer rows.Close()

	d.Sections = []SpecSection{}
	for rows.Next() {
		var sec SpecSection
		var itemID sql.NullInt64
		var number, text sql.NullString
		var html *string
		if err := rows.Scan(
			&sec.SectionID, &sec.SectionName, &sec.SectionOrder,
			&itemID, &number, &text, &html,
		); err != nil {
			return nil, fmt.Errorf("scan spec section: %w", err)
		}

		last := len(d.Sections) - 1
		if last < 0 || d.Sections[last].SectionID != sec.SectionID {
			sec.Items = []SpecItem{}
			d.Sections = append(d.Sections, sec)
			last++
		}
		if itemID.Valid {
			d.Sections[last].Items = append(d.Sections[last].Items, SpecItem{
				ItemID:     itemID.Int64,
				ItemNumber: number.String,
				ItemText:   text.String,
				ItemHTML:   html,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec sections: %w", err)
	}
	return &d, nil
}

// BookmarkedSpecItems returns the ids of a document's items bookmarked by a user.
func (s *Store) BookmarkedSpecItems(ctx context.Context, userID, documentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.item_id
		FROM isms_spec_bookmarks b
		JOIN isms_spec_items i ON i.item_id = b.item_id
		JOIN isms_spec_sections sec ON i.section_id = sec.section_id
		WHERE b.user_id = ? AND sec.document_id = ?
		ORDER BY b.item_id
	`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarked items: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bookmarked item: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchSpecItems finds active items of active documents containing every
// query term. Results are ranked by relevance, then document, section and
// item order, and capped at 100. A query of only stop words matches nothing.
func (s *Store) SearchSpecItems(ctx context.Context, query string) ([]SpecSearchHit, error) {
	terms := searchTerms(query)
	clause, args := termClause("i.item_text", terms)
	if clause == "" {
		return []SpecSearchHit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			i.item_id, i.item_number, i.item_text, sec.section_name,
			d.document_id, d.phase_code, d.phase_name, d.full_title
		FROM isms_spec_items i
		JOIN isms_spec_sections sec ON i.section_id = sec.section_id
		JOIN isms_spec_documents d ON sec.document_id = d.document_id
		WHERE i.is_active = TRUE AND d.is_active = TRUE AND `+clause+`
		ORDER BY d.sort_order, sec.section_order, CAST(i.item_number AS INTEGER)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search spec items: %w", err)
	}
	defer rows.Close()

	hits := []SpecSearchHit{}
	for rows.Next() {
		var h SpecSearchHit
		if err := rows.Scan(
			&h.ItemID, &h.ItemNumber, &h.ItemText, &h.SectionName,
			&h.DocumentID, &h.PhaseCode, &h.PhaseName, &h.FullTitle,
		); err != nil {
			return nil, fmt.Errorf("scan spec hit: %w", err)
		}
		h.Rank = rank(h.ItemText, terms)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec hits: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank > hits[j].Rank })
	if len(hits) > searchLimit {
		hits = hits[:searchLimit]
	}
	return hits, nil
}

// ListSpecBookmarks returns a user's spec item bookmarks, newest first.
func (s *Store) ListSpecBookmarks(ctx context.Context, userID int64) ([]SpecBookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			b.bookmark_id, b.item_id, b.notes, b.created_at,
			i.item_number, i.item_text, sec.section_name,
			d.document_id, d.phase_code, d.phase_name, d.full_title
		FROM isms_spec_bookmarks b
		JOIN isms_spec_items i ON i.item_id = b.item_id
		JOIN isms_spec_sections sec ON i.section_id = sec.section_id
		JOIN isms_spec_documents d ON sec.document_id = d.document_id
		WHERE b.user_id = ? AND i.is_active = TRUE
		ORDER BY b.created_at DESC, b.bookmark_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query spec bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []SpecBookmark{}
	for rows.Next() {
		var b SpecBookmark
		if err := rows.Scan(
			&b.BookmarkID, &b.ItemID, &b.Notes, &b.CreatedAt,
			&b.ItemNumber, &b.ItemText, &b.SectionName,
			&b.DocumentID, &b.PhaseCode, &b.PhaseName, &b.FullTitle,
		); err != nil {
			return nil, fmt.Errorf("scan spec bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec bookmarks: %w", err)
	}
	return bookmarks, nil
}

// AddSpecBookmark bookmarks a spec item, replacing the notes of an existing
// bookmark, and returns the bookmark id.
func (s *Store) AddSpecBookmark(ctx context.Context, userID, itemID int64, notes string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO isms_spec_bookmarks (user_id, item_id, notes, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE SET notes = excluded.notes
		RETURNING bookmark_id
	`, userID, itemID, notes, s.timestamp()).Scan(&id)
	if err != nil {
		return 0, translate("add spec bookmark", err)
	}
	return id, nil
}

// RemoveSpecBookmark deletes a user's bookmark on a spec item. Removing a
// bookmark that does not exist is not an error.
func (s *Store) RemoveSpecBookmark(ctx context.Context, userID, itemID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_spec_bookmarks WHERE user_id = ? AND item_id = ?
	`, userID, itemID)
	return translate("remove spec bookmark", err)
}

// ListSpecNotes returns a user's notes on spec items, most recently updated first.
func (s *Store) ListSpecNotes(ctx context.Context, userID int64) ([]SpecNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			n.note_id, n.item_id, n.note_text, n.created_at, n.updated_at,
			i.item_number, i.item_text, sec.section_name,
			d.document_id, d.phase_code, d.phase_name
		FROM isms_spec_notes n
		JOIN isms_spec_items i ON i.item_id = n.item_id
		JOIN isms_spec_sections sec ON i.section_id = sec.section_id
		JOIN isms_spec_documents d ON sec.document_id = d.document_id
		WHERE n.user_id = ? AND i.is_active = TRUE
		ORDER BY n.updated_at DESC, n.note_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query spec notes: %w", err)
	}
	defer rows.Close()

	notes := []SpecNote{}
	for rows.Next() {
		var n SpecNote
		if err := rows.Scan(
			&n.NoteID, &n.ItemID, &n.NoteText, &n.CreatedAt, &n.UpdatedAt,
			&n.ItemNumber, &n.ItemText, &n.SectionName,
			&n.DocumentID, &n.PhaseCode, &n.PhaseName,
		); err != nil {
			return nil, fmt.Errorf("scan spec note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spec notes: %w", err)
	}
	return notes, nil
}

// GetSpecNote returns a user's note on a spec item, or ErrNotFound.
func (s *Store) GetSpecNote(ctx context.Context, userID, itemID int64) (*SpecNote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT note_id, item_id, note_text, created_at, updated_at
		FROM isms_spec_notes WHERE user_id = ? AND item_id = ?
	`, userID, itemID)

	var n SpecNote
	if err := row.Scan(&n.NoteID, &n.ItemID, &n.NoteText, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, translate("get spec note", err)
	}
	return &n, nil
}

// SaveSpecNote creates or replaces a user's note on a spec item. Blank text
// deletes the note instead and returns a nil note.
func (s *Store) SaveSpecNote(ctx context.Context, userID, itemID int64, text string) (*SpecNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, s.DeleteSpecNote(ctx, userID, itemID)
	}

	now := s.timestamp()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO isms_spec_notes (user_id, item_id, note_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET note_text = excluded.note_text, updated_at = excluded.updated_at
		RETURNING note_id, item_id, note_text, created_at, updated_at
	`, userID, itemID, text, now, now)

	var n SpecNote
	if err := row.Scan(&n.NoteID, &n.ItemID, &n.NoteText, scanTime{&n.CreatedAt}, scanTime{&n.UpdatedAt}); err != nil {
		return nil, translate("save spec note", err)
	}
	return &n, nil
}

// DeleteSpecNote removes a user's note on a spec item. Deleting a missing
// note is not an error.
func (s *Store) DeleteSpecNote(ctx context.Context, userID, itemID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_spec_notes WHERE user_id = ? AND item_id = ?
	`, userID, itemID)
	return translate("delete spec note", err)
}
