package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListBookmarks returns a user's bookmarks on active rules, newest first.
func (s *Store) ListBookmarks(ctx context.Context, userID int64) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			b.bookmark_id, b.rule_id, b.notes, b.created_at,
			r.rule_number, r.rule_text, p.phase_id, p.phase_code, p.phase_name
		FROM isms_bookmarks b
		JOIN isms_rules r ON b.rule_id = r.rule_id
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE b.user_id = ? AND r.is_active = TRUE
		ORDER BY b.created_at DESC, b.bookmark_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []Bookmark{}
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(
			&b.BookmarkID, &b.RuleID, &b.Notes, &b.CreatedAt,
			&b.RuleNumber, &b.RuleText, &b.PhaseID, &b.PhaseCode, &b.PhaseName,
		); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return bookmarks, nil
}

// AddBookmark bookmarks a rule for a user. Bookmarking an already bookmarked
// rule replaces its notes.
func (s *Store) AddBookmark(ctx context.Context, userID, ruleID int64, notes *string) (*Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO isms_bookmarks (user_id, rule_id, notes, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, rule_id) DO UPDATE SET notes = excluded.notes
		RETURNING bookmark_id, rule_id, notes, created_at
	`, userID, ruleID, notes, s.timestamp())

	var b Bookmark
	if err := row.Scan(&b.BookmarkID, &b.RuleID, &b.Notes, scanTime{&b.CreatedAt}); err != nil {
		return nil, translate("add bookmark", err)
	}
	return &b, nil
}

// RemoveBookmark deletes a user's bookmark on a rule.
func (s *Store) RemoveBookmark(ctx context.Context, userID, ruleID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_bookmarks WHERE user_id = ? AND rule_id = ?
	`, userID, ruleID)
	if err != nil {
		return translate("remove bookmark", err)
	}
	return requireAffected("remove bookmark", res)
}

// GetBookmark returns a user's bookmark on a rule, or ErrNotFound.
func (s *Store) GetBookmark(ctx context.Context, userID, ruleID int64) (*Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bookmark_id, rule_id, notes, created_at
		FROM isms_bookmarks WHERE user_id = ? AND rule_id = ?
	`, userID, ruleID)

	var b Bookmark
	if err := row.Scan(&b.BookmarkID, &b.RuleID, &b.Notes, &b.CreatedAt); err != nil {
		return nil, translate("get bookmark", err)
	}
	return &b, nil
}

// ListHighlights returns a user's highlights, optionally limited to one rule.
// A zero ruleID returns highlights on every active rule, newest first;
// highlights of a single rule are ordered by start offset.
func (s *Store) ListHighlights(ctx context.Context, userID, ruleID int64) ([]Highlight, error) {
	query := `
		SELECT
			h.highlight_id, h.rule_id, h.start_offset, h.end_offset,
			h.highlighted_text, h.highlight_color, h.created_at,
			r.rule_number, p.phase_code, p.phase_name
		FROM isms_highlights h
		JOIN isms_rules r ON h.rule_id = r.rule_id
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE h.user_id = ? AND r.is_active = TRUE`
	args := []any{userID}
	if ruleID != 0 {
		query += ` AND h.rule_id = ? ORDER BY h.start_offset, h.highlight_id`
		args = append(args, ruleID)
	} else {
		query += ` ORDER BY h.created_at DESC, h.highlight_id DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query highlights: %w", err)
	}
	defer rows.Close()

	highlights := []Highlight{}
	for rows.Next() {
		var h Highlight
		if err := rows.Scan(
			&h.HighlightID, &h.RuleID, &h.StartOffset, &h.EndOffset,
			&h.HighlightedText, &h.HighlightColor, &h.CreatedAt,
			&h.RuleNumber, &h.PhaseCode, &h.PhaseName,
		); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate highlights: %w", err)
	}
	return highlights, nil
}

// NewHighlight describes a highlight to create.
type NewHighlight struct {
	RuleID          int64
	StartOffset     int
	EndOffset       int
	HighlightedText string
	// Color defaults to "yellow" when empty.
	Color string
}

// AddHighlight stores a highlight for a user.
func (s *Store) AddHighlight(ctx context.Context, userID int64, nh NewHighlight) (*Highlight, error) {
	color := nh.Color
	if color == "" {
		color = "yellow"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO isms_highlights
		(user_id, rule_id, start_offset, end_offset, highlighted_text, highlight_color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING highlight_id, rule_id, start_offset, end_offset, highlighted_text, highlight_color, created_at
	`, userID, nh.RuleID, nh.StartOffset, nh.EndOffset, nh.HighlightedText, color, s.timestamp())

	var h Highlight
	if err := row.Scan(
		&h.HighlightID, &h.RuleID, &h.StartOffset, &h.EndOffset,
		&h.HighlightedText, &h.HighlightColor, scanTime{&h.CreatedAt},
	); err != nil {
		return nil, translate("add highlight", err)
	}
	return &h, nil
}

// RemoveHighlight deletes one of a user's highlights.
func (s *Store) RemoveHighlight(ctx context.Context, userID, highlightID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_highlights WHERE highlight_id = ? AND user_id = ?
	`, highlightID, userID)
	if err != nil {
		return translate("remove highlight", err)
	}
	return requireAffected("remove highlight", res)
}

// ListNotes returns a user's notes on active rules, most recently updated first.
func (s *Store) ListNotes(ctx context.Context, userID int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			n.note_id, n.rule_id, n.note_text, n.created_at, n.updated_at,
			r.rule_number, r.rule_text, p.phase_id, p.phase_code, p.phase_name
		FROM isms_notes n
		JOIN isms_rules r ON n.rule_id = r.rule_id
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE n.user_id = ? AND r.is_active = TRUE
		ORDER BY n.updated_at DESC, n.note_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(
			&n.NoteID, &n.RuleID, &n.NoteText, &n.CreatedAt, &n.UpdatedAt,
			&n.RuleNumber, &n.RuleText, &n.PhaseID, &n.PhaseCode, &n.PhaseName,
		); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// GetNote returns a user's note on a rule, or ErrNotFound.
func (s *Store) GetNote(ctx context.Context, userID, ruleID int64) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT note_id, rule_id, note_text, created_at, updated_at
		FROM isms_notes WHERE user_id = ? AND rule_id = ?
	`, userID, ruleID)

	var n Note
	if err := row.Scan(&n.NoteID, &n.RuleID, &n.NoteText, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, translate("get note", err)
	}
	return &n, nil
}

// SaveNote creates or replaces a user's note on a rule. created reports
// whether a new note was inserted.
func (s *Store) SaveNote(ctx context.Context, userID, ruleID int64, text string) (note *Note, created bool, err error) {
	var n Note
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM isms_notes WHERE user_id = ? AND rule_id = ?
		`, userID, ruleID).Scan(&existing); err != nil {
			return err
		}
		created = existing == 0

		now := s.timestamp()
		row := tx.QueryRowContext(ctx, `
			INSERT INTO isms_notes (user_id, rule_id, note_text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, rule_id) DO UPDATE
			SET note_text = excluded.note_text, updated_at = excluded.updated_at
			RETURNING note_id, rule_id, note_text, created_at, updated_at
		`, userID, ruleID, text, now, now)
		return row.Scan(&n.NoteID, &n.RuleID, &n.NoteText, scanTime{&n.CreatedAt}, scanTime{&n.UpdatedAt})
	})
	if err != nil {
		return nil, false, translate("save note", err)
	}
	return &n, created, nil
}

// DeleteNote removes one of a user's notes by id.
func (s *Store) DeleteNote(ctx context.Context, userID, noteID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_notes WHERE note_id = ? AND user_id = ?
	`, noteID, userID)
	if err != nil {
		return translate("delete note", err)
	}
	return requireAffected("delete note", res)
}

// ClearHighlights deletes all of a user's highlights on a rule and reports
// how many were removed.
func (s *Store) ClearHighlights(ctx context.Context, userID, ruleID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_highlights WHERE user_id = ? AND rule_id = ?
	`, userID, ruleID)
	if err != nil {
		return 0, translate("clear highlights", err)
	}
	return res.RowsAffected()
}

// DeleteRuleNote removes a user's note on a rule.
func (s *Store) DeleteRuleNote(ctx context.Context, userID, ruleID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM isms_notes WHERE user_id = ? AND rule_id = ?
	`, userID, ruleID)
	if err != nil {
		return translate("delete rule note", err)
	}
	return requireAffected("delete rule note", res)
}
