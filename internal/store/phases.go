package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ListPhases returns all active phases with their active rule counts,
// ordered by sort order then phase code.
func (s *Store) ListPhases(ctx context.Context) ([]Phase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			p.phase_id, p.phase_code, p.phase_name, p.description,
			p.sort_order, p.created_at, p.updated_at,
			COUNT(r.rule_id) AS rule_count
		FROM isms_phases p
		LEFT JOIN isms_rules r ON r.phase_id = p.phase_id AND r.is_active = TRUE
		WHERE p.is_active = TRUE
		GROUP BY p.phase_id
		ORDER BY p.sort_order, p.phase_code
	`)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	phases := []Phase{}
	for rows.Next() {
		var p Phase
		var count int
		if err := rows.Scan(
			&p.PhaseID, &p.PhaseCode, &p.PhaseName, &p.Description,
			&p.SortOrder, &p.CreatedAt, &p.UpdatedAt, &count,
		); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		p.RuleCount = &count
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phases: %w", err)
	}
	return phases, nil
}

// GetPhase returns an active phase with its active rules.
func (s *Store) GetPhase(ctx context.Context, phaseID int64) (*PhaseDetail, error) {
	return s.getPhase(ctx, "phase_id = ?", phaseID)
}

// GetPhaseByCode returns an active phase, looked up by code (e.g. "30-100").
func (s *Store) GetPhaseByCode(ctx context.Context, code string) (*PhaseDetail, error) {
	return s.getPhase(ctx, "phase_code = ?", code)
}

func (s *Store) getPhase(ctx context.Context, where string, arg any) (*PhaseDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT phase_id, phase_code, phase_name, description, sort_order
		FROM isms_phases
		WHERE `+where+` AND is_active = TRUE
	`, arg)

	var d PhaseDetail
	if err := row.Scan(&d.PhaseID, &d.PhaseCode, &d.PhaseName, &d.Description, &d.SortOrder); err != nil {
		return nil, translate("get phase", err)
	}

	rules, err := s.phaseRules(ctx, d.PhaseID)
	if err != nil {
		return nil, err
	}
	d.Rules = rules
	return &d, nil
}

// phaseRules returns the active rules of a phase ordered by rule number.
func (s *Store) phaseRules(ctx context.Context, phaseID int64) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, phase_id, rule_number, rule_text, rule_html
		FROM isms_rules
		WHERE phase_id = ? AND is_active = TRUE
		ORDER BY rule_number
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("query phase rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.RuleID, &r.PhaseID, &r.RuleNumber, &r.RuleText, &r.RuleHTML); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phase rules: %w", err)
	}
	return rules, nil
}

// ListPhaseDetails returns every active phase with its rules, in display order.
func (s *Store) ListPhaseDetails(ctx context.Context) ([]PhaseDetail, error) {
	phases, err := s.ListPhases(ctx)
	if err != nil {
		return nil, err
	}
	details := make([]PhaseDetail, 0, len(phases))
	for _, p := range phases {
		rules, err := s.phaseRules(ctx, p.PhaseID)
		if err != nil {
			return nil, err
		}
		details = append(details, PhaseDetail{Phase: p, Rules: rules})
	}
	return details, nil
}

// NewPhase describes a phase to create.
type NewPhase struct {
	PhaseCode   string
	PhaseName   string
	Description *string
	// SortOrder defaults to one past the current maximum when nil.
	SortOrder *int
}

// CreatePhase inserts a phase. A duplicate phase code returns ErrConflict.
func (s *Store) CreatePhase(ctx context.Context, np NewPhase, userID int64) (*Phase, error) {
	var p Phase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sortOrder := 0
		if np.SortOrder != nil {
			sortOrder = *np.SortOrder
		} else if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sort_order), 0) + 1 FROM isms_phases
		`).Scan(&sortOrder); err != nil {
			return fmt.Errorf("next sort order: %w", err)
		}

		now := s.timestamp()
		row := tx.QueryRowContext(ctx, `
			INSERT INTO isms_phases
			(phase_code, phase_name, description, sort_order, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING phase_id, phase_code, phase_name, description, sort_order
		`, np.PhaseCode, np.PhaseName, np.Description, sortOrder, userID, now, now)
		return row.Scan(&p.PhaseID, &p.PhaseCode, &p.PhaseName, &p.Description, &p.SortOrder)
	})
	if err != nil {
		return nil, translate("create phase", err)
	}
	return &p, nil
}

// PhasePatch lists the phase fields to change. Unset fields are untouched.
type PhasePatch struct {
	PhaseCode   Field[string]  `json:"phase_code"`
	PhaseName   Field[string]  `json:"phase_name"`
	Description Field[*string] `json:"description"`
	SortOrder   Field[int]     `json:"sort_order"`
}

// UpdatePhase applies a patch to an active phase.
func (s *Store) UpdatePhase(ctx context.Context, phaseID int64, patch PhasePatch, userID int64) (*Phase, error) {
	var sets []string
	var args []any
	if patch.PhaseCode.Set {
		sets = append(sets, "phase_code = ?")
		args = append(args, patch.PhaseCode.Value)
	}
	if patch.PhaseName.Set {
		sets = append(sets, "phase_name = ?")
		args = append(args, patch.PhaseName.Value)
	}
	if patch.Description.Set {
		sets = append(sets, "description = ?")
		args = append(args, patch.Description.Value)
	}
	if patch.SortOrder.Set {
		sets = append(sets, "sort_order = ?")
		args = append(args, patch.SortOrder.Value)
	}
	sets = append(sets, "updated_by = ?", "updated_at = ?")
	args = append(args, userID, s.timestamp(), phaseID)

	row := s.db.QueryRowContext(ctx, `
		UPDATE isms_phases
		SET `+strings.Join(sets, ", ")+`
		WHERE phase_id = ? AND is_active = TRUE
		RETURNING phase_id, phase_code, phase_name, description, sort_order
	`, args...)

	var p Phase
	if err := row.Scan(&p.PhaseID, &p.PhaseCode, &p.PhaseName, &p.Description, &p.SortOrder); err != nil {
		return nil, translate("update phase", err)
	}
	return &p, nil
}

// DeletePhase soft-deletes a phase.
func (s *Store) DeletePhase(ctx context.Context, phaseID int64, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE isms_phases
		SET is_active = FALSE, updated_by = ?, updated_at = ?
		WHERE phase_id = ?
	`, userID, s.timestamp(), phaseID)
	if err != nil {
		return translate("delete phase", err)
	}
	return requireAffected("delete phase", res)
}

// ReorderPhases sets each listed phase's sort order to its index in ids.
// Unknown ids are ignored. All updates commit together.
func (s *Store) ReorderPhases(ctx context.Context, ids []int64, userID int64) error {
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE isms_phases
			SET sort_order = ?, updated_by = ?, updated_at = ?
			WHERE phase_id = ?
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for idx, id := range ids {
			if _, err := stmt.ExecContext(ctx, idx, userID, now, id); err != nil {
				return err
			}
		}
		return nil
	})
	return translate("reorder phases", err)
}
