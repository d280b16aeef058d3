package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const ruleColumns = `
	r.rule_id, r.phase_id, r.rule_number, r.rule_text, r.rule_html,
	p.phase_code, p.phase_name, r.created_at, r.updated_at
`

func scanRule(sc interface{ Scan(...any) error }, r *Rule) error {
	return sc.Scan(
		&r.RuleID, &r.PhaseID, &r.RuleNumber, &r.RuleText, &r.RuleHTML,
		&r.PhaseCode, &r.PhaseName, &r.CreatedAt, &r.UpdatedAt,
	)
}

// ListRules returns active rules of active phases ordered by phase sort order,
// phase code and rule number. A zero phaseID lists all phases.
func (s *Store) ListRules(ctx context.Context, phaseID int64) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM isms_rules r
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE r.is_active = TRUE AND p.is_active = TRUE`
	var args []any
	if phaseID != 0 {
		query += ` AND r.phase_id = ?`
		args = append(args, phaseID)
	}
	query += ` ORDER BY p.sort_order, p.phase_code, r.rule_number`

	return s.queryRules(ctx, "list rules", query, args...)
}

func (s *Store) queryRules(ctx context.Context, op, query string, args ...any) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		var r Rule
		if err := scanRule(rows, &r); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return rules, nil
}

// SearchRules finds active rules whose text contains every query term, or
// the whole query as a phrase. Results are ranked by relevance, then phase
// order and rule number, and capped at 100.
func (s *Store) SearchRules(ctx context.Context, query string) ([]Rule, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Rule{}, nil
	}
	terms := searchTerms(query)

	where := foldedLike("r.rule_text")
	args := []any{likePattern(foldText(query))}
	if clause, termArgs := termClause("r.rule_text", terms); clause != "" {
		where = "(" + where + " OR " + clause + ")"
		args = append(args, termArgs...)
	}

	rules, err := s.queryRules(ctx, "search rules", `
		SELECT `+ruleColumns+`
		FROM isms_rules r
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE r.is_active = TRUE AND p.is_active = TRUE AND `+where+`
		ORDER BY p.sort_order, p.phase_code, r.rule_number
	`, args...)
	if err != nil {
		return nil, err
	}

	phrase := []string{foldText(query)}
	for i := range rules {
		score := rank(rules[i].RuleText, terms)
		if score == 0 {
			score = rank(rules[i].RuleText, phrase)
		}
		rules[i].Rank = &score
	}
	return rankedRules(rules), nil
}

// GetRule returns an active rule with its phase code and name.
func (s *Store) GetRule(ctx context.Context, ruleID int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM isms_rules r
		JOIN isms_phases p ON r.phase_id = p.phase_id
		WHERE r.rule_id = ? AND r.is_active = TRUE
	`, ruleID)

	var r Rule
	if err := scanRule(row, &r); err != nil {
		return nil, translate("get rule", err)
	}
	return &r, nil
}

// NewRule describes a rule to create.
type NewRule struct {
	PhaseID  int64
	RuleText string
	RuleHTML *string
	// RuleNumber defaults to one past the phase's current maximum when nil.
	RuleNumber *int
}

// CreateRule inserts a rule into a phase. A rule number already used in the
// phase returns ErrConflict.
func (s *Store) CreateRule(ctx context.Context, nr NewRule, userID int64) (*Rule, error) {
	var r Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		number := 0
		if nr.RuleNumber != nil {
			number = *nr.RuleNumber
		} else if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(rule_number), 0) + 1 FROM isms_rules WHERE phase_id = ?
		`, nr.PhaseID).Scan(&number); err != nil {
			return fmt.Errorf("next rule number: %w", err)
		}

		now := s.timestamp()
		row := tx.QueryRowContext(ctx, `
			INSERT INTO isms_rules
			(phase_id, rule_number, rule_text, rule_html, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING rule_id, phase_id, rule_number, rule_text, rule_html
		`, nr.PhaseID, number, nr.RuleText, nr.RuleHTML, userID, now, now)
		return row.Scan(&r.RuleID, &r.PhaseID, &r.RuleNumber, &r.RuleText, &r.RuleHTML)
	})
	if err != nil {
		return nil, translate("create rule", err)
	}
	return &r, nil
}

// RulePatch lists the rule fields to change. Unset fields are untouched.
type RulePatch struct {
	RuleText      Field[string]  `json:"rule_text"`
	RuleHTML      Field[*string] `json:"rule_html"`
	RuleNumber    Field[int]     `json:"rule_number"`
	ChangeSummary string         `json:"change_summary"`
}

// UpdateRule applies a patch to an active rule. When the text changes the
// prior text is saved as a new version first.
func (s *Store) UpdateRule(ctx context.Context, ruleID int64, patch RulePatch, userID int64) (*Rule, error) {
	var r Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current Rule
		if err := tx.QueryRowContext(ctx, `
			SELECT rule_text, rule_html FROM isms_rules WHERE rule_id = ? AND is_active = TRUE
		`, ruleID).Scan(&current.RuleText, &current.RuleHTML); err != nil {
			return err
		}

		if patch.RuleText.Set && patch.RuleText.Value != current.RuleText {
			summary := patch.ChangeSummary
			if summary == "" {
				summary = "Rule updated"
			}
			if err := s.saveVersion(ctx, tx, ruleID, current, summary, userID); err != nil {
				return err
			}
		}

		var sets []string
		var args []any
		if patch.RuleText.Set {
			sets = append(sets, "rule_text = ?")
			args = append(args, patch.RuleText.Value)
		}
		if patch.RuleHTML.Set {
			sets = append(sets, "rule_html = ?")
			args = append(args, patch.RuleHTML.Value)
		}
		if patch.RuleNumber.Set {
			sets = append(sets, "rule_number = ?")
			args = append(args, patch.RuleNumber.Value)
		}
		sets = append(sets, "updated_by = ?", "updated_at = ?")
		args = append(args, userID, s.timestamp(), ruleID)

		row := tx.QueryRowContext(ctx, `
			UPDATE isms_rules
			SET `+strings.Join(sets, ", ")+`
			WHERE rule_id = ?
			RETURNING rule_id, phase_id, rule_number, rule_text, rule_html
		`, args...)
		return row.Scan(&r.RuleID, &r.PhaseID, &r.RuleNumber, &r.RuleText, &r.RuleHTML)
	})
	if err != nil {
		return nil, translate("update rule", err)
	}
	return &r, nil
}

// saveVersion records a rule's current text under the next version number.
func (s *Store) saveVersion(ctx context.Context, tx *sql.Tx, ruleID int64, current Rule, summary string, userID int64) error {
	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1 FROM isms_rule_versions WHERE rule_id = ?
	`, ruleID).Scan(&next); err != nil {
		return fmt.Errorf("next version number: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO isms_rule_versions
		(rule_id, version_number, rule_text, rule_html, change_summary, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ruleID, next, current.RuleText, current.RuleHTML, summary, userID, s.timestamp())
	if err != nil {
		return fmt.Errorf("save version: %w", err)
	}
	return nil
}

// DeleteRule soft-deletes a rule.
func (s *Store) DeleteRule(ctx context.Context, ruleID int64, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE isms_rules
		SET is_active = FALSE, updated_by = ?, updated_at = ?
		WHERE rule_id = ?
	`, userID, s.timestamp(), ruleID)
	if err != nil {
		return translate("delete rule", err)
	}
	return requireAffected("delete rule", res)
}

// ListRuleVersions returns a rule's saved versions, newest first.
func (s *Store) ListRuleVersions(ctx context.Context, ruleID int64) ([]RuleVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			v.version_id, v.version_number, v.rule_text, v.rule_html,
			v.change_summary, v.changed_at, u.username
		FROM isms_rule_versions v
		LEFT JOIN users u ON v.changed_by = u.user_id
		WHERE v.rule_id = ?
		ORDER BY v.version_number DESC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("query rule versions: %w", err)
	}
	defer rows.Close()

	versions := []RuleVersion{}
	for rows.Next() {
		var v RuleVersion
		if err := scanVersion(rows, &v); err != nil {
			return nil, fmt.Errorf("scan rule version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule versions: %w", err)
	}
	return versions, nil
}

// GetRuleVersion returns one saved version of a rule.
func (s *Store) GetRuleVersion(ctx context.Context, ruleID int64, versionNumber int) (*RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			v.version_id, v.version_number, v.rule_text, v.rule_html,
			v.change_summary, v.changed_at, u.username
		FROM isms_rule_versions v
		LEFT JOIN users u ON v.changed_by = u.user_id
		WHERE v.rule_id = ? AND v.version_number = ?
	`, ruleID, versionNumber)

	var v RuleVersion
	if err := scanVersion(row, &v); err != nil {
		return nil, translate("get rule version", err)
	}
	return &v, nil
}

func scanVersion(sc interface{ Scan(...any) error }, v *RuleVersion) error {
	return sc.Scan(
		&v.VersionID, &v.VersionNumber, &v.RuleText, &v.RuleHTML,
		&v.ChangeSummary, &v.ChangedAt, &v.ChangedByUsername,
	)
}

// RestoreRuleVersion replaces a rule's text with a saved version. The text
// being replaced is itself saved as a new version so the restore can be
// undone. Returns ErrNotFound if the rule or version does not exist.
func (s *Store) RestoreRuleVersion(ctx context.Context, ruleID int64, versionNumber int, userID int64) (*Rule, error) {
	var r Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var target RuleVersion
		if err := tx.QueryRowContext(ctx, `
			SELECT rule_text, rule_html FROM isms_rule_versions
			WHERE rule_id = ? AND version_number = ?
		`, ruleID, versionNumber).Scan(&target.RuleText, &target.RuleHTML); err != nil {
			return err
		}

		var current Rule
		if err := tx.QueryRowContext(ctx, `
			SELECT rule_text, rule_html FROM isms_rules WHERE rule_id = ? AND is_active = TRUE
		`, ruleID).Scan(&current.RuleText, &current.RuleHTML); err != nil {
			return err
		}

		summary := fmt.Sprintf("Restored from version %d", versionNumber)
		if err := s.saveVersion(ctx, tx, ruleID, current, summary, userID); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE isms_rules
			SET rule_text = ?, rule_html = ?, updated_by = ?, updated_at = ?
			WHERE rule_id = ?
			RETURNING rule_id, phase_id, rule_number, rule_text, rule_html
		`, target.RuleText, target.RuleHTML, userID, s.timestamp(), ruleID)
		return row.Scan(&r.RuleID, &r.PhaseID, &r.RuleNumber, &r.RuleText, &r.RuleHTML)
	})
	if err != nil {
		return nil, translate("restore rule version", err)
	}
	return &r, nil
}
