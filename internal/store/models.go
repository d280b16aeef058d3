package store

import (
	"bytes"
	"encoding/json"
	"time"
)

// User is an authenticated account resolved from a session token.
type User struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	UserRole   string `json:"user_role"`
	CanRead    bool   `json:"can_read"`
	CanWrite   bool   `json:"can_write"`
	CanDelete  bool   `json:"can_delete"`
	CanAdmin   bool   `json:"can_admin"`
	IsVerified bool   `json:"is_verified"`

	SessionID int64     `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`

	IsDemo   bool   `json:"is_demo,omitempty"`
	DemoCode string `json:"demo_code,omitempty"`
}

// Verified reports whether the account may use the application.
// Administrators are always treated as verified.
func (u *User) Verified() bool {
	return u.IsVerified || u.CanAdmin
}

// DemoUserID is the synthetic user id assigned to demo sessions.
const DemoUserID int64 = -1

// Phase is a construction phase grouping a numbered list of rules.
type Phase struct {
	PhaseID     int64      `json:"phase_id"`
	PhaseCode   string     `json:"phase_code"`
	PhaseName   string     `json:"phase_name"`
	Description *string    `json:"description"`
	SortOrder   int        `json:"sort_order"`
	RuleCount   *int       `json:"rule_count,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// PhaseDetail is a phase together with its active rules.
type PhaseDetail struct {
	Phase
	Rules []Rule `json:"rules"`
}

// Rule is a single numbered rule. Phase fields are populated on reads that
// join the phase table.
type Rule struct {
	RuleID     int64      `json:"rule_id"`
	PhaseID    int64      `json:"phase_id"`
	RuleNumber int        `json:"rule_number"`
	RuleText   string     `json:"rule_text"`
	RuleHTML   *string    `json:"rule_html"`
	PhaseCode  string     `json:"phase_code,omitempty"`
	PhaseName  string     `json:"phase_name,omitempty"`
	Rank       *float64   `json:"rank,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// RuleVersion is a saved prior state of a rule's text.
type RuleVersion struct {
	VersionID         int64     `json:"version_id"`
	VersionNumber     int       `json:"version_number"`
	RuleText          string    `json:"rule_text"`
	RuleHTML          *string   `json:"rule_html"`
	ChangeSummary     *string   `json:"change_summary"`
	ChangedAt         time.Time `json:"changed_at"`
	ChangedByUsername *string   `json:"changed_by_username"`
}

// Bookmark marks a rule for a user.
type Bookmark struct {
	BookmarkID int64     `json:"bookmark_id"`
	RuleID     int64     `json:"rule_id"`
	Notes      *string   `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	RuleNumber int       `json:"rule_number,omitempty"`
	RuleText   string    `json:"rule_text,omitempty"`
	PhaseID    int64     `json:"phase_id,omitempty"`
	PhaseCode  string    `json:"phase_code,omitempty"`
	PhaseName  string    `json:"phase_name,omitempty"`
}

// Highlight is a user's highlighted span within a rule's text.
type Highlight struct {
	HighlightID     int64     `json:"highlight_id"`
	RuleID          int64     `json:"rule_id"`
	StartOffset     int       `json:"start_offset"`
	EndOffset       int       `json:"end_offset"`
	HighlightedText string    `json:"highlighted_text"`
	HighlightColor  string    `json:"highlight_color"`
	CreatedAt       time.Time `json:"created_at"`
	RuleNumber      int       `json:"rule_number,omitempty"`
	PhaseCode       string    `json:"phase_code,omitempty"`
	PhaseName       string    `json:"phase_name,omitempty"`
}

// Note is a user's free-text note on a rule. One per user and rule.
type Note struct {
	NoteID     int64     `json:"note_id"`
	RuleID     int64     `json:"rule_id"`
	NoteText   string    `json:"note_text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	RuleNumber int       `json:"rule_number,omitempty"`
	RuleText   string    `json:"rule_text,omitempty"`
	PhaseID    int64     `json:"phase_id,omitempty"`
	PhaseCode  string    `json:"phase_code,omitempty"`
	PhaseName  string    `json:"phase_name,omitempty"`
}

// SpecDocument is a phase spec PDF imported into sections and items.
type SpecDocument struct {
	DocumentID   int64   `json:"document_id"`
	PhaseCode    string  `json:"phase_code"`
	PhaseName    string  `json:"phase_name"`
	FullTitle    string  `json:"full_title"`
	JobTreadURL  *string `json:"jobtread_url"`
	FileSize     *int64  `json:"file_size"`
	PageCount    *int    `json:"page_count"`
	Summary      *string `json:"summary"`
	SectionCount *int    `json:"section_count,omitempty"`
	ItemCount    *int    `json:"item_count,omitempty"`
}

// SpecDocumentDetail is a document with its sections and items.
type SpecDocumentDetail struct {
	SpecDocument
	Sections []SpecSection `json:"sections"`
}

// SpecSection is a named section of a spec document.
type SpecSection struct {
	SectionID    int64      `json:"section_id"`
	SectionName  string     `json:"section_name"`
	SectionOrder int        `json:"section_order"`
	Items        []SpecItem `json:"items"`
}

// SpecItem is a numbered requirement inside a section.
type SpecItem struct {
	ItemID     int64   `json:"item_id"`
	ItemNumber string  `json:"item_number"`
	ItemText   string  `json:"item_text"`
	ItemHTML   *string `json:"item_html"`
}

// SpecSearchHit is a spec item matched by a search query.
type SpecSearchHit struct {
	ItemID      int64   `json:"item_id"`
	ItemNumber  string  `json:"item_number"`
	ItemText    string  `json:"item_text"`
	SectionName string  `json:"section_name"`
	DocumentID  int64   `json:"document_id"`
	PhaseCode   string  `json:"phase_code"`
	PhaseName   string  `json:"phase_name"`
	FullTitle   string  `json:"full_title"`
	Rank        float64 `json:"rank"`
}

// SpecBookmark marks a spec item for a user.
type SpecBookmark struct {
	BookmarkID  int64     `json:"bookmark_id"`
	ItemID      int64     `json:"item_id"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	ItemNumber  string    `json:"item_number"`
	ItemText    string    `json:"item_text"`
	SectionName string    `json:"section_name"`
	DocumentID  int64     `json:"document_id"`
	PhaseCode   string    `json:"phase_code"`
	PhaseName   string    `json:"phase_name"`
	FullTitle   string    `json:"full_title"`
}

// SpecNote is a user's note on a spec item.
type SpecNote struct {
	NoteID      int64     `json:"note_id"`
	ItemID      int64     `json:"item_id"`
	NoteText    string    `json:"note_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ItemNumber  string    `json:"item_number,omitempty"`
	ItemText    string    `json:"item_text,omitempty"`
	SectionName string    `json:"section_name,omitempty"`
	DocumentID  int64     `json:"document_id,omitempty"`
	PhaseCode   string    `json:"phase_code,omitempty"`
	PhaseName   string    `json:"phase_name,omitempty"`
}

// SpecFigure is a figure reference found in a spec document.
type SpecFigure struct {
	FigureID   int64   `json:"figure_id"`
	FigureCode string  `json:"figure_code"`
	PhaseCode  string  `json:"phase_code"`
	DocumentID int64   `json:"document_id"`
	PageNumber int     `json:"page_number"`
	ImagePath  *string `json:"image_path"`
}

// Field is an optional JSON field that records whether it was present in
// the decoded document. An explicit null sets Set with a zero Value.
type Field[T any] struct {
	Set   bool
	Value T
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(data, []byte("null")) {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// Some returns a set Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}
