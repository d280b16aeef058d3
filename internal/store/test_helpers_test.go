package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ruff-uno/simonini-isms/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with a
// deterministic clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewClock().Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUser inserts a verified user and returns its id.
func createTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), NewUser{
		Username:   username,
		Email:      username + "@example.com",
		FirstName:  "Test",
		LastName:   "User",
		CanWrite:   true,
		IsVerified: true,
	})
	if err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", username, err)
	}
	return id
}

// createTestPhase inserts a phase and returns it.
func createTestPhase(t *testing.T, s *Store, code, name string) *Phase {
	t.Helper()
	p, err := s.CreatePhase(context.Background(), NewPhase{PhaseCode: code, PhaseName: name}, 1)
	if err != nil {
		t.Fatalf("CreatePhase(%q) failed: %v", code, err)
	}
	return p
}

// createTestRule appends a rule to a phase and returns it.
func createTestRule(t *testing.T, s *Store, phaseID int64, text string) *Rule {
	t.Helper()
	r, err := s.CreateRule(context.Background(), NewRule{PhaseID: phaseID, RuleText: text}, 1)
	if err != nil {
		t.Fatalf("CreateRule(%q) failed: %v", text, err)
	}
	return r
}

// createTestSpecDocument imports a small two-section document and returns its id.
func createTestSpecDocument(t *testing.T, s *Store, code, name string) int64 {
	t.Helper()
	id, _, err := s.ImportSpecDocument(context.Background(), SpecImport{
		PhaseCode: code,
		PhaseName: name,
		FullTitle: "Phase " + code + " " + name,
		PageCount: 3,
		Summary:   name + " specifications",
		Sections: []SpecImportSection{
			{Name: "Work Requirements", Items: []SpecImportItem{
				{Number: "1", Text: "Verify all framing dimensions before sheathing.", HTML: "<p>Verify all framing dimensions before sheathing.</p>"},
				{Number: "2", Text: "Protect installed windows from damage.", HTML: "<p>Protect installed windows from damage.</p>"},
				{Number: "10", Text: "Remove all debris daily.", HTML: "<p>Remove all debris daily.</p>"},
			}},
			{Name: "Safety Requirements", Items: []SpecImportItem{
				{Number: "1", Text: "Wear fall protection above six feet.", HTML: "<p>Wear fall protection above six feet.</p>"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("ImportSpecDocument(%q) failed: %v", code, err)
	}
	return id
}

func strPtr(s string) *string { return &s }
