package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportSpecDocument_CreateAndReplace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := createTestSpecDocument(t, s, "30-100", "FRAMING")

	doc, err := s.GetSpecDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Phase 30-100 FRAMING", doc.FullTitle)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Work Requirements", doc.Sections[0].SectionName)

	var numbers []string
	for _, item := range doc.Sections[0].Items {
		numbers = append(numbers, item.ItemNumber)
	}
	assert.Equal(t, []string{"1", "2", "10"}, numbers, "numeric item order")

	var sortOrder int
	require.NoError(t, s.db.QueryRow(`SELECT sort_order FROM isms_spec_documents WHERE document_id = ?`, id).Scan(&sortOrder))
	assert.Equal(t, 30100, sortOrder)

	againID, items, err := s.ImportSpecDocument(ctx, SpecImport{
		PhaseCode: "30-100",
		PhaseName: "FRAMING",
		FullTitle: "Phase 30-100 FRAMING",
		Sections: []SpecImportSection{
			{Name: "Cleanup Requirements", Items: []SpecImportItem{{Number: "1", Text: "Sweep."}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, id, againID)
	assert.Equal(t, 1, items)

	doc, err = s.GetSpecDocumentByCode(ctx, "30-100")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Cleanup Requirements", doc.Sections[0].SectionName)
}

func TestListSpecDocuments_CountsAndCategory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestSpecDocument(t, s, "30-100", "FRAMING")
	createTestSpecDocument(t, s, "10-200", "SURVEY")

	docs, err := s.ListSpecDocuments(ctx, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "10-200", docs[0].PhaseCode)
	assert.Equal(t, 2, *docs[0].SectionCount)
	assert.Equal(t, 4, *docs[0].ItemCount)

	filtered, err := s.ListSpecDocuments(ctx, "30")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "30-100", filtered[0].PhaseCode)
}

func TestGetSpecDocument_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSpecDocument(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchSpecItems(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSpecDocument(t, s, "30-100", "FRAMING")

	hits, err := s.SearchSpecItems(ctx, "framing dimensions")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ItemNumber)
	assert.Equal(t, "Work Requirements", hits[0].SectionName)
	assert.Greater(t, hits[0].Rank, 0.0)

	hits, err = s.SearchSpecItems(ctx, "the and of")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSpecBookmarks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := createTestSpecDocument(t, s, "30-100", "FRAMING")
	doc, err := s.GetSpecDocument(ctx, id)
	require.NoError(t, err)
	itemID := doc.Sections[1].Items[0].ItemID

	bookmarkID, err := s.AddSpecBookmark(ctx, 7, itemID, "")
	require.NoError(t, err)
	againID, err := s.AddSpecBookmark(ctx, 7, itemID, "ladder")
	require.NoError(t, err)
	assert.Equal(t, bookmarkID, againID)

	ids, err := s.BookmarkedSpecItems(ctx, 7, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{itemID}, ids)

	list, err := s.ListSpecBookmarks(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ladder", list[0].Notes)
	assert.Equal(t, "Safety Requirements", list[0].SectionName)

	require.NoError(t, s.RemoveSpecBookmark(ctx, 7, itemID))
	require.NoError(t, s.RemoveSpecBookmark(ctx, 7, itemID), "removing twice is fine")

	_, err = s.AddSpecBookmark(ctx, 7, 99999, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSpecNotes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := createTestSpecDocument(t, s, "30-100", "FRAMING")
	doc, err := s.GetSpecDocument(ctx, id)
	require.NoError(t, err)
	itemID := doc.Sections[0].Items[0].ItemID

	note, err := s.SaveSpecNote(ctx, 7, itemID, "  check header sizes  ")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "check header sizes", note.NoteText)

	got, err := s.GetSpecNote(ctx, 7, itemID)
	require.NoError(t, err)
	assert.Equal(t, note.NoteID, got.NoteID)

	list, err := s.ListSpecNotes(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "30-100", list[0].PhaseCode)

	deleted, err := s.SaveSpecNote(ctx, 7, itemID, "   ")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	_, err = s.GetSpecNote(ctx, 7, itemID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReimportDropsItemAnnotations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := createTestSpecDocument(t, s, "30-100", "FRAMING")
	doc, err := s.GetSpecDocument(ctx, id)
	require.NoError(t, err)
	_, err = s.AddSpecBookmark(ctx, 7, doc.Sections[0].Items[0].ItemID, "")
	require.NoError(t, err)

	createTestSpecDocument(t, s, "30-100", "FRAMING")

	list, err := s.ListSpecBookmarks(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSpecFigures(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	framing := createTestSpecDocument(t, s, "30-100", "FRAMING")
	roofing := createTestSpecDocument(t, s, "30-200", "ROOFING")

	require.NoError(t, s.ReplaceSpecFigures(ctx, framing, "30-100", []FigureRef{
		{Code: "30-100-01-002", Page: 4},
		{Code: "30-100-01-001", Page: 2},
	}))
	require.NoError(t, s.ReplaceSpecFigures(ctx, roofing, "30-200", []FigureRef{
		{Code: "30-200-01-001", Page: 1},
	}))

	all, err := s.ListSpecFigures(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "30-100-01-001", all[0].FigureCode)
	assert.Nil(t, all[0].ImagePath)

	require.NoError(t, s.ReplaceSpecFigures(ctx, framing, "30-100", nil))
	only, err := s.ListSpecFigures(ctx, "30-100")
	require.NoError(t, err)
	assert.Empty(t, only)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.SpecDocuments)
	assert.Equal(t, 8, counts.SpecItems)
	assert.Equal(t, 1, counts.SpecFigures)
}

func TestImportPhases(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	phases := []PhaseImport{
		{PhaseCode: "simonini_isms", PhaseName: "Simonini-isms", SortOrder: 0, Rules: []RuleImport{
			{Number: 1, Text: "Show up on time.", HTML: "<li>Show up on time.</li>"},
			{Number: 2, Text: "Leave it cleaner.", HTML: "<li>Leave it cleaner.</li>"},
		}},
		{PhaseCode: "empty", PhaseName: "Empty", SortOrder: 1},
		{PhaseCode: "30-100", PhaseName: "Framing", Description: strPtr("Walls"), SortOrder: 2, Rules: []RuleImport{
			{Number: 1, Text: "Square it.", HTML: "<li>Square it.</li>"},
		}},
	}

	nPhases, nRules, err := s.ImportPhases(ctx, phases, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, nPhases)
	assert.Equal(t, 3, nRules)

	phases[0].Rules[0].Text = "Show up early."
	_, _, err = s.ImportPhases(ctx, phases, 1)
	require.NoError(t, err)

	p, err := s.GetPhaseByCode(ctx, "simonini_isms")
	require.NoError(t, err)
	require.Len(t, p.Rules, 2)
	assert.Equal(t, "Show up early.", p.Rules[0].RuleText)

	_, err = s.GetPhaseByCode(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Phases)
	assert.Equal(t, 3, counts.Rules)
}

func TestImportSpecDocument_NonNumericCodeSortsLast(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := createTestSpecDocument(t, s, "GEN-A", "GENERAL")
	createTestSpecDocument(t, s, "90-100", "CLOSEOUT")

	docs, err := s.ListSpecDocuments(ctx, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "90-100", docs[0].PhaseCode)
	assert.Equal(t, "GEN-A", docs[1].PhaseCode)

	var sortOrder int
	require.NoError(t, s.db.QueryRow(`SELECT sort_order FROM isms_spec_documents WHERE document_id = ?`, id).Scan(&sortOrder))
	assert.Equal(t, unsortedSpecOrder, sortOrder)
}

func TestSpecSortOrder(t *testing.T) {
	n, err := specSortOrder("30-100")
	require.NoError(t, err)
	assert.Equal(t, 30100, n)

	n, err = specSortOrder("GEN-A")
	assert.Error(t, err)
	assert.Equal(t, unsortedSpecOrder, n)
}
