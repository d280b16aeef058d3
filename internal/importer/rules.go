package importer

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/htmlrules"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// PhaseStore persists phases and their rules.
type PhaseStore interface {
	ImportPhases(ctx context.Context, phases []store.PhaseImport, userID int64) (int, int, error)
}

// RuleImporter loads phases and rules from the legacy HTML page.
type RuleImporter struct {
	store  PhaseStore
	logger *zap.Logger
}

// NewRuleImporter creates a RuleImporter. logger may be nil.
func NewRuleImporter(st PhaseStore, logger *zap.Logger) *RuleImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleImporter{store: st, logger: logger.Named("importer")}
}

// RuleReport is the outcome of a RuleImporter run.
type RuleReport struct {
	Sections int      `json:"sections"`
	Phases   int      `json:"phases"`
	Rules    int      `json:"rules"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Run parses the page read from r and upserts its phases and rules as
// userID. Sections without rules are reported as skipped.
func (ri *RuleImporter) Run(ctx context.Context, r io.Reader, userID int64) (*RuleReport, error) {
	phases, err := htmlrules.Parse(r)
	if err != nil {
		return nil, err
	}

	report := &RuleReport{Sections: len(phases)}
	imports := make([]store.PhaseImport, 0, len(phases))
	for _, p := range phases {
		if len(p.Rules) == 0 {
			report.Skipped = append(report.Skipped, p.Code)
			continue
		}
		pi := store.PhaseImport{
			PhaseCode:   p.Code,
			PhaseName:   p.Name,
			Description: p.Description,
			SortOrder:   p.SortOrder,
		}
		for _, rule := range p.Rules {
			pi.Rules = append(pi.Rules, store.RuleImport{Number: rule.Number, Text: rule.Text, HTML: rule.HTML})
		}
		ri.logger.Debug("parsed phase",
			zap.String("phase_code", p.Code),
			zap.String("phase_name", p.Name),
			zap.Int("rules", len(p.Rules)))
		imports = append(imports, pi)
	}

	report.Phases, report.Rules, err = ri.store.ImportPhases(ctx, imports, userID)
	if err != nil {
		return nil, fmt.Errorf("import phases: %w", err)
	}
	ri.logger.Info("rule import complete",
		zap.Int("phases", report.Phases),
		zap.Int("rules", report.Rules),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}
