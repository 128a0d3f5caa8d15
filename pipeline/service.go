// Package pipeline drives one submission through the full validation
// flow: rule loading, format inference, diagnosis, label resolution and
// correction application.
package pipeline

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"datavalidator/diagnosis"
	"datavalidator/output"
	"datavalidator/rules"
	"datavalidator/submission"
)

// NewIssuesMessage is surfaced to the caller when the re-validation pass
// after unknown-label fixes drops additional records.
const NewIssuesMessage = "After fixing some unknown variable or unit fields, more records " +
	"with out-of-bound values were found. These records have been filtered out of the output data."

// Service processes one submission start to finish. It is strictly
// sequential; the rule set is read-only for the lifetime of the run.
type Service struct {
	Rules   *rules.Set
	WorkDir string

	Entity    *submission.Entity
	Diagnosis *diagnosis.Result
	Output    *output.Entity

	runID string
}

// New returns a service writing all report and output files under workDir.
func New(rs *rules.Set, workDir string) *Service {
	return &Service{Rules: rs, WorkDir: workDir, runID: uuid.NewString()}
}

// RunID identifies this submission run in logs and file handoffs.
func (s *Service) RunID() string { return s.runID }

// NewSession captures the submission file and runs every format guess.
// Failed guesses leave their fields untouched; the caller adjusts the
// configuration afterwards as needed.
func (s *Service) NewSession(filePath string) error {
	ent, err := submission.New(filePath)
	if err != nil {
		return err
	}
	s.Entity = ent
	s.Diagnosis = nil
	s.Output = nil

	if !ent.GuessDelimiter(submission.DefaultDelimiters) {
		log.Printf("[%s] delimiter guess inconclusive", s.runID)
	}
	if !ent.GuessHeader() {
		log.Printf("[%s] header guess inconclusive", s.runID)
	}
	if !ent.GuessLinesToSkip() {
		log.Printf("[%s] lines-to-skip guess inconclusive", s.runID)
	}
	if !ent.GuessColumns(s.Rules) {
		log.Printf("[%s] no column roles guessed", s.runID)
	}
	return nil
}

// Reconfigure applies a delimiter or skip change and re-runs the column
// guess, since both changes invalidate prior assignments.
func (s *Service) Reconfigure(delimiter string, linesToSkip int) error {
	if delimiter != "" {
		s.Entity.SetDelimiter(delimiter)
	}
	if err := s.Entity.SetLinesToSkip(linesToSkip); err != nil {
		return err
	}
	s.Entity.GuessColumns(s.Rules)
	return nil
}

// Diagnose validates the configuration and runs the row and label
// checks.
func (s *Service) Diagnose() (*diagnosis.Result, error) {
	if s.Entity == nil {
		return nil, fmt.Errorf("no submission session")
	}
	res, err := diagnosis.NewEngine(s.Rules, s.WorkDir).Run(s.Entity)
	if err != nil {
		return nil, err
	}
	s.Diagnosis = res
	log.Printf("[%s] diagnosis: %d structural, %d ignored, %d duplicates, %d accepted",
		s.runID, res.StructuralIssues, res.IgnoredScenario, res.Duplicates, res.Accepted)
	return res, nil
}

// Apply merges the caller-resolved unknown labels with the diagnosed bad
// labels and produces the processed dataset. When the re-validation pass
// finds new out-of-bound records, the filtered dataset replaces the
// processed one and the returned message is NewIssuesMessage.
func (s *Service) Apply(unknowns []diagnosis.UnknownLabel) (*output.Entity, string, error) {
	if s.Diagnosis == nil {
		return nil, "", fmt.Errorf("no diagnosis to apply corrections to")
	}
	if err := output.CheckResolutions(unknowns); err != nil {
		return nil, "", err
	}

	applicator := output.NewApplicator(s.Rules, s.WorkDir)
	out, err := applicator.Apply(s.Entity, s.Diagnosis.BadLabels, unknowns, s.Diagnosis.AcceptedPath)
	if err != nil {
		return nil, "", err
	}

	message := ""
	newIssues, err := applicator.Refilter(out, unknowns)
	if err != nil {
		return nil, "", err
	}
	if newIssues {
		out, err = applicator.FromFiltered(s.Entity)
		if err != nil {
			return nil, "", err
		}
		message = NewIssuesMessage
	}

	if output.CountOverrides(unknowns) > 0 {
		infoPath := out.FilePath[:len(out.FilePath)-len(".csv")] + "_OverrideInfo.csv"
		if err := output.WriteOverrideInfo(infoPath, unknowns); err != nil {
			return nil, "", err
		}
		log.Printf("[%s] %d overridden labels recorded in %s", s.runID, output.CountOverrides(unknowns), infoPath)
	}

	s.Output = out
	return out, message, nil
}
